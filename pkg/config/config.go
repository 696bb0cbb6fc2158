package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

// Config is the server configuration. Every field can be supplied by the
// environment; a YAML file may be layered underneath with -config.
type Config struct {
	Host string `yaml:"host" env:"HOST_ADDR" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"PORT" env-default:"8080"`

	Tools    ToolsConfig    `yaml:"tools"`
	Download DownloadConfig `yaml:"download"`

	AllowOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" env-default:"http://localhost:3000,http://localhost:3001"`
	LogLevel     string   `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	GinMode      string   `yaml:"gin_mode" env:"GIN_MODE" env-default:"release"`
}

// ToolsConfig locates the external extraction (yt-dlp) and transcoding (ffmpeg)
// binaries. Empty paths are resolved from BinDir and then PATH.
type ToolsConfig struct {
	YTDLPPath   string `yaml:"ytdlp_path" env:"YTDLP_PATH"`
	FFMPEGPath  string `yaml:"ffmpeg_path" env:"FFMPEG_PATH"`
	CookiesPath string `yaml:"cookies_path" env:"COOKIES_PATH"`
	BinDir      string `yaml:"bin_dir" env:"BIN_DIR" env-default:"~/.mediapull/bin"`
	AutoInstall bool   `yaml:"auto_install" env:"AUTO_INSTALL" env-default:"false"`
}

type DownloadConfig struct {
	TempDir         string        `yaml:"temp_dir" env:"TEMP_DIR" env-default:"./temp_downloads"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT" env-default:"30m"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout" env:"METADATA_TIMEOUT" env-default:"2m"`
	RatePerSecond   float64       `yaml:"rate" env:"DOWNLOAD_RATE" env-default:"2"`
	RateBurst       int           `yaml:"burst" env:"DOWNLOAD_BURST" env-default:"5"`
}

// Load reads the configuration from the YAML file at path when one is given,
// otherwise from the environment alone. Paths beginning with ~ are expanded.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Addr returns the host:port pair the HTTP server listens on.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Tools.YTDLPPath,
		&c.Tools.FFMPEGPath,
		&c.Tools.CookiesPath,
		&c.Tools.BinDir,
		&c.Download.TempDir,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}

	return nil
}
