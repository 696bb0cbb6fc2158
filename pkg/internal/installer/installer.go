package installer

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"mediapull/pkg/logger"
)

const (
	DefaultExtractorBaseURL = "https://github.com/yt-dlp/yt-dlp/releases/latest/download"

	defaultTranscoderWindowsURL = "https://github.com/BtbN/FFmpeg-Builds/releases/download/latest/ffmpeg-master-latest-win64-gpl.zip"
	defaultTranscoderMacURL     = "https://evermeet.cx/ffmpeg/getrelease/ffmpeg/zip"
)

var installLog = logger.Get("Installer")

// Installer fetches the external tools into BinDir.
type Installer struct {
	BinDir string

	// ExtractorBaseURL is the yt-dlp release directory; the platform asset
	// name is appended.
	ExtractorBaseURL string

	// TranscoderArchiveURL points at a zip containing an ffmpeg binary.
	// Empty selects a platform default where one exists.
	TranscoderArchiveURL string

	Client *http.Client
}

func New(binDir string) *Installer {
	return &Installer{
		BinDir:           binDir,
		ExtractorBaseURL: DefaultExtractorBaseURL,
		Client:           http.DefaultClient,
	}
}

func executableName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// extractorAsset returns the release asset for the running platform.
func extractorAsset() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "yt-dlp", nil
	case "darwin":
		return "yt-dlp_macos", nil
	case "windows":
		return "yt-dlp.exe", nil
	default:
		return "", fmt.Errorf("unsupported OS: %s", runtime.GOOS)
	}
}

func (i *Installer) prepare() error {
	if i.BinDir == "" {
		return fmt.Errorf("no bin directory configured")
	}
	if err := os.MkdirAll(i.BinDir, 0755); err != nil {
		return fmt.Errorf("failed to create bin directory: %w", err)
	}
	return nil
}

// InstallExtractor downloads yt-dlp and returns the installed path.
func (i *Installer) InstallExtractor(ctx context.Context) (string, error) {
	if err := i.prepare(); err != nil {
		return "", err
	}

	asset, err := extractorAsset()
	if err != nil {
		return "", err
	}

	downloadURL := strings.TrimRight(i.ExtractorBaseURL, "/") + "/" + asset
	destPath := filepath.Join(i.BinDir, executableName("yt-dlp"))

	installLog.Emit(logger.INFO, "Downloading yt-dlp from %s...\n", downloadURL)
	if err := i.downloadFile(ctx, downloadURL, destPath); err != nil {
		return "", fmt.Errorf("failed to download yt-dlp: %w", err)
	}

	installLog.Emit(logger.SUCCESS, "yt-dlp installed at: %s\n", destPath)
	return destPath, nil
}

// InstallTranscoder downloads a zip build of ffmpeg and extracts the binary.
func (i *Installer) InstallTranscoder(ctx context.Context) (string, error) {
	if err := i.prepare(); err != nil {
		return "", err
	}

	archiveURL := i.TranscoderArchiveURL
	if archiveURL == "" {
		switch runtime.GOOS {
		case "windows":
			archiveURL = defaultTranscoderWindowsURL
		case "darwin":
			archiveURL = defaultTranscoderMacURL
		default:
			return "", fmt.Errorf("no ffmpeg archive known for %s; install it with the system package manager", runtime.GOOS)
		}
	}

	tmp, err := os.CreateTemp(i.BinDir, "ffmpeg-*.zip")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	installLog.Emit(logger.INFO, "Downloading ffmpeg from %s...\n", archiveURL)
	if err := i.downloadFile(ctx, archiveURL, tmpPath); err != nil {
		return "", fmt.Errorf("failed to download ffmpeg: %w", err)
	}

	installLog.Emit(logger.INFO, "Extracting ffmpeg...\n")
	destPath, err := extractFromZip(tmpPath, i.BinDir, executableName("ffmpeg"))
	if err != nil {
		return "", fmt.Errorf("failed to extract ffmpeg: %w", err)
	}

	installLog.Emit(logger.SUCCESS, "ffmpeg installed at: %s\n", destPath)
	return destPath, nil
}

// downloadFile streams url into dest via a sibling temp file, so a failed
// download never leaves a truncated binary behind.
func (i *Installer) downloadFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	client := i.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	part := dest + ".part"
	out, err := os.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}

	counter := &progressWriter{name: filepath.Base(dest), total: resp.ContentLength}
	if _, err := io.Copy(out, io.TeeReader(resp.Body, counter)); err != nil {
		out.Close()
		os.Remove(part)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(part)
		return err
	}

	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return err
	}

	// Make executable on Unix systems
	if runtime.GOOS != "windows" {
		if err := os.Chmod(dest, 0755); err != nil {
			return fmt.Errorf("failed to make %s executable: %w", dest, err)
		}
	}

	return nil
}

// progressWriter logs download progress in 10% steps.
type progressWriter struct {
	name       string
	total      int64
	downloaded int64
	reported   int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.downloaded += int64(len(b))
	if p.total <= 0 {
		return len(b), nil
	}

	step := p.downloaded * 10 / p.total
	if step > p.reported {
		p.reported = step
		installLog.Emit(logger.DEBUG, "Downloading %s... %d%% (%d/%d MB)\n",
			p.name, step*10, p.downloaded/(1024*1024), p.total/(1024*1024))
	}
	return len(b), nil
}

// extractFromZip copies the first regular file named executable out of the
// archive into destDir.
func extractFromZip(zipPath, destDir, executable string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || filepath.Base(f.Name) != executable {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()

		destPath := filepath.Join(destDir, executable)
		outFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
		if err != nil {
			return "", err
		}

		if _, err := io.Copy(outFile, rc); err != nil {
			outFile.Close()
			return "", err
		}
		if err := outFile.Close(); err != nil {
			return "", err
		}

		return destPath, nil
	}

	return "", fmt.Errorf("%s not found in archive", executable)
}
