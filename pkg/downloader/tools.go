package downloader

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	ExtractorName  = "yt-dlp"
	TranscoderName = "ffmpeg"
)

// Toolchain holds the configured locations of the external binaries. Any
// field may be empty; resolution then falls back to BinDir and finally PATH.
type Toolchain struct {
	YTDLPPath  string
	FFMPEGPath string
	BinDir     string
}

// Extractor resolves the yt-dlp binary.
func (t Toolchain) Extractor() (string, error) {
	return t.resolve(ExtractorName, t.YTDLPPath)
}

// Transcoder resolves the ffmpeg binary.
func (t Toolchain) Transcoder() (string, error) {
	return t.resolve(TranscoderName, t.FFMPEGPath)
}

// resolve checks the explicit path, then the local bin dir, then PATH. A
// missing tool is reported per request and never aborts the process.
func (t Toolchain) resolve(name, configured string) (string, error) {
	if configured != "" {
		if checkBinaryExists(configured) {
			return configured, nil
		}
		return "", fmt.Errorf("%w: %s (configured at %s)", ErrToolNotFound, name, configured)
	}

	if local := tryGetLocalBinary(t.BinDir, name); local != "" {
		return local, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

// tryGetLocalBinary returns the binary in binDir, or "" when absent.
func tryGetLocalBinary(binDir, name string) string {
	if binDir == "" {
		return ""
	}

	candidates := []string{filepath.Join(binDir, name)}
	if runtime.GOOS == "windows" {
		candidates = append([]string{filepath.Join(binDir, name+".exe")}, candidates...)
	}

	for _, path := range candidates {
		if checkBinaryExists(path) {
			return path
		}
	}

	return ""
}

// checkBinaryExists verifies if a binary is executable
func checkBinaryExists(path string) bool {
	// Bare names are looked up on PATH
	if !filepath.IsAbs(path) && !strings.ContainsRune(path, filepath.Separator) {
		_, err := exec.LookPath(path)
		return err == nil
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	if info.Mode()&0111 != 0 {
		return true
	}

	return strings.HasSuffix(strings.ToLower(path), ".exe")
}

func toolNotFound(op, name string, err error) *Error {
	return newError(KindToolExecution, op, name+" not found", err)
}
