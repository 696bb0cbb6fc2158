package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mediapull/pkg/internal/installer"
)

func TestEnsureInstalled_FetchesMissingExtractor(t *testing.T) {
	if _, err := exec.LookPath(ExtractorName); err == nil {
		t.Skip("yt-dlp is on PATH")
	}

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("#!/bin/sh\nexit 0\n"))
	}))
	defer srv.Close()

	binDir := t.TempDir()
	// The transcoder is configured explicitly, so only the extractor is fetched.
	ffmpeg := writeScript(t, binDir, "my-ffmpeg", "exit 0")
	tools := Toolchain{BinDir: filepath.Join(binDir, "bin"), FFMPEGPath: ffmpeg}

	inst := installer.New(tools.BinDir)
	inst.ExtractorBaseURL = srv.URL
	tools.ensureInstalled(context.Background(), inst)

	path, err := tools.Extractor()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tools.BinDir, ExtractorName), path)
	assert.EqualValues(t, 1, hits.Load())

	// Nothing left to install on a second run.
	tools.ensureInstalled(context.Background(), inst)
	assert.EqualValues(t, 1, hits.Load())
}
