package downloader

import (
	"context"

	"mediapull/pkg/internal/installer"
	"mediapull/pkg/logger"
)

var installLog = logger.Get("Installer")

// EnsureInstalled fetches whichever tool cannot be resolved into BinDir.
// Tools with an explicit path are never replaced. Failures are logged only;
// requests needing a missing tool then fail on their own.
func (t Toolchain) EnsureInstalled(ctx context.Context) {
	t.ensureInstalled(ctx, installer.New(t.BinDir))
}

func (t Toolchain) ensureInstalled(ctx context.Context, inst *installer.Installer) {
	if _, err := t.Extractor(); err != nil && t.YTDLPPath == "" {
		if _, err := inst.InstallExtractor(ctx); err != nil {
			installLog.Emit(logger.ERROR, "Auto-install of %s failed: %v\n", ExtractorName, err)
		}
	}

	if _, err := t.Transcoder(); err != nil && t.FFMPEGPath == "" {
		if _, err := inst.InstallTranscoder(ctx); err != nil {
			installLog.Emit(logger.ERROR, "Auto-install of %s failed: %v\n", TranscoderName, err)
		}
	}
}
