package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"mediapull/pkg/api"
	"mediapull/pkg/config"
	"mediapull/pkg/downloader"
	"mediapull/pkg/logger"
	"mediapull/pkg/progress"
)

var mainLogger = logger.Get("Main")

func main() {
	configPath := flag.String("config", "", "path to an optional YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger.Log.SetMinLevel(logger.ParseLevel(cfg.LogLevel))
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tools := downloader.Toolchain{
		YTDLPPath:  cfg.Tools.YTDLPPath,
		FFMPEGPath: cfg.Tools.FFMPEGPath,
		BinDir:     cfg.Tools.BinDir,
	}
	if cfg.Tools.AutoInstall {
		tools.EnsureInstalled(ctx)
	}
	reportTools(tools)

	svc, err := downloader.New(downloader.Options{
		Tools:           tools,
		TempDir:         cfg.Download.TempDir,
		CookiesPath:     cfg.Tools.CookiesPath,
		RequestTimeout:  cfg.Download.RequestTimeout,
		MetadataTimeout: cfg.Download.MetadataTimeout,
	})
	if err != nil {
		mainLogger.Emit(logger.FATAL, "%v\n", err)
		os.Exit(1)
	}

	server := api.New(svc, progress.NewHub(), api.Options{
		AllowOrigins:  cfg.AllowOrigins,
		RatePerSecond: cfg.Download.RatePerSecond,
		RateBurst:     cfg.Download.RateBurst,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		mainLogger.Emit(logger.STOP, "Shutting down...\n")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			mainLogger.Emit(logger.WARNING, "Graceful shutdown failed: %v\n", err)
		}
	}()

	mainLogger.Emit(logger.INFO, "Media download server running on %s\n", cfg.Addr())
	mainLogger.Emit(logger.INFO, "Temp directory: %s\n", cfg.Download.TempDir)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		mainLogger.Emit(logger.FATAL, "%v\n", err)
		os.Exit(1)
	}
}

func reportTools(tools downloader.Toolchain) {
	for _, tool := range []struct {
		name    string
		resolve func() (string, error)
	}{
		{downloader.ExtractorName, tools.Extractor},
		{downloader.TranscoderName, tools.Transcoder},
	} {
		if path, err := tool.resolve(); err != nil {
			mainLogger.Emit(logger.WARNING, "%v; requests needing it will fail\n", err)
		} else {
			mainLogger.Emit(logger.SUCCESS, "Using %s at %s\n", tool.name, path)
		}
	}
}
