// Command eyecheck is an interactive client for the eye-region detection
// service: analyze an image file or a camera still, and browse or delete
// past analyses.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/eye-check/internal/acquisition"
	"github.com/example/eye-check/internal/apiclient"
	"github.com/example/eye-check/internal/app"
	"github.com/example/eye-check/internal/camera/opencv"
	"github.com/example/eye-check/internal/cli"
	"github.com/example/eye-check/internal/config"
	"github.com/example/eye-check/internal/history"
	"github.com/example/eye-check/internal/logging"
	"github.com/example/eye-check/internal/submission"
	"github.com/example/eye-check/internal/watch"
)

func main() {
	cfg := config.Load()

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base := cfg.BaseURL()
	client := apiclient.New(base, &http.Client{Timeout: cfg.RequestTimeout}, logger)
	pipeline := submission.NewPipeline(client, logger)

	prompt := cli.NewPrompt(os.Stdin, os.Stdout)
	refresh := history.NewSignal()
	hist := history.New(client, prompt, base, logger)
	shellApp := app.New(refresh, hist, logger)

	session := acquisition.New(pipeline, opencv.NewDevice(cfg.CameraIndex), shellApp.HandleUploadSuccess, logger)
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to release camera", zap.Error(err))
		}
	}()

	go hist.Run(ctx, refresh)

	if cfg.Watch {
		watcher, err := watch.New(base, refresh, logger)
		if err != nil {
			logger.Warn("change feed disabled", zap.Error(err))
		} else {
			go watcher.Run(ctx)
		}
	}

	logger.Info("eyecheck started", zap.String("api", base), zap.Int("camera", cfg.CameraIndex))

	shell := cli.New(prompt, os.Stdout, cli.Deps{
		Session: session,
		History: hist,
		App:     shellApp,
		Uploads: client,
		Stats:   pipeline,
		BaseURL: base,
	}, logger)

	done := make(chan error, 1)
	go func() {
		done <- shell.Run(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shell failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("interrupted")
	}
}
