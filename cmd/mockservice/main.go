// Command mockservice runs a development copy of the eye-region detection
// service on the REST boundary the eyecheck client expects.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/eye-check/internal/config"
	"github.com/example/eye-check/internal/logging"
	"github.com/example/eye-check/internal/mockservice"
	"github.com/example/eye-check/internal/mockservice/opencv"
)

func main() {
	cfg := config.LoadService()

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("mock detection service failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.ServiceConfig, logger *zap.Logger) error {
	initCtx, initCancel := context.WithTimeout(ctx, 15*time.Second)
	store, closeStore, err := openStore(initCtx, cfg, logger)
	initCancel()
	if err != nil {
		return err
	}
	defer closeStore()

	analyzer, closeAnalyzer, err := openAnalyzer(cfg, logger)
	if err != nil {
		return err
	}
	defer closeAnalyzer()

	if err := mockservice.EnsureUploadDir(cfg.UploadDir); err != nil {
		return fmt.Errorf("upload dir: %w", err)
	}

	hub := mockservice.NewHub(logger)
	go hub.Run(ctx)

	svc := mockservice.NewService(store, analyzer, cfg.UploadDir, hub, logger)

	r := gin.Default()
	r.MaxMultipartMemory = mockservice.MaxUploadSize
	mockservice.RegisterRoutes(r, svc, hub, logger)

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	logger.Info("mock detection service listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("store", cfg.Store),
		zap.String("analyzer", cfg.Analyzer),
	)
	return serve(ctx, &http.Server{Handler: r}, listener, cfg.ShutdownTimeout, logger)
}

// openStore builds the configured result store and a func releasing its
// connections.
func openStore(ctx context.Context, cfg *config.ServiceConfig, logger *zap.Logger) (mockservice.Store, func(), error) {
	switch cfg.Store {
	case "memory", "":
		return mockservice.NewMemoryStore(), func() {}, nil
	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, fmt.Errorf("postgres handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
		closeDB := func() {
			if err := sqlDB.Close(); err != nil {
				logger.Warn("failed to close postgres", zap.Error(err))
			}
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}

		store := mockservice.NewPostgresStore(db, logger)
		if err := store.AutoMigrate(ctx); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("migrate analysis_results: %w", err)
		}
		return store, closeDB, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closeClient := func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close redis", zap.Error(err))
			}
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			closeClient()
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		return mockservice.NewRedisStore(mockservice.NewRedisCache(client), logger), closeClient, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func openAnalyzer(cfg *config.ServiceConfig, logger *zap.Logger) (mockservice.Analyzer, func(), error) {
	if cfg.Analyzer != "cascade" {
		return mockservice.SampleAnalyzer{}, func() {}, nil
	}
	analyzer, err := opencv.NewCascadeAnalyzer(cfg.CascadePath)
	if err != nil {
		return nil, nil, fmt.Errorf("load eye cascade %s: %w", cfg.CascadePath, err)
	}
	return analyzer, func() {
		if err := analyzer.Close(); err != nil {
			logger.Warn("failed to release eye cascade", zap.Error(err))
		}
	}, nil
}

// serve runs server on listener until ctx is done, then drains in-flight
// requests for at most shutdownTimeout.
func serve(ctx context.Context, server *http.Server, listener net.Listener, shutdownTimeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
