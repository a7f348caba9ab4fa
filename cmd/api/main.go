// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yourusername/pdf2img/internal/auth"
	"github.com/yourusername/pdf2img/internal/config"
	"github.com/yourusername/pdf2img/internal/conversion"
	"github.com/yourusername/pdf2img/internal/logging"
	"github.com/yourusername/pdf2img/internal/raster"
	"github.com/yourusername/pdf2img/internal/server"
)

// version はビルド時に -ldflags "-X main.version=..." で上書きします。
var version = "0.1.0"

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(logging.Options{Service: server.ServiceName})
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: server.ServiceName,
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, closeRecords, err := openRecordStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRecords()

	pages, closePages, err := openPageStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closePages()

	rasterizer, err := raster.New(raster.Options{
		Kind:            cfg.Rasterizer,
		DPI:             cfg.RenderDPI,
		GhostscriptPath: cfg.GhostscriptPath,
		MaxPages:        cfg.MaxPages,
	})
	if err != nil {
		return err
	}

	runner := conversion.NewRunner(records, pages, rasterizer, conversion.RunnerOptions{
		PageWriteConcurrency: cfg.PageWriteConcurrency,
		SimulateDelay:        cfg.SimulateProcessDelay,
		Logger:               logger,
	})

	scheduler, err := newScheduler(cfg, runner, logger)
	if err != nil {
		return err
	}

	service := conversion.NewService(records, pages, scheduler, conversion.ServiceOptions{
		MaxFileSize: cfg.MaxFileSize,
		Logger:      logger,
	})

	// 認証情報が揃っていない場合は認証なしで公開する
	var creds auth.Credentials
	if cfg.AuthEnabled() {
		creds = auth.Credentials{
			Username:      cfg.AppUsername,
			PasswordHash:  cfg.AppPasswordHash,
			SessionSecret: cfg.SessionSecret,
		}
	}
	// メモリストアは疎通確認の対象外
	pinger, _ := records.(server.Pinger)

	router := server.NewRouter(service, server.Options{
		Version:            version,
		Store:              pinger,
		SecureCookies:      cfg.GinMode == gin.ReleaseMode,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MaxFileSize:        cfg.MaxFileSize,
		Auth:               creds,
		Logger:             logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("mode", cfg.GinMode).
			Str("store", cfg.StoreBackend).
			Str("queue", cfg.QueueBackend).
			Str("storage", cfg.StorageBackend).
			Str("rasterizer", cfg.Rasterizer).
			Bool("auth", cfg.AuthEnabled()).
			Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			_ = scheduler.Shutdown(context.Background())
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("scheduler shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
