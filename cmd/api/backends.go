package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yourusername/pdf2img/internal/config"
	"github.com/yourusername/pdf2img/internal/conversion"
	"github.com/yourusername/pdf2img/internal/storage"
	"github.com/yourusername/pdf2img/internal/store"
)

// openRecordStore は STORE_BACKEND に応じたレコードストアを開きます。
func openRecordStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (conversion.RecordStore, func(), error) {
	logger = logger.With().Str("component", "store").Str("backend", cfg.StoreBackend).Logger()

	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Warn().Msg("records are kept in memory and lost on restart")
		return store.NewMemory(), func() {}, nil
	case config.StoreSQLite:
		s, err := store.OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, closer(logger, s.Close), nil
	case config.StorePostgres:
		s, err := store.OpenPostgres(ctx, store.PostgresConfig{
			DSN:              cfg.DatabaseURL,
			MaxConns:         cfg.DBMaxConns,
			MinConns:         cfg.DBMinConns,
			DialTimeout:      cfg.DBDialTimeout,
			StatementTimeout: cfg.StatementTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, closer(logger, s.Close), nil
	case config.StoreRedis:
		s, err := store.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return s, closer(logger, s.Close), nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %q", cfg.StoreBackend)
	}
}

// openPageStore は STORAGE_BACKEND に応じたページ保存先を開きます。
func openPageStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (conversion.PageStore, func(), error) {
	logger = logger.With().Str("component", "storage").Str("backend", cfg.StorageBackend).Logger()

	switch cfg.StorageBackend {
	case config.StorageLocal:
		l, err := storage.NewLocal(cfg.ResultsDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("root", l.Root()).Msg("page storage ready")
		return l, func() {}, nil
	case config.StorageGCS:
		g, err := storage.NewGCS(ctx, cfg.GCSBucket, cfg.GCSPrefix)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("bucket", cfg.GCSBucket).Str("prefix", cfg.GCSPrefix).Msg("page storage ready")
		return g, closer(logger, g.Close), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend: %q", cfg.StorageBackend)
	}
}

func closer(logger zerolog.Logger, closeFn func() error) func() {
	return func() {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msg("close failed")
		}
	}
}
