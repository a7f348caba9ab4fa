package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/yourusername/pdf2img/internal/config"
	"github.com/yourusername/pdf2img/internal/jobs"
)

// scheduler は変換の投入と停止処理をまとめたものです。
type scheduler interface {
	Schedule(ctx context.Context, conversionID string) error
	Shutdown(ctx context.Context) error
}

// newScheduler は QUEUE_BACKEND に応じてスケジューラーを作成します。
// asynq の場合は同じプロセスでワーカーも起動します。
func newScheduler(cfg *config.Config, exec jobs.Executor, logger zerolog.Logger) (scheduler, error) {
	if cfg.QueueBackend != config.QueueAsynq {
		return jobs.NewDispatcher(exec, logger, jobs.WithJobTimeout(cfg.JobTimeout)), nil
	}

	manager, err := jobs.NewManager(jobs.ManagerOptions{
		RedisURL:        cfg.QueueRedisURL,
		Concurrency:     cfg.WorkerConcurrency,
		JobTimeout:      cfg.JobTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	}, exec)
	if err != nil {
		return nil, err
	}
	manager.StartWorkers()
	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("asynq workers started")
	return manager, nil
}
