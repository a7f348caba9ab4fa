package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// ManagerOptions は Manager の設定です。
type ManagerOptions struct {
	RedisURL        string
	Concurrency     int
	JobTimeout      time.Duration // 1件の実行時間の上限（0 なら asynq の既定値）
	ShutdownTimeout time.Duration // 停止時に実行中タスクを待つ時間（0 なら asynq の既定値）
	Logger          zerolog.Logger
}

// Manager は Asynq (Redis) 経由で変換タスクの投入と実行を担います。
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	exec   Executor
	logger zerolog.Logger

	jobTimeout time.Duration
}

// NewManager は Manager を初期化します。
func NewManager(opts ManagerOptions, exec Executor) (*Manager, error) {
	if exec == nil {
		return nil, errors.New("executor is nil")
	}
	redisOpt, err := asynq.ParseRedisURI(opts.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	logger := opts.Logger.With().Str("component", "asynq").Logger()

	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueConversion: 1,
			},
			ShutdownTimeout: opts.ShutdownTimeout,
			Logger:          newAsynqLogger(logger),
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client: client,
		server: server,
		mux:    mux,
		exec:       exec,
		logger:     logger,
		jobTimeout: opts.JobTimeout,
	}
	mux.HandleFunc(TaskTypeConversion, manager.handleConversionTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error().Err(err).Msg("asynq server stopped with error")
		}
	}()
}

// Shutdown は実行中のタスクの完了を待ってサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.server.Shutdown()
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if closeErr := m.client.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// Schedule は変換タスクをキューに投入します。1回の投入につき実行は1回で、再試行しません。
func (m *Manager) Schedule(ctx context.Context, conversionID string) error {
	task, err := NewConversionTask(conversionID)
	if err != nil {
		return err
	}
	var opts []asynq.Option
	if m.jobTimeout > 0 {
		opts = append(opts, asynq.Timeout(m.jobTimeout))
	}
	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue conversion %s: %w", conversionID, err)
	}
	m.logger.Debug().Str("conversion_id", conversionID).Str("task_id", info.ID).Msg("conversion task enqueued")
	return nil
}

// NewConversionTask は変換タスクを作成します。
func NewConversionTask(conversionID string) (*asynq.Task, error) {
	if conversionID == "" {
		return nil, errors.New("conversion id is required")
	}
	body, err := json.Marshal(&TaskPayload{ConversionID: conversionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeConversion, body, asynq.Queue(QueueConversion), asynq.MaxRetry(0)), nil
}

func (m *Manager) handleConversionTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ConversionID == "" {
		return fmt.Errorf("missing conversionId in payload: %w", asynq.SkipRetry)
	}

	if err := m.exec.Execute(ctx, payload.ConversionID); err != nil {
		// 最終状態は Executor が書き込み済みなので、キューには再試行させない
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return nil
}
