package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// defaultAbortGrace は Shutdown の期限切れ後、中断した実行が最終状態を書き込むのを待つ時間です。
const defaultAbortGrace = 5 * time.Second

// Dispatcher は投入ごとにゴルーチンを起動してプロセス内で変換を実行します。
type Dispatcher struct {
	exec       Executor
	logger     zerolog.Logger
	timeout    time.Duration
	abortGrace time.Duration

	// baseCtx は実行中のジョブすべての親で、Shutdown の期限切れで取り消されます。
	baseCtx context.Context
	abort   context.CancelFunc

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// DispatcherOption は Dispatcher の設定を変更します。
type DispatcherOption func(*Dispatcher)

// WithJobTimeout は1件の実行にかけられる時間の上限を設定します。0 なら上限なしです。
func WithJobTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDispatcher は Dispatcher を作成します。
func NewDispatcher(exec Executor, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	baseCtx, abort := context.WithCancel(context.Background())
	d := &Dispatcher{
		exec:       exec,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
		abortGrace: defaultAbortGrace,
		baseCtx:    baseCtx,
		abort:      abort,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Schedule は変換をバックグラウンドで開始し、完了を待たずに戻ります。
// 実行はリクエストの context から切り離されます。
func (d *Dispatcher) Schedule(ctx context.Context, conversionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	d.wg.Add(1)
	go d.run(conversionID)
	return nil
}

func (d *Dispatcher) run(conversionID string) {
	defer d.wg.Done()
	logger := d.logger.With().Str("conversion_id", conversionID).Logger()

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if d.timeout > 0 {
		runCtx, cancel = context.WithTimeout(d.baseCtx, d.timeout)
	} else {
		runCtx, cancel = context.WithCancel(d.baseCtx)
	}
	defer cancel()

	if err := d.execute(runCtx, conversionID); err != nil {
		logger.Error().Err(err).Msg("conversion job failed")
		return
	}
	logger.Debug().Msg("conversion job finished")
}

// execute はパニックをエラーに変えて Executor を呼び出します。
func (d *Dispatcher) execute(ctx context.Context, conversionID string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("conversion job panicked: %v", p)
		}
	}()
	return d.exec.Execute(ctx, conversionID)
}

// Shutdown は新しい投入を止め、実行中のジョブが終わるか ctx が終わるまで待ちます。
// ctx が先に終わった場合は実行中のジョブを取り消し、最終状態を書き込む猶予を与えてから戻ります。
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); d.wg.Wait() }()

	select {
	case <-done:
		d.abort()
		d.logger.Info().Msg("dispatcher drained")
		return nil
	case <-ctx.Done():
	}

	d.logger.Warn().Msg("shutdown deadline reached, aborting running jobs")
	d.abort()

	grace := time.NewTimer(d.abortGrace)
	defer grace.Stop()
	select {
	case <-done:
		d.logger.Info().Msg("aborted jobs finished")
	case <-grace.C:
		d.logger.Warn().Msg("jobs still running after abort")
	}
	return ctx.Err()
}
