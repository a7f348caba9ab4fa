package conversion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// RunnerOptions は Runner の生成オプションです。
type RunnerOptions struct {
	PageWriteConcurrency int           // ページ画像の並列書き込み数（0 以下なら 1）
	SimulateDelay        time.Duration // 変換前に待機する時間
	Logger               zerolog.Logger
}

// Runner は1件の変換を実行し、終了時に最終状態を1度だけ書き込みます。
type Runner struct {
	records     RecordStore
	pages       PageStore
	rasterizer  Rasterizer
	concurrency int
	delay       time.Duration
	logger      zerolog.Logger
}

// NewRunner は Runner を生成します。
func NewRunner(records RecordStore, pages PageStore, rasterizer Rasterizer, opts RunnerOptions) *Runner {
	concurrency := opts.PageWriteConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{
		records:     records,
		pages:       pages,
		rasterizer:  rasterizer,
		concurrency: concurrency,
		delay:       opts.SimulateDelay,
		logger:      opts.Logger.With().Str("component", "runner").Logger(),
	}
}

// Execute はスケジューラーから呼ばれ、スプールされた PDF を読み込んで変換します。
// レコードが存在しないか RUNNING でない場合は何も書き込まずに戻ります。
// レコードを読めなかった場合とパニックした場合は FAILED の書き込みを試みます。
func (r *Runner) Execute(ctx context.Context, id string) (err error) {
	logger := r.logger.With().Str("conversion_id", id).Logger()

	defer func() {
		if p := recover(); p != nil {
			logger.Error().Interface("panic", p).Msg("conversion panicked")
			err = newError(CodeConversionFailed, "変換中に予期しないエラーが発生しました。", fmt.Errorf("panic: %v", p))
			if writeErr := r.failIfRunning(ctx, id); writeErr != nil {
				err = errors.Join(err, writeErr)
			}
		}
	}()

	record, err := r.records.GetByID(ctx, id)
	if err != nil {
		loadErr := fmt.Errorf("load conversion %s: %w", id, err)
		if writeErr := r.failIfRunning(ctx, id); writeErr != nil {
			return errors.Join(loadErr, writeErr)
		}
		return loadErr
	}
	if record == nil {
		logger.Warn().Msg("conversion record not found, skipping")
		return nil
	}
	if record.Status != StatusRunning {
		logger.Info().Str("status", string(record.Status)).Msg("conversion already finished, skipping")
		return nil
	}

	defer func() {
		if err := r.pages.DeleteSource(context.WithoutCancel(ctx), id); err != nil {
			logger.Warn().Err(err).Msg("failed to remove spooled pdf")
		}
	}()

	pdf, err := r.pages.LoadSource(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load spooled pdf")
		convErr := newError(CodeConversionFailed, "スプールされたPDFを読み込めませんでした。", err)
		if writeErr := r.finish(ctx, id, StatusFailed); writeErr != nil {
			return errors.Join(convErr, writeErr)
		}
		return convErr
	}

	_, err = r.Run(ctx, id, pdf)
	return err
}

// Run は pdf をラスタライズしてページ画像を保存し、最終状態を返します。
// どの経路で終了しても UpdateStatus はちょうど1回呼ばれます。
func (r *Runner) Run(ctx context.Context, id string, pdf []byte) (status Status, err error) {
	logger := r.logger.With().Str("conversion_id", id).Logger()
	started := time.Now()
	status = StatusFailed

	defer func() {
		if p := recover(); p != nil {
			status = StatusFailed
			err = newError(CodeConversionFailed, "変換中に予期しないエラーが発生しました。", fmt.Errorf("panic: %v", p))
		}
		if writeErr := r.finish(ctx, id, status); writeErr != nil {
			err = errors.Join(err, writeErr)
		}

		event := logger.Info()
		if err != nil {
			event = logger.Error().Err(err)
		}
		event.Str("status", string(status)).Dur("elapsed", time.Since(started)).Msg("conversion finished")
	}()

	if r.delay > 0 {
		timer := time.NewTimer(r.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return StatusFailed, newError(CodeConversionFailed, "変換が中断されました。", ctx.Err())
		}
	}

	images, err := r.rasterizer.Rasterize(ctx, pdf)
	if err != nil {
		return StatusFailed, newError(CodeConversionFailed, "PDFを画像に変換できませんでした。", err)
	}
	if len(images) == 0 {
		return StatusFailed, newError(CodeConversionFailed, "PDFにページがありません。", nil)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.concurrency)
	for index, image := range images {
		group.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("save page %d: panic: %v", index, p)
				}
			}()
			if err := r.pages.SavePage(groupCtx, id, index, image); err != nil {
				return fmt.Errorf("save page %d: %w", index, err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return StatusFailed, newError(CodeConversionFailed, "ページ画像を保存できませんでした。", err)
	}

	logger.Debug().Int("pages", len(images)).Msg("pages stored")
	return StatusCompleted, nil
}

// finish はキャンセルされない context で最終状態を書き込みます。
func (r *Runner) finish(ctx context.Context, id string, status Status) error {
	if err := r.records.UpdateStatus(context.WithoutCancel(ctx), id, status); err != nil {
		return fmt.Errorf("record final status %s for %s: %w", status, id, err)
	}
	return nil
}

// failIfRunning は FAILED を書き込みます。
// レコードが存在しないか既に終端状態なら何もしなかったものとして扱います。
func (r *Runner) failIfRunning(ctx context.Context, id string) error {
	err := r.finish(ctx, id, StatusFailed)
	if errors.Is(err, ErrRecordNotFound) || errors.Is(err, ErrStatusFinal) {
		return nil
	}
	return err
}
