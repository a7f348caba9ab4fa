package conversion_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pdf2img/internal/conversion"
)

func createRunning(t *testing.T, env *testEnv, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.records.Create(ctx, &conversion.Conversion{
		ID:        id,
		Filename:  id + ".pdf",
		Status:    conversion.StatusRunning,
		StartDate: time.Now().UTC(),
	}))
	require.NoError(t, env.pages.SaveSource(ctx, id, samplePDF))
}

func statusOf(t *testing.T, env *testEnv, id string) conversion.Status {
	t.Helper()
	record, err := env.records.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, record)
	return record.Status
}

func TestRunnerWritesFinalStatusOnce(t *testing.T) {
	env := newTestEnv(t, &fakeRasterizer{pages: 2})
	createRunning(t, env, "once")

	require.NoError(t, env.runner.Execute(context.Background(), "once"))

	assert.Equal(t, []conversion.Status{conversion.StatusCompleted}, env.records.statusWrites())
	assert.Equal(t, conversion.StatusCompleted, statusOf(t, env, "once"))
}

func TestRunnerRemovesSpooledSource(t *testing.T) {
	env := newTestEnv(t, &fakeRasterizer{pages: 1})
	createRunning(t, env, "spool")

	require.NoError(t, env.runner.Execute(context.Background(), "spool"))

	_, err := env.local.LoadSource(context.Background(), "spool")
	assert.Error(t, err)
}

func TestRunnerRecoversFromPanic(t *testing.T) {
	env := newTestEnv(t, &fakeRasterizer{panic: "mupdf exploded"})
	createRunning(t, env, "panic")

	err := env.runner.Execute(context.Background(), "panic")
	require.Error(t, err)
	assert.Equal(t, conversion.CodeConversionFailed, conversion.CodeOf(err))

	assert.Equal(t, []conversion.Status{conversion.StatusFailed}, env.records.statusWrites())
	assert.Equal(t, conversion.StatusFailed, statusOf(t, env, "panic"))
}

func TestRunnerSkipsFinishedRecords(t *testing.T) {
	rasterizer := &fakeRasterizer{pages: 1}
	env := newTestEnv(t, rasterizer)
	createRunning(t, env, "done")
	require.NoError(t, env.records.RecordStore.UpdateStatus(context.Background(), "done", conversion.StatusCompleted))

	require.NoError(t, env.runner.Execute(context.Background(), "done"))

	assert.Empty(t, env.records.statusWrites())
	assert.Zero(t, rasterizer.calls.Load())
	assert.Equal(t, conversion.StatusCompleted, statusOf(t, env, "done"))
}

func TestRunnerSkipsUnknownRecords(t *testing.T) {
	env := newTestEnv(t, &fakeRasterizer{pages: 1})

	require.NoError(t, env.runner.Execute(context.Background(), "ghost"))
	assert.Empty(t, env.records.statusWrites())
}

func TestRunnerFailsWhenSourceIsMissing(t *testing.T) {
	rasterizer := &fakeRasterizer{pages: 1}
	env := newTestEnv(t, rasterizer, withPages(func(p conversion.PageStore) conversion.PageStore {
		return &failingPages{PageStore: p, failLoadSource: true}
	}))
	createRunning(t, env, "nosrc")

	err := env.runner.Execute(context.Background(), "nosrc")
	assert.Equal(t, conversion.CodeConversionFailed, conversion.CodeOf(err))
	assert.Equal(t, []conversion.Status{conversion.StatusFailed}, env.records.statusWrites())
	assert.Zero(t, rasterizer.calls.Load())
}

func TestRunnerFailsWhenPageWriteFails(t *testing.T) {
	env := newTestEnv(t, &fakeRasterizer{pages: 4}, withPages(func(p conversion.PageStore) conversion.PageStore {
		return &failingPages{PageStore: p, failSavePage: true}
	}))
	createRunning(t, env, "disk")

	err := env.runner.Execute(context.Background(), "disk")
	assert.Equal(t, conversion.CodeConversionFailed, conversion.CodeOf(err))
	assert.Equal(t, []conversion.Status{conversion.StatusFailed}, env.records.statusWrites())
}

func TestRunnerFailsOnZeroPages(t *testing.T) {
	env := newTestEnv(t, &fakeRasterizer{pages: 0})
	createRunning(t, env, "empty")

	status, err := env.runner.Run(context.Background(), "empty", samplePDF)
	assert.Error(t, err)
	assert.Equal(t, conversion.StatusFailed, status)
	assert.Equal(t, conversion.StatusFailed, statusOf(t, env, "empty"))
}

func TestRunnerWritesFinalStatusAfterCancellation(t *testing.T) {
	env := newTestEnv(t, &fakeRasterizer{pages: 1}, withDelay(time.Hour))
	createRunning(t, env, "cancel")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status, err := env.runner.Run(ctx, "cancel", samplePDF)
	assert.Error(t, err)
	assert.Equal(t, conversion.StatusFailed, status)
	assert.Equal(t, conversion.StatusFailed, statusOf(t, env, "cancel"))
}

func TestRunnerAppliesSimulatedDelay(t *testing.T) {
	env := newTestEnv(t, &fakeRasterizer{pages: 1}, withDelay(30*time.Millisecond))
	createRunning(t, env, "delay")

	started := time.Now()
	status, err := env.runner.Run(context.Background(), "delay", samplePDF)
	require.NoError(t, err)
	assert.Equal(t, conversion.StatusCompleted, status)
	assert.GreaterOrEqual(t, time.Since(started), 30*time.Millisecond)
}

func TestRunnerReportsLostFinalWrite(t *testing.T) {
	env := newTestEnv(t, &fakeRasterizer{pages: 1})
	createRunning(t, env, "raced")
	// 別の実行がすでに最終状態を書き込んだ場合
	require.NoError(t, env.records.RecordStore.UpdateStatus(context.Background(), "raced", conversion.StatusFailed))

	status, err := env.runner.Run(context.Background(), "raced", samplePDF)
	assert.Equal(t, conversion.StatusCompleted, status)
	assert.ErrorIs(t, err, conversion.ErrStatusFinal)
	assert.Equal(t, conversion.StatusFailed, statusOf(t, env, "raced"))
}

func TestRunnerFailsWhenRecordCannotBeRead(t *testing.T) {
	rasterizer := &fakeRasterizer{pages: 1}
	env := newTestEnv(t, rasterizer)
	createRunning(t, env, "unread")

	records := &flakyReads{RecordStore: env.records}
	records.reads.Store(1)
	runner := conversion.NewRunner(records, env.pages, rasterizer, conversion.RunnerOptions{Logger: zerolog.Nop()})

	err := runner.Execute(context.Background(), "unread")
	assert.ErrorContains(t, err, "connection reset")
	assert.Equal(t, []conversion.Status{conversion.StatusFailed}, env.records.statusWrites())
	assert.Equal(t, conversion.StatusFailed, statusOf(t, env, "unread"))
	assert.Zero(t, rasterizer.calls.Load())
}

func TestRunnerReadFailureOnFinishedRecordKeepsStatus(t *testing.T) {
	rasterizer := &fakeRasterizer{pages: 1}
	env := newTestEnv(t, rasterizer)
	createRunning(t, env, "finished")
	require.NoError(t, env.records.RecordStore.UpdateStatus(context.Background(), "finished", conversion.StatusCompleted))

	records := &flakyReads{RecordStore: env.records}
	records.reads.Store(1)
	runner := conversion.NewRunner(records, env.pages, rasterizer, conversion.RunnerOptions{Logger: zerolog.Nop()})

	err := runner.Execute(context.Background(), "finished")
	assert.ErrorContains(t, err, "connection reset")
	assert.NotErrorIs(t, err, conversion.ErrStatusFinal)
	assert.Equal(t, conversion.StatusCompleted, statusOf(t, env, "finished"))
}

func TestRunnerRecoversFromPanicInPageWrite(t *testing.T) {
	env := newTestEnv(t, &fakeRasterizer{pages: 4}, withPages(func(p conversion.PageStore) conversion.PageStore {
		return &failingPages{PageStore: p, panicSavePage: true}
	}))
	createRunning(t, env, "writer")

	err := env.runner.Execute(context.Background(), "writer")
	require.Error(t, err)
	assert.Equal(t, conversion.CodeConversionFailed, conversion.CodeOf(err))
	assert.Equal(t, []conversion.Status{conversion.StatusFailed}, env.records.statusWrites())
	assert.Equal(t, conversion.StatusFailed, statusOf(t, env, "writer"))
}

func TestRunnerRecoversFromPanicLoadingSource(t *testing.T) {
	rasterizer := &fakeRasterizer{pages: 1}
	env := newTestEnv(t, rasterizer, withPages(func(p conversion.PageStore) conversion.PageStore {
		return &failingPages{PageStore: p, panicLoadSource: true}
	}))
	createRunning(t, env, "reader")

	err := env.runner.Execute(context.Background(), "reader")
	require.Error(t, err)
	assert.Equal(t, conversion.CodeConversionFailed, conversion.CodeOf(err))
	assert.Equal(t, []conversion.Status{conversion.StatusFailed}, env.records.statusWrites())
	assert.Zero(t, rasterizer.calls.Load())
}
