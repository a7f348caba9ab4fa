package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pdf2img/internal/config"
	"github.com/yourusername/pdf2img/internal/jobs"
	"github.com/yourusername/pdf2img/internal/server"
	"github.com/yourusername/pdf2img/internal/storage"
	"github.com/yourusername/pdf2img/internal/store"
)

type nopExecutor struct{}

func (nopExecutor) Execute(context.Context, string) error { return nil }

func TestOpenRecordStore(t *testing.T) {
	ctx := context.Background()

	records, closeFn, err := openRecordStore(ctx, &config.Config{StoreBackend: config.StoreMemory}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, records)
	closeFn()

	records, closeFn, err = openRecordStore(ctx, &config.Config{
		StoreBackend: config.StoreSQLite,
		SQLitePath:   filepath.Join(t.TempDir(), "test.db"),
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &store.SQLite{}, records)
	pinger, ok := records.(server.Pinger)
	require.True(t, ok)
	assert.NoError(t, pinger.Ping(ctx))
	closeFn()

	_, _, err = openRecordStore(ctx, &config.Config{StoreBackend: "mongo"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestOpenPageStore(t *testing.T) {
	pages, closeFn, err := openPageStore(context.Background(), &config.Config{
		StorageBackend: config.StorageLocal,
		ResultsDir:     t.TempDir(),
	}, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &storage.Local{}, pages)

	_, _, err = openPageStore(context.Background(), &config.Config{StorageBackend: "s3"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewSchedulerLocal(t *testing.T) {
	s, err := newScheduler(&config.Config{QueueBackend: config.QueueLocal}, nopExecutor{}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &jobs.Dispatcher{}, s)
	require.NoError(t, s.Shutdown(context.Background()))
}

type deadlineExecutor struct {
	deadline chan bool
}

func (e deadlineExecutor) Execute(ctx context.Context, id string) error {
	_, ok := ctx.Deadline()
	e.deadline <- ok
	return nil
}

func TestNewSchedulerAppliesJobTimeout(t *testing.T) {
	exec := deadlineExecutor{deadline: make(chan bool, 1)}
	s, err := newScheduler(&config.Config{QueueBackend: config.QueueLocal, JobTimeout: time.Minute}, exec, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.Schedule(context.Background(), "job"))
	require.NoError(t, s.Shutdown(context.Background()))
	assert.True(t, <-exec.deadline)
}
