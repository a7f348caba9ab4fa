package conversion_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pdf2img/internal/conversion"
	"github.com/yourusername/pdf2img/internal/jobs"
	"github.com/yourusername/pdf2img/internal/storage"
	"github.com/yourusername/pdf2img/internal/store"
)

var samplePDF = []byte("%PDF-1.4\n% test document\n")

// fakeRasterizer は pages 枚の擬似画像を返します。
type fakeRasterizer struct {
	pages   int
	err     error
	panic   any
	release chan struct{}
	calls   atomic.Int32
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, pdf []byte) ([][]byte, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.panic != nil {
		panic(f.panic)
	}
	if f.err != nil {
		return nil, f.err
	}
	images := make([][]byte, f.pages)
	for i := range images {
		images[i] = []byte(fmt.Sprintf("image-%d", i))
	}
	return images, nil
}

// countingStore は UpdateStatus の呼び出しを数えます。
type countingStore struct {
	conversion.RecordStore
	mu      sync.Mutex
	updates []conversion.Status
}

func (s *countingStore) UpdateStatus(ctx context.Context, id string, status conversion.Status) error {
	s.mu.Lock()
	s.updates = append(s.updates, status)
	s.mu.Unlock()
	return s.RecordStore.UpdateStatus(ctx, id, status)
}

func (s *countingStore) statusWrites() []conversion.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conversion.Status(nil), s.updates...)
}

// failingPages は指定された操作を失敗させます。
type failingPages struct {
	conversion.PageStore
	failSavePage    bool
	failLoadSource  bool
	panicSavePage   bool
	panicLoadSource bool
}

func (p *failingPages) SavePage(ctx context.Context, id string, index int, data []byte) error {
	if p.panicSavePage && index == 1 {
		panic("page writer exploded")
	}
	if p.failSavePage && index == 1 {
		return errors.New("disk full")
	}
	return p.PageStore.SavePage(ctx, id, index, data)
}

func (p *failingPages) LoadSource(ctx context.Context, id string) ([]byte, error) {
	if p.panicLoadSource {
		panic("source reader exploded")
	}
	if p.failLoadSource {
		return nil, errors.New("source missing")
	}
	return p.PageStore.LoadSource(ctx, id)
}

// flakyReads は最初の reads 回の GetByID を失敗させます。
type flakyReads struct {
	conversion.RecordStore
	reads atomic.Int32
}

func (s *flakyReads) GetByID(ctx context.Context, id string) (*conversion.Conversion, error) {
	if s.reads.Add(-1) >= 0 {
		return nil, errors.New("connection reset")
	}
	return s.RecordStore.GetByID(ctx, id)
}

type failingScheduler struct{}

func (failingScheduler) Schedule(ctx context.Context, id string) error {
	return errors.New("queue unavailable")
}

type testEnv struct {
	records    *countingStore
	pages      conversion.PageStore
	local      *storage.Local
	runner     *conversion.Runner
	dispatcher *jobs.Dispatcher
	svc        *conversion.Service
}

type envOption func(*envConfig)

type envConfig struct {
	scheduler   conversion.Scheduler
	wrapPages   func(conversion.PageStore) conversion.PageStore
	maxFileSize int64
	delay       time.Duration
}

func withScheduler(s conversion.Scheduler) envOption {
	return func(c *envConfig) { c.scheduler = s }
}

func withPages(wrap func(conversion.PageStore) conversion.PageStore) envOption {
	return func(c *envConfig) { c.wrapPages = wrap }
}

func withMaxFileSize(n int64) envOption {
	return func(c *envConfig) { c.maxFileSize = n }
}

func withDelay(d time.Duration) envOption {
	return func(c *envConfig) { c.delay = d }
}

func newTestEnv(t *testing.T, rasterizer conversion.Rasterizer, opts ...envOption) *testEnv {
	t.Helper()
	cfg := &envConfig{}
	for _, o := range opts {
		o(cfg)
	}

	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	var pages conversion.PageStore = local
	if cfg.wrapPages != nil {
		pages = cfg.wrapPages(local)
	}

	records := &countingStore{RecordStore: store.NewMemory()}
	runner := conversion.NewRunner(records, pages, rasterizer, conversion.RunnerOptions{
		PageWriteConcurrency: 4,
		SimulateDelay:        cfg.delay,
		Logger:               zerolog.Nop(),
	})
	dispatcher := jobs.NewDispatcher(runner, zerolog.Nop())

	scheduler := cfg.scheduler
	if scheduler == nil {
		scheduler = dispatcher
	}
	svc := conversion.NewService(records, pages, scheduler, conversion.ServiceOptions{
		MaxFileSize: cfg.maxFileSize,
		Logger:      zerolog.Nop(),
	})

	env := &testEnv{
		records:    records,
		pages:      pages,
		local:      local,
		runner:     runner,
		dispatcher: dispatcher,
		svc:        svc,
	}
	t.Cleanup(func() { _ = dispatcher.Shutdown(context.Background()) })
	return env
}

// drain はバックグラウンドの変換がすべて終わるまで待ちます。
func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.dispatcher.Shutdown(ctx))
}

func pdfUpload(name string) conversion.Upload {
	return conversion.Upload{Filename: name, ContentType: "application/pdf", Data: samplePDF}
}
