package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pdf2img/internal/conversion"
)

// runRecordStoreContract はすべてのバックエンドが満たすべき振る舞いを検証します。
func runRecordStoreContract(t *testing.T, newStore func(t *testing.T) conversion.RecordStore) {
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	newRecord := func(id string, offset time.Duration) *conversion.Conversion {
		return &conversion.Conversion{
			ID:        id,
			Filename:  id + ".pdf",
			Status:    conversion.StatusRunning,
			StartDate: base.Add(offset),
		}
	}

	t.Run("create and get", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Create(ctx, newRecord("c-1", 0)))

		got, err := s.GetByID(ctx, "c-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "c-1", got.ID)
		assert.Equal(t, "c-1.pdf", got.Filename)
		assert.Equal(t, conversion.StatusRunning, got.Status)
		assert.True(t, base.Equal(got.StartDate), "start date %s", got.StartDate)
	})

	t.Run("missing record is nil", func(t *testing.T) {
		s := newStore(t)
		got, err := s.GetByID(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("duplicate id", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Create(ctx, newRecord("dup", 0)))
		err := s.Create(ctx, newRecord("dup", time.Minute))
		assert.ErrorIs(t, err, conversion.ErrDuplicateID)
	})

	t.Run("get all", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		require.NoError(t, s.Create(ctx, newRecord("b", 2*time.Second)))
		require.NoError(t, s.Create(ctx, newRecord("a", time.Second)))
		require.NoError(t, s.Create(ctx, newRecord("c", 3*time.Second)))

		all, err = s.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		ids := []string{all[0].ID, all[1].ID, all[2].ID}
		assert.Equal(t, []string{"a", "b", "c"}, ids)
	})

	t.Run("final status is written once", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Create(ctx, newRecord("once", 0)))

		require.NoError(t, s.UpdateStatus(ctx, "once", conversion.StatusCompleted))

		err := s.UpdateStatus(ctx, "once", conversion.StatusFailed)
		assert.ErrorIs(t, err, conversion.ErrStatusFinal)

		got, err := s.GetByID(ctx, "once")
		require.NoError(t, err)
		assert.Equal(t, conversion.StatusCompleted, got.Status)
	})

	t.Run("update unknown id", func(t *testing.T) {
		err := newStore(t).UpdateStatus(context.Background(), "missing", conversion.StatusFailed)
		assert.ErrorIs(t, err, conversion.ErrRecordNotFound)
	})

	t.Run("update to running is rejected", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Create(ctx, newRecord("r", 0)))

		err := s.UpdateStatus(ctx, "r", conversion.StatusRunning)
		require.Error(t, err)

		got, err := s.GetByID(ctx, "r")
		require.NoError(t, err)
		assert.Equal(t, conversion.StatusRunning, got.Status)
	})

	t.Run("concurrent final writes", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Create(ctx, newRecord("race", 0)))

		var (
			wg        sync.WaitGroup
			succeeded atomic.Int32
		)
		for i := 0; i < 8; i++ {
			status := conversion.StatusCompleted
			if i%2 == 1 {
				status = conversion.StatusFailed
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.UpdateStatus(ctx, "race", status)
				switch {
				case err == nil:
					succeeded.Add(1)
				case errors.Is(err, conversion.ErrStatusFinal):
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), succeeded.Load())
		got, err := s.GetByID(ctx, "race")
		require.NoError(t, err)
		assert.True(t, got.Status.Terminal())
	})

	t.Run("concurrent creates", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Create(ctx, newRecord(fmt.Sprintf("p-%02d", i), time.Duration(i)*time.Second)))
			}()
		}
		wg.Wait()

		all, err := s.GetAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 10)
	})
}
