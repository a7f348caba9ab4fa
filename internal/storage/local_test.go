package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSourceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.SaveSource(ctx, "job-1", []byte("%PDF-1.4")))

	data, err := store.LoadSource(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	require.NoError(t, store.DeleteSource(ctx, "job-1"))
	_, err = store.LoadSource(ctx, "job-1")
	assert.Error(t, err)

	// 2回目の削除はエラーにしない
	assert.NoError(t, store.DeleteSource(ctx, "job-1"))
}

func TestLocalLoadPagesNumericOrder(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	// 書き込み順とページ順を変えておく
	for _, index := range []int{11, 3, 0, 10, 1, 2, 9, 4, 8, 5, 7, 6} {
		require.NoError(t, store.SavePage(ctx, "job-12", index, []byte(fmt.Sprintf("page-%d", index))))
	}

	pages, err := store.LoadPages(ctx, "job-12")
	require.NoError(t, err)
	require.Len(t, pages, 12)
	for i, page := range pages {
		assert.Equal(t, fmt.Sprintf("page-%d", i), string(page))
	}
}

func TestLocalLoadPagesIgnoresForeignFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewLocal(root)
	require.NoError(t, err)

	require.NoError(t, store.SavePage(ctx, "job-1", 0, []byte("a")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "job-1", "thumbs.db"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "job-1", "Page_5.png.d"), 0o755))

	pages, err := store.LoadPages(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a")}, pages)
}

func TestLocalPagesAreIsolatedPerID(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.SavePage(ctx, "job-a", 0, []byte("a0")))
	require.NoError(t, store.SavePage(ctx, "job-b", 0, []byte("b0")))
	require.NoError(t, store.SavePage(ctx, "job-b", 1, []byte("b1")))

	a, err := store.LoadPages(ctx, "job-a")
	require.NoError(t, err)
	b, err := store.LoadPages(ctx, "job-b")
	require.NoError(t, err)

	assert.Equal(t, [][]byte{[]byte("a0")}, a)
	assert.Equal(t, [][]byte{[]byte("b0"), []byte("b1")}, b)
}

func TestLocalLoadPagesMissingDirectory(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	pages, err := store.LoadPages(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestLocalRejectsTraversalIDs(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, store.SavePage(ctx, "../outside", 0, []byte("x")), ErrInvalidID)
	assert.ErrorIs(t, store.SaveSource(ctx, "a/b", []byte("x")), ErrInvalidID)
	_, err = store.LoadPages(ctx, "..")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestLocalSavePageOverwrites(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.SavePage(ctx, "job-1", 0, []byte("old")))
	require.NoError(t, store.SavePage(ctx, "job-1", 0, []byte("new")))

	pages, err := store.LoadPages(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("new")}, pages)
}
