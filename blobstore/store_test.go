package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, PutBytes(ctx, store, "snapshots/a/1.blk", []byte("hello")))

		data, err := GetBytes(ctx, store, "snapshots/a/1.blk")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, PutBytes(ctx, store, "over", []byte("one")))
		require.NoError(t, store.Put(ctx, "over", strings.NewReader("two")))

		data, err := GetBytes(ctx, store, "over")
		require.NoError(t, err)
		assert.Equal(t, "two", string(data))
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, PutBytes(ctx, store, "snapshots/a/0.blk", []byte("x")))
		require.NoError(t, PutBytes(ctx, store, "snapshots/b/MANIFEST", []byte("y")))

		names, err := store.List(ctx, "snapshots/a/")
		require.NoError(t, err)
		assert.Equal(t, []string{"snapshots/a/0.blk", "snapshots/a/1.blk"}, names)

		names, err = store.List(ctx, "snapshots/")
		require.NoError(t, err)
		assert.Len(t, names, 3)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, PutBytes(ctx, store, "gone", []byte("x")))
		require.NoError(t, store.Delete(ctx, "gone"))
		require.NoError(t, store.Delete(ctx, "gone"))

		_, err := store.Get(ctx, "gone")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, PutBytes(ctx, store, "k", []byte("abc")))

	rc, err := store.Get(ctx, "k")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	data[0] = 'z'

	again, err := GetBytes(ctx, store, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
	assert.Equal(t, 1, store.Len())
}

func TestLocalStore(t *testing.T) {
	testStore(t, NewLocalStore(t.TempDir()))
}

func TestLocalStore_Layout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store := NewLocalStore(root)

	require.NoError(t, PutBytes(ctx, store, "snapshots/x/7.blk", []byte("data")))

	_, err := os.Stat(filepath.Join(root, "snapshots", "x", "7.blk"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "snapshots", "x"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestLocalStore_MissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "nope"))

	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_RejectsEscapingNames(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir())

	assert.Error(t, PutBytes(ctx, store, "../outside", []byte("x")))
	_, err := store.Get(ctx, "/etc/passwd")
	assert.Error(t, err)
}
