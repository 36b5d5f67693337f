package pdbcache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pdbcache"
	"github.com/hupe1980/pdbcache/blobstore"
	"github.com/hupe1980/pdbcache/objectcache"
	"github.com/hupe1980/pdbcache/snapshot"
	"github.com/hupe1980/pdbcache/table"
	"github.com/hupe1980/pdbcache/testutil"
)

func TestDB_ExportImport(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	src, srcTbl := newDB(t)
	testutil.Fill(t, srcTbl, testutil.NewRNG(1).Records(0, 300))

	m, err := src.Export(ctx, blobs, snapshot.WithBlockSize(128))
	require.NoError(t, err)
	assert.Equal(t, 300, m.Records)

	// The target already cached a different version of id 42.
	dst, dstTbl := newDB(t)
	require.NoError(t, dst.Create(ctx, participant(42, "stale")))
	rec, err := dst.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "stale", nameOf(t, rec))

	_, err = dst.Import(ctx, blobs, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 300, dstTbl.Len())

	want, err := srcTbl.Get(ctx, 42)
	require.NoError(t, err)
	got, err := dst.Get(ctx, 42)
	require.NoError(t, err)
	assert.True(t, want.Fields.Equal(got.Fields))

	got, err = dst.Get(ctx, 299)
	require.NoError(t, err)
	assert.Equal(t, int64(299), got.ID)
}

func TestDB_ImportFailureInvalidatesRestoredBlocks(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	src, srcTbl := newDB(t)
	testutil.Fill(t, srcTbl, testutil.NewRNG(1).Records(0, 300))

	m, err := src.Export(ctx, blobs, snapshot.WithBlockSize(128))
	require.NoError(t, err)
	require.Len(t, m.Blocks, 3)

	dst, _ := newDB(t)
	require.NoError(t, dst.Create(ctx, participant(42, "stale")))
	_, err = dst.Get(ctx, 42)
	require.NoError(t, err)

	last := m.Blocks[len(m.Blocks)-1]
	require.NoError(t, blobstore.PutBytes(ctx, blobs, snapshot.ChunkName(m.ID, last.Key), []byte("corrupt")))

	_, err = dst.Import(ctx, blobs, m.ID)
	require.ErrorIs(t, err, snapshot.ErrChecksum)

	// id 42 came from the first chunk, which was restored before the failure.
	want, err := srcTbl.Get(ctx, 42)
	require.NoError(t, err)
	got, err := dst.Get(ctx, 42)
	require.NoError(t, err)
	assert.True(t, want.Fields.Equal(got.Fields))
}

func TestDB_ImportMissingSnapshot(t *testing.T) {
	db, _ := newDB(t)

	_, err := db.Import(context.Background(), blobstore.NewMemoryStore(), "missing")
	assert.ErrorIs(t, err, snapshot.ErrNotFound)
}

func TestDB_ExportAfterClose(t *testing.T) {
	db, err := pdbcache.New(table.NewMemoryTable(), objectcache.NewMemoryStore())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.Export(context.Background(), blobstore.NewMemoryStore())
	assert.ErrorIs(t, err, pdbcache.ErrClosed)
}
