package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pdbcache/blobstore"
	"github.com/hupe1980/pdbcache/codec"
	"github.com/hupe1980/pdbcache/record"
	"github.com/hupe1980/pdbcache/resource"
	"github.com/hupe1980/pdbcache/table"
	"github.com/hupe1980/pdbcache/testutil"
)

func sourceTable(t *testing.T) (*table.MemoryTable, []record.Record) {
	t.Helper()
	rng := testutil.NewRNG(42)

	var recs []record.Record
	for _, id := range rng.SparseIDs(250, 0.2) {
		recs = append(recs, rng.Record(id))
	}
	recs = append(recs, rng.Record(-7), rng.Record(1_000_000))

	tbl := table.NewMemoryTable()
	testutil.Fill(t, tbl, recs)
	return tbl, recs
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src, recs := sourceTable(t)
	blobs := blobstore.NewMemoryStore()

	m, err := Export(ctx, src, blobs, WithBlockSize(100))
	require.NoError(t, err)

	assert.Equal(t, len(recs), m.Records)
	assert.Equal(t, int64(-7), m.MinID)
	assert.Equal(t, int64(1_000_000), m.MaxID)
	assert.Equal(t, "zstd", m.Compression)

	keys := make([]int64, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		keys = append(keys, b.Key)
	}
	assert.Equal(t, []int64{-1, 0, 1, 2, 10_000}, keys)

	dst := table.NewMemoryTable()
	got, err := Import(ctx, blobs, m.ID, dst)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, len(recs), dst.Len())

	for _, want := range recs {
		rec, err := dst.Get(ctx, want.ID)
		require.NoError(t, err)
		assert.True(t, want.Fields.Equal(rec.Fields), "id %d", want.ID)
	}
}

func TestExportEmptyTable(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemoryStore()

	m, err := Export(ctx, table.NewMemoryTable(), blobs)
	require.NoError(t, err)
	assert.True(t, m.Empty())
	assert.Empty(t, m.Blocks)
	assert.Equal(t, 1, blobs.Len())

	_, err = Import(ctx, blobs, m.ID, table.NewMemoryTable())
	require.NoError(t, err)
}

func TestCompressors(t *testing.T) {
	ctx := context.Background()
	src, recs := sourceTable(t)

	for _, c := range []codec.Compressor{codec.None{}, codec.LZ4{}, codec.Zstd{}} {
		t.Run(c.Name(), func(t *testing.T) {
			blobs := blobstore.NewMemoryStore()
			m, err := Export(ctx, src, blobs, WithCompressor(c))
			require.NoError(t, err)
			assert.Equal(t, c.Name(), m.Compression)

			dst := table.NewMemoryTable()
			_, err = Import(ctx, blobs, m.ID, dst)
			require.NoError(t, err)
			assert.Equal(t, len(recs), dst.Len())
		})
	}
}

func TestListAndLatest(t *testing.T) {
	ctx := context.Background()
	src, _ := sourceTable(t)
	blobs := blobstore.NewMemoryStore()

	_, err := Latest(ctx, blobs)
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := Export(ctx, src, blobs)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := Export(ctx, src, blobs)
	require.NoError(t, err)

	// An incomplete snapshot has chunks but no manifest.
	require.NoError(t, blobstore.PutBytes(ctx, blobs, "snapshots/partial/0.blk", []byte("x")))

	ids, err := List(ctx, blobs)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, ids)

	latest, err := Latest(ctx, blobs)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest)
}

func TestImportMissing(t *testing.T) {
	_, err := Import(context.Background(), blobstore.NewMemoryStore(), "nope", table.NewMemoryTable())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImportChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	src, _ := sourceTable(t)
	blobs := blobstore.NewMemoryStore()

	m, err := Export(ctx, src, blobs, WithBlockSize(100))
	require.NoError(t, err)

	require.NoError(t, blobstore.PutBytes(ctx, blobs, ChunkName(m.ID, m.Blocks[0].Key), []byte("corrupt")))

	_, err = Import(ctx, blobs, m.ID, table.NewMemoryTable())
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestImportPartialFailureReturnsManifest(t *testing.T) {
	ctx := context.Background()
	src, _ := sourceTable(t)
	blobs := blobstore.NewMemoryStore()

	m, err := Export(ctx, src, blobs, WithBlockSize(100))
	require.NoError(t, err)
	require.Greater(t, len(m.Blocks), 1)

	last := m.Blocks[len(m.Blocks)-1]
	require.NoError(t, blobstore.PutBytes(ctx, blobs, ChunkName(m.ID, last.Key), []byte("corrupt")))

	dst := table.NewMemoryTable()
	got, err := Import(ctx, blobs, m.ID, dst)
	require.ErrorIs(t, err, ErrChecksum)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.Blocks, got.Blocks)

	// earlier chunks were restored before the failure
	first := m.Blocks[0]
	_, err = dst.Get(ctx, first.MinID)
	assert.NoError(t, err)
	_, err = dst.Get(ctx, last.MinID)
	assert.ErrorIs(t, err, table.ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	src, _ := sourceTable(t)
	blobs := blobstore.NewMemoryStore()

	m, err := Export(ctx, src, blobs)
	require.NoError(t, err)

	require.NoError(t, Delete(ctx, blobs, m.ID))
	assert.Equal(t, 0, blobs.Len())

	ids, err := List(ctx, blobs)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRateLimited(t *testing.T) {
	ctx := context.Background()
	src, recs := sourceTable(t)
	blobs := blobstore.NewLocalStore(t.TempDir())
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 30})

	m, err := Export(ctx, src, blobs, WithResourceController(rc))
	require.NoError(t, err)

	dst := table.NewMemoryTable()
	_, err = Import(ctx, blobs, m.ID, dst, WithResourceController(rc))
	require.NoError(t, err)
	assert.Equal(t, len(recs), dst.Len())
}

func TestInvalidBlockSize(t *testing.T) {
	_, err := Export(context.Background(), table.NewMemoryTable(), blobstore.NewMemoryStore(), WithBlockSize(0))
	assert.Error(t, err)
}

func TestManifestTimestamp(t *testing.T) {
	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	m, err := Export(context.Background(), table.NewMemoryTable(), blobstore.NewMemoryStore(),
		WithClock(func() time.Time { return ts }))
	require.NoError(t, err)
	assert.Equal(t, ts, m.CreatedAt)
}
