package pebble

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pdbcache/record"
	"github.com/hupe1980/pdbcache/table"
)

func openTestTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := Open(filepath.Join(t.TempDir(), "testdb"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tbl.Close() })
	return tbl
}

func rec(id int64, name string) record.Record {
	return record.Record{ID: id, Fields: record.Fields{"name": record.String(name)}}
}

func TestRowKeyOrder(t *testing.T) {
	ids := []int64{math.MinInt64, -100, -1, 0, 1, 99, 100, math.MaxInt64}
	for i := 1; i < len(ids); i++ {
		assert.Less(t, string(rowKey(ids[i-1])), string(rowKey(ids[i])))
		assert.Less(t, string(rowKey(ids[i])), string(rowsUpperBound))
	}
	for _, id := range ids {
		got, ok := parseRowKey(rowKey(id))
		require.True(t, ok)
		assert.Equal(t, id, got)
	}
}

func TestTable_CRUD(t *testing.T) {
	tbl := openTestTable(t)
	ctx := context.Background()

	_, err := tbl.Get(ctx, 7)
	assert.ErrorIs(t, err, table.ErrNotFound)

	require.NoError(t, tbl.Put(ctx, rec(7, "ada")))
	got, err := tbl.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.True(t, got.Fields.Equal(rec(7, "ada").Fields))

	require.NoError(t, tbl.Put(ctx, rec(7, "grace")))
	got, err = tbl.Get(ctx, 7)
	require.NoError(t, err)
	name, _ := got.Get("name")
	assert.Equal(t, "grace", name.StringValue())

	require.NoError(t, tbl.Delete(ctx, 7))
	_, err = tbl.Get(ctx, 7)
	assert.ErrorIs(t, err, table.ErrNotFound)
	require.NoError(t, tbl.Delete(ctx, 7))
}

func TestTable_Insert(t *testing.T) {
	tbl := openTestTable(t)
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tbl.Insert(ctx, rec(7, "ada"))
			if err == nil {
				won.Add(1)
				return
			}
			assert.ErrorIs(t, err, table.ErrExists)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), won.Load())

	require.NoError(t, tbl.Put(ctx, rec(7, "grace")))
	assert.ErrorIs(t, tbl.Insert(ctx, rec(7, "ada")), table.ErrExists)
	got, err := tbl.Get(ctx, 7)
	require.NoError(t, err)
	name, _ := got.Get("name")
	assert.Equal(t, "grace", name.StringValue())
}

func TestTable_QueryRange(t *testing.T) {
	tbl := openTestTable(t)
	ctx := context.Background()

	require.NoError(t, tbl.PutBatch(ctx, []record.Record{
		rec(205, "a"), rec(199, "b"), rec(200, "c"), rec(299, "d"), rec(300, "e"), rec(-5, "f"),
	}))

	recs, err := tbl.QueryRange(ctx, 200, 300)
	require.NoError(t, err)
	var ids []int64
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{200, 205, 299}, ids)

	recs, err = tbl.QueryRange(ctx, -100, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(-5), recs[0].ID)

	recs, err = tbl.QueryRange(ctx, 1000, 1100)
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = tbl.QueryRange(ctx, 300, 200)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestTable_Scan(t *testing.T) {
	tbl := openTestTable(t)
	ctx := context.Background()

	require.NoError(t, tbl.PutBatch(ctx, []record.Record{rec(3, "c"), rec(1, "a"), rec(math.MaxInt64, "z")}))

	var ids []int64
	require.NoError(t, tbl.Scan(ctx, func(r record.Record) error {
		ids = append(ids, r.ID)
		return nil
	}))
	assert.Equal(t, []int64{1, 3, math.MaxInt64}, ids)

	stop := errors.New("stop")
	err := tbl.Scan(ctx, func(record.Record) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestTable_Reopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "testdb")
	ctx := context.Background()

	tbl, err := Open(dir, Options{Sync: true})
	require.NoError(t, err)
	require.NoError(t, tbl.Put(ctx, rec(42, "kept")))
	require.NoError(t, tbl.Close())
	require.NoError(t, tbl.Close())

	_, err = tbl.Get(ctx, 42)
	assert.ErrorIs(t, err, table.ErrClosed)

	tbl, err = Open(dir, Options{ReadOnly: true})
	require.NoError(t, err)
	defer tbl.Close()

	got, err := tbl.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.ID)
}
