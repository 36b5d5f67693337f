package table

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pdbcache/record"
)

func TestMemoryTable(t *testing.T) {
	tbl := NewMemoryTable()
	ctx := context.Background()

	for _, id := range []int64{205, 199, 200, 299, 300, -1, -100, math.MaxInt64} {
		require.NoError(t, tbl.Put(ctx, record.Record{ID: id, Fields: record.Fields{"id": record.Int(id)}}))
	}
	assert.Equal(t, 8, tbl.Len())

	tests := []struct {
		name   string
		lo, hi int64
		want   []int64
	}{
		{"block 2", 200, 300, []int64{200, 205, 299}},
		{"block -1", -100, 0, []int64{-100, -1}},
		{"empty block", 9999 * 100, 10000 * 100, nil},
		{"inverted", 300, 200, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := tbl.QueryRange(ctx, tt.lo, tt.hi)
			require.NoError(t, err)
			var ids []int64
			for _, r := range recs {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
	assert.Equal(t, int64(len(tests)), tbl.Queries())

	var all []int64
	require.NoError(t, tbl.Scan(ctx, func(r record.Record) error {
		all = append(all, r.ID)
		return nil
	}))
	assert.Equal(t, []int64{-100, -1, 199, 200, 205, 299, 300, math.MaxInt64}, all)
}

func TestMemoryTable_Insert(t *testing.T) {
	tbl := NewMemoryTable()
	ctx := context.Background()

	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := tbl.Insert(ctx, record.Record{ID: 7, Fields: record.Fields{"n": record.Int(int64(i))}})
			if err == nil {
				won.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrExists)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
	assert.Equal(t, 1, tbl.Len())
}

func TestMemoryTable_GetDelete(t *testing.T) {
	tbl := NewMemoryTable()
	ctx := context.Background()

	_, err := tbl.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, tbl.Put(ctx, record.Record{ID: 1, Fields: record.Fields{"x": record.Int(1)}}))
	got, err := tbl.Get(ctx, 1)
	require.NoError(t, err)

	// returned records are copies
	got.Fields["x"] = record.Int(2)
	again, err := tbl.Get(ctx, 1)
	require.NoError(t, err)
	v, _ := again.Get("x")
	assert.Equal(t, int64(1), v.I64)

	require.NoError(t, tbl.Delete(ctx, 1))
	_, err = tbl.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	recs, err := tbl.QueryRange(ctx, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMemoryTable_ScanStops(t *testing.T) {
	tbl := NewMemoryTable()
	ctx := context.Background()
	require.NoError(t, tbl.Put(ctx, record.Record{ID: 1}))
	require.NoError(t, tbl.Put(ctx, record.Record{ID: 2}))

	stop := errors.New("stop")
	calls := 0
	err := tbl.Scan(ctx, func(record.Record) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
