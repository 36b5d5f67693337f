package table

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/pdbcache/record"
)

// orderKey maps an int64 id onto uint64 preserving order.
func orderKey(id int64) uint64 {
	return uint64(id) ^ (1 << 63)
}

func fromOrderKey(k uint64) int64 {
	return int64(k ^ (1 << 63))
}

// MemoryTable is an in-process Table. Row ids are indexed in a roaring64
// bitmap, which gives ordered range scans without sorting.
type MemoryTable struct {
	mu   sync.RWMutex
	ids  *roaring64.Bitmap
	rows map[int64]record.Fields

	queries atomic.Int64
}

// NewMemoryTable creates an empty table.
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{
		ids:  roaring64.New(),
		rows: make(map[int64]record.Fields),
	}
}

// QueryRange implements Table.
func (t *MemoryTable) QueryRange(ctx context.Context, lo, hi int64) ([]record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.queries.Add(1)
	return t.queryRange(lo, hi), nil
}

func (t *MemoryTable) queryRange(lo, hi int64) []record.Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []record.Record
	if lo >= hi {
		return out
	}

	it := t.ids.Iterator()
	it.AdvanceIfNeeded(orderKey(lo))
	for it.HasNext() {
		id := fromOrderKey(it.Next())
		if id >= hi {
			break
		}
		out = append(out, record.Record{ID: id, Fields: t.rows[id].Clone()})
	}
	return out
}

// Get implements Table.
func (t *MemoryTable) Get(ctx context.Context, id int64) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	f, ok := t.rows[id]
	if !ok {
		return record.Record{}, ErrNotFound
	}
	return record.Record{ID: id, Fields: f.Clone()}, nil
}

// Put implements Table.
func (t *MemoryTable) Put(ctx context.Context, rec record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.ids.Add(orderKey(rec.ID))
	t.rows[rec.ID] = rec.Fields.Clone()
	return nil
}

// Insert implements Inserter.
func (t *MemoryTable) Insert(ctx context.Context, rec record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.rows[rec.ID]; ok {
		return ErrExists
	}
	t.ids.Add(orderKey(rec.ID))
	t.rows[rec.ID] = rec.Fields.Clone()
	return nil
}

// Delete implements Table.
func (t *MemoryTable) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.ids.Remove(orderKey(id))
	delete(t.rows, id)
	return nil
}

// Scan implements Table.
func (t *MemoryTable) Scan(ctx context.Context, fn func(record.Record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	recs := t.queryRange(math.MinInt64, math.MaxInt64)
	// queryRange excludes hi
	if last, err := t.Get(ctx, math.MaxInt64); err == nil {
		recs = append(recs, last)
	}
	for _, r := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of rows.
func (t *MemoryTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Queries returns the number of QueryRange calls served.
func (t *MemoryTable) Queries() int64 {
	return t.queries.Load()
}

var _ Table = (*MemoryTable)(nil)
