// Package pebble provides a table.Table stored in a Pebble LSM database.
//
// Rows live under "r/" followed by the id as eight big-endian bytes with the
// sign bit flipped, so key order equals id order and a block reload is a
// single bounded iterator scan. Values are record.Fields in their binary
// encoding.
package pebble

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble/v2"

	"github.com/hupe1980/pdbcache/record"
	"github.com/hupe1980/pdbcache/table"
)

var rowPrefix = []byte("r/")

const keyLen = 2 + 8

func rowKey(id int64) []byte {
	k := make([]byte, keyLen)
	copy(k, rowPrefix)
	binary.BigEndian.PutUint64(k[2:], uint64(id)^(1<<63))
	return k
}

func parseRowKey(k []byte) (int64, bool) {
	if len(k) != keyLen || k[0] != rowPrefix[0] || k[1] != rowPrefix[1] {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(k[2:]) ^ (1 << 63)), true
}

// rowsUpperBound is the first key past every row key.
var rowsUpperBound = []byte("r0")

// Options configures a Table.
type Options struct {
	// ReadOnly opens the database without write access.
	ReadOnly bool

	// CacheSizeMB is the Pebble block cache size. Minimum 8 MB.
	CacheSizeMB int64

	// Sync makes every write durable before returning.
	Sync bool

	// Logger receives Pebble's internal log lines.
	Logger *slog.Logger
}

// Table implements table.Table on Pebble.
type Table struct {
	db     *pebble.DB
	sync   bool
	closed atomic.Bool

	insertMu sync.Mutex
}

// Open opens or creates a table at path.
func Open(path string, opts Options) (*Table, error) {
	cacheSize := opts.CacheSizeMB << 20
	if cacheSize < 8<<20 {
		cacheSize = 8 << 20
	}
	cache := pebble.NewCache(cacheSize)
	defer cache.Unref()

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	db, err := pebble.Open(path, &pebble.Options{
		Cache:    cache,
		Logger:   pebbleLogger{logger: logger},
		ReadOnly: opts.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", path, err)
	}
	return &Table{db: db, sync: opts.Sync}, nil
}

func (t *Table) writeOpts() *pebble.WriteOptions {
	if t.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// QueryRange implements table.Table.
func (t *Table) QueryRange(ctx context.Context, lo, hi int64) ([]record.Record, error) {
	if t.closed.Load() {
		return nil, table.ErrClosed
	}
	if lo >= hi {
		return nil, nil
	}
	return t.scan(ctx, rowKey(lo), rowKey(hi), nil)
}

func (t *Table) scan(ctx context.Context, lower, upper []byte, fn func(record.Record) error) ([]record.Record, error) {
	iter, err := t.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []record.Record
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, ok := parseRowKey(iter.Key())
		if !ok {
			continue
		}
		var fields record.Fields
		if err := fields.UnmarshalBinary(iter.Value()); err != nil {
			return nil, fmt.Errorf("pebble: decode row %d: %w", id, err)
		}
		rec := record.Record{ID: id, Fields: fields}
		if fn != nil {
			if err := fn(rec); err != nil {
				return nil, err
			}
			continue
		}
		out = append(out, rec)
	}
	return out, iter.Error()
}

// Get implements table.Table.
func (t *Table) Get(ctx context.Context, id int64) (record.Record, error) {
	if t.closed.Load() {
		return record.Record{}, table.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return record.Record{}, err
	}

	val, closer, err := t.db.Get(rowKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return record.Record{}, table.ErrNotFound
	}
	if err != nil {
		return record.Record{}, err
	}
	defer closer.Close()

	var fields record.Fields
	if err := fields.UnmarshalBinary(val); err != nil {
		return record.Record{}, fmt.Errorf("pebble: decode row %d: %w", id, err)
	}
	return record.Record{ID: id, Fields: fields}, nil
}

// Put implements table.Table.
func (t *Table) Put(ctx context.Context, rec record.Record) error {
	if t.closed.Load() {
		return table.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := rec.Fields.MarshalBinary()
	if err != nil {
		return err
	}
	return t.db.Set(rowKey(rec.ID), val, t.writeOpts())
}

// Insert implements table.Inserter. The database directory is locked to
// one process, so serializing inserts here makes the check and the write
// atomic.
func (t *Table) Insert(ctx context.Context, rec record.Record) error {
	t.insertMu.Lock()
	defer t.insertMu.Unlock()

	if _, err := t.Get(ctx, rec.ID); err == nil {
		return table.ErrExists
	} else if !errors.Is(err, table.ErrNotFound) {
		return err
	}
	return t.Put(ctx, rec)
}

// PutBatch writes many records atomically.
func (t *Table) PutBatch(ctx context.Context, recs []record.Record) error {
	if t.closed.Load() {
		return table.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := t.db.NewBatch()
	defer batch.Close()
	for _, rec := range recs {
		val, err := rec.Fields.MarshalBinary()
		if err != nil {
			return err
		}
		if err := batch.Set(rowKey(rec.ID), val, nil); err != nil {
			return err
		}
	}
	return batch.Commit(t.writeOpts())
}

// Delete implements table.Table.
func (t *Table) Delete(ctx context.Context, id int64) error {
	if t.closed.Load() {
		return table.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.db.Delete(rowKey(id), t.writeOpts())
}

// Scan implements table.Table.
func (t *Table) Scan(ctx context.Context, fn func(record.Record) error) error {
	if t.closed.Load() {
		return table.ErrClosed
	}
	_, err := t.scan(ctx, rowPrefix, rowsUpperBound, fn)
	return err
}

// Size returns the on-disk footprint in bytes.
func (t *Table) Size() uint64 {
	return t.db.Metrics().DiskSpaceUsage()
}

// Close closes the database.
func (t *Table) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.db.Close()
}

type pebbleLogger struct {
	logger *slog.Logger
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), slog.String("component", "pebble"))
}

func (l pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), slog.String("component", "pebble"))
}

func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), slog.String("component", "pebble"))
	os.Exit(1)
}

var _ table.Table = (*Table)(nil)
