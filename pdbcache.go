package pdbcache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/pdbcache/blockcache"
	"github.com/hupe1980/pdbcache/objectcache"
	"github.com/hupe1980/pdbcache/record"
	"github.com/hupe1980/pdbcache/table"
)

// DB is a participant record store: a table fronted by a block cache.
//
// Reads go through the cache. Writes go to the table and then invalidate the
// affected block, so the next read of any id in that block reloads it.
type DB struct {
	tbl     table.Table
	cache   *blockcache.Cache
	opts    options
	logger  *Logger
	metrics MetricsCollector
	closed  atomic.Bool
}

// New creates a DB over tbl, caching blocks in store.
func New(tbl table.Table, store objectcache.Store, optFns ...Option) (*DB, error) {
	opts := options{
		blockSize:        blockcache.DefaultBlockSize,
		group:            blockcache.DefaultGroup,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.logger.WithCacheGroup(opts.group)

	bcOpts := []blockcache.Option{
		blockcache.WithBlockSize(opts.blockSize),
		blockcache.WithTTL(opts.ttl),
		blockcache.WithGroup(opts.group),
		blockcache.WithLogger(logger.Logger),
		blockcache.WithObserver(reloadObserver{metrics: opts.metricsCollector}),
		blockcache.WithResourceController(opts.rc),
	}
	if opts.staleness != nil {
		bcOpts = append(bcOpts, blockcache.WithStaleness(opts.staleness))
	}
	if opts.codec != nil {
		bcOpts = append(bcOpts, blockcache.WithCodec(opts.codec))
	}
	if opts.compressor != nil {
		bcOpts = append(bcOpts, blockcache.WithCompressor(opts.compressor))
	}
	if opts.concurrency > 0 {
		bcOpts = append(bcOpts, blockcache.WithConcurrency(opts.concurrency))
	}
	if opts.warmRate > 0 {
		bcOpts = append(bcOpts, blockcache.WithWarmRate(opts.warmRate, opts.warmBurst))
	}

	cache, err := blockcache.New(tbl, store, bcOpts...)
	if err != nil {
		return nil, translateError(err)
	}

	return &DB{
		tbl:     tbl,
		cache:   cache,
		opts:    opts,
		logger:  logger,
		metrics: opts.metricsCollector,
	}, nil
}

// Cache returns the underlying block cache.
func (db *DB) Cache() *blockcache.Cache { return db.cache }

// Table returns the backing table.
func (db *DB) Table() table.Table { return db.tbl }

// Stats returns the block cache counters.
func (db *DB) Stats() blockcache.Stats { return db.cache.Stats() }

// Get returns the record with the given id or ErrNotFound.
func (db *DB) Get(ctx context.Context, id int64) (record.Record, error) {
	if db.closed.Load() {
		return record.Record{}, ErrClosed
	}

	start := time.Now()
	rec, err := db.cache.Get(ctx, id)

	opErr := err
	if errors.Is(err, blockcache.ErrNotFound) {
		opErr = nil
	}
	db.metrics.RecordGet(time.Since(start), err == nil, opErr)
	db.logger.LogGet(ctx, id, err == nil, opErr)
	if err != nil {
		return record.Record{}, translateError(err)
	}
	return rec, nil
}

// GetMany returns the records for ids keyed by id; missing ids are absent.
func (db *DB) GetMany(ctx context.Context, ids []int64) (map[int64]record.Record, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()
	recs, err := db.cache.GetMany(ctx, ids)
	db.metrics.RecordGetMany(len(ids), len(recs), time.Since(start), err)
	db.logger.LogGetMany(ctx, len(ids), len(recs), err)
	if err != nil {
		return nil, translateError(err)
	}
	return recs, nil
}

// Create inserts a new record. It returns ErrAlreadyExists if the id is taken.
// The check and the insert are atomic when the table implements
// table.Inserter; otherwise two concurrent Creates of one id may both succeed.
func (db *DB) Create(ctx context.Context, rec record.Record) error {
	return db.write(ctx, "create", rec.ID, func() error {
		if ins, ok := db.tbl.(table.Inserter); ok {
			err := ins.Insert(ctx, rec)
			if errors.Is(err, table.ErrExists) {
				return fmt.Errorf("%w: record %d", ErrAlreadyExists, rec.ID)
			}
			return err
		}
		if _, err := db.tbl.Get(ctx, rec.ID); err == nil {
			return fmt.Errorf("%w: record %d", ErrAlreadyExists, rec.ID)
		} else if !errors.Is(err, table.ErrNotFound) {
			return err
		}
		return db.tbl.Put(ctx, rec)
	})
}

// Update replaces an existing record. It returns ErrNotFound if the id is free.
func (db *DB) Update(ctx context.Context, rec record.Record) error {
	return db.write(ctx, "update", rec.ID, func() error {
		if _, err := db.tbl.Get(ctx, rec.ID); err != nil {
			return err
		}
		return db.tbl.Put(ctx, rec)
	})
}

// Put inserts or replaces a record.
func (db *DB) Put(ctx context.Context, rec record.Record) error {
	return db.write(ctx, "put", rec.ID, func() error {
		return db.tbl.Put(ctx, rec)
	})
}

// Delete removes a record. Deleting an absent id is not an error.
func (db *DB) Delete(ctx context.Context, id int64) error {
	return db.write(ctx, "delete", id, func() error {
		return db.tbl.Delete(ctx, id)
	})
}

// write applies fn to the table and invalidates the block containing id.
func (db *DB) write(ctx context.Context, op string, id int64, fn func() error) error {
	if db.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	err := fn()
	if err == nil {
		if ierr := db.invalidate(ctx, id); ierr != nil {
			err = &ErrStaleCache{ID: id, cause: ierr}
		}
	}
	db.metrics.RecordWrite(op, time.Since(start), err)
	db.logger.LogWrite(ctx, op, id, err)
	return translateError(err)
}

// Invalidate marks the block containing id stale. Use it after writing to
// the table without going through the DB.
func (db *DB) Invalidate(ctx context.Context, id int64) error {
	if db.closed.Load() {
		return ErrClosed
	}
	return translateError(db.invalidate(ctx, id))
}

func (db *DB) invalidate(ctx context.Context, id int64) error {
	err := db.cache.Invalidate(ctx, id)
	db.metrics.RecordInvalidate(err)
	db.logger.LogInvalidate(ctx, id, err)
	return err
}

// InvalidateRange marks every block overlapping [lo, hi) stale, e.g. after
// a bulk import into the table.
func (db *DB) InvalidateRange(ctx context.Context, lo, hi int64) error {
	if db.closed.Load() {
		return ErrClosed
	}
	err := db.cache.InvalidateRange(ctx, lo, hi)
	db.metrics.RecordInvalidate(err)
	return translateError(err)
}

// Warm loads every stale or uncached block overlapping [lo, hi).
func (db *DB) Warm(ctx context.Context, lo, hi int64) (blockcache.WarmResult, error) {
	if db.closed.Load() {
		return blockcache.WarmResult{}, ErrClosed
	}
	res, err := db.cache.Warm(ctx, lo, hi)
	db.logger.LogWarm(ctx, lo, hi, res.Blocks, err)
	return res, translateError(err)
}
