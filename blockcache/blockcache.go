package blockcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/pdbcache/codec"
	"github.com/hupe1980/pdbcache/objectcache"
	"github.com/hupe1980/pdbcache/record"
	"github.com/hupe1980/pdbcache/table"
)

// blockState is the in-process bookkeeping of one block.
type blockState struct {
	gen atomic.Uint64 // bumped when a reload starts
	mu  sync.Mutex    // serializes block writes
}

// Stats is a snapshot of Cache counters.
type Stats struct {
	Gets          int64 // Get calls and ids requested through GetMany
	Hits          int64 // blocks served fresh from the cache store
	Misses        int64 // blocks absent from the cache store
	StaleReads    int64 // blocks found stale
	Reloads       int64 // successful reloads
	ReloadErrors  int64
	Invalidations int64 // blocks marked stale
	NotFound      int64
	Degraded      int64 // reads served from the table because the cache could not be read
}

type counters struct {
	gets, hits, misses, staleReads    atomic.Int64
	reloads, reloadErrors             atomic.Int64
	invalidations, notFound, degraded atomic.Int64
}

// Cache is a block-granular read-through cache over a table.
// It holds no per-block state of its own; all state lives in the cache
// store and the staleness table.
type Cache struct {
	tbl   table.Table
	store objectcache.Store
	opts  options
	log   *slog.Logger
	sf    singleflight.Group
	state sync.Map // block key -> *blockState
	stats counters
}

// New creates a Cache. It performs no I/O.
func New(tbl table.Table, store objectcache.Store, optFns ...Option) (*Cache, error) {
	opts := options{
		blockSize:   DefaultBlockSize,
		group:       DefaultGroup,
		concurrency: DefaultConcurrency,
		compressor:  codec.None{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.blockSize <= 0 {
		return nil, &ErrInvalidBlockSize{Size: opts.blockSize}
	}
	if tbl == nil {
		return nil, errors.New("blockcache: nil table")
	}
	if store == nil {
		return nil, errors.New("blockcache: nil cache store")
	}
	if opts.group == "" {
		opts.group = DefaultGroup
	}
	if opts.concurrency <= 0 {
		opts.concurrency = DefaultConcurrency
	}
	if opts.compressor == nil {
		opts.compressor = codec.None{}
	}
	if opts.staleness == nil {
		opts.staleness = NewStoreStaleness(store, opts.group, nil)
	}
	if opts.logger == nil {
		opts.logger = slog.New(slog.DiscardHandler)
	}

	return &Cache{
		tbl:   tbl,
		store: store,
		opts:  opts,
		log:   opts.logger.With("component", "blockcache", "group", opts.group),
	}, nil
}

// BlockSize returns the number of ids per block.
func (c *Cache) BlockSize() int64 { return c.opts.blockSize }

// BlockKey returns the key of the block containing id: floor(id / size).
func (c *Cache) BlockKey(id int64) int64 {
	return floorDiv(id, c.opts.blockSize)
}

// BlockRange returns the half-open id range [lo, hi) of block key.
func (c *Cache) BlockRange(key int64) (lo, hi int64) {
	return key * c.opts.blockSize, (key + 1) * c.opts.blockSize
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// blockKeyFor maps id to its block key, rejecting ids whose block bounds
// cannot be represented.
func (c *Cache) blockKeyFor(id int64) (int64, error) {
	key := c.BlockKey(id)
	s := c.opts.blockSize
	if key < math.MinInt64/s || key >= math.MaxInt64/s {
		return 0, &ErrIDOutOfRange{ID: id, BlockSize: s}
	}
	return key, nil
}

func storeKey(blockKey int64) string {
	return strconv.FormatInt(blockKey, 10)
}

// Get returns the record with the given id, reloading its block first if
// the block is stale or not cached. It returns ErrNotFound when the block
// holds no such record.
func (c *Cache) Get(ctx context.Context, id int64) (record.Record, error) {
	c.stats.gets.Add(1)

	key, err := c.blockKeyFor(id)
	if err != nil {
		return record.Record{}, err
	}

	blk, err := c.block(ctx, key)
	if err != nil {
		return record.Record{}, err
	}

	rec, ok := blk[id]
	if !ok {
		c.stats.notFound.Add(1)
		return record.Record{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// Invalidate marks the block containing id stale. It does not touch the
// cached data; the next Get of any id in the block reloads it.
func (c *Cache) Invalidate(ctx context.Context, id int64) error {
	key, err := c.blockKeyFor(id)
	if err != nil {
		return err
	}
	return c.invalidateBlock(ctx, key)
}

// InvalidateRange marks every block overlapping [lo, hi) stale.
func (c *Cache) InvalidateRange(ctx context.Context, lo, hi int64) error {
	if lo >= hi {
		return nil
	}
	first, err := c.blockKeyFor(lo)
	if err != nil {
		return err
	}
	last, err := c.blockKeyFor(hi - 1)
	if err != nil {
		return err
	}
	for key := first; key <= last; key++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.invalidateBlock(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) invalidateBlock(ctx context.Context, key int64) error {
	if err := c.opts.staleness.MarkStale(ctx, key); err != nil {
		return fmt.Errorf("blockcache: invalidate block %d: %w", key, err)
	}
	c.stats.invalidations.Add(1)
	c.log.Debug("block invalidated", "block", key)
	return nil
}

// block returns a fresh block, reloading it if needed.
func (c *Cache) block(ctx context.Context, key int64) (record.Block, error) {
	// Read before the flag: a reload may only be shared if it started after
	// this point, so its query sees every write that finished before it.
	st := c.stateOf(key)
	seen := st.gen.Load()

	stale, err := c.opts.staleness.IsStale(ctx, key)
	if err != nil {
		return c.degradedRead(ctx, key, fmt.Errorf("read staleness: %w", err))
	}
	if stale {
		c.stats.staleReads.Add(1)
		return c.reload(ctx, key, st, seen)
	}

	data, err := c.store.Get(ctx, c.opts.group, storeKey(key))
	switch {
	case err == nil:
		blk, derr := c.decode(data)
		if derr == nil {
			c.stats.hits.Add(1)
			return blk, nil
		}
		c.log.Warn("discarding undecodable block", "block", key, "error", derr)
		return c.reload(ctx, key, st, seen)
	case objectcache.IsMiss(err):
		c.stats.misses.Add(1)
		return c.reload(ctx, key, st, seen)
	default:
		return c.degradedRead(ctx, key, err)
	}
}

func (c *Cache) stateOf(key int64) *blockState {
	if st, ok := c.state.Load(key); ok {
		return st.(*blockState)
	}
	st, _ := c.state.LoadOrStore(key, new(blockState))
	return st.(*blockState)
}

// degradedRead answers from the table when the staleness table or the cache
// store cannot be read. Nothing is written and the staleness flag is left
// alone.
func (c *Cache) degradedRead(ctx context.Context, key int64, cacheErr error) (record.Block, error) {
	c.stats.degraded.Add(1)
	c.log.Warn("cache read failed, reading table", "block", key, "error", cacheErr)

	lo, hi := c.BlockRange(key)
	recs, err := c.query(ctx, lo, hi)
	if err != nil {
		return nil, &ErrReload{BlockKey: key, cause: errors.Join(cacheErr, err)}
	}
	return record.NewBlock(recs), nil
}

// reload replaces block key with the table's current rows. Callers that
// read the same generation of the block share one reload; the reload bumps
// the generation before it touches the flag or the table, so later callers
// start their own.
//
// The shared reload runs detached from any single caller's context. Each
// caller still stops waiting when its own context is done.
func (c *Cache) reload(ctx context.Context, key int64, st *blockState, seen uint64) (record.Block, error) {
	flight := storeKey(key) + "@" + strconv.FormatUint(seen, 10)
	ch := c.sf.DoChan(flight, func() (any, error) {
		gen := st.gen.Add(1)
		return c.doReload(context.WithoutCancel(ctx), key, st, gen)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(record.Block), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) doReload(ctx context.Context, key int64, st *blockState, gen uint64) (blk record.Block, err error) {
	start := time.Now()
	defer func() {
		d := time.Since(start)
		if err != nil {
			c.stats.reloadErrors.Add(1)
			c.log.Error("block reload failed", "block", key, "duration", d, "error", err)
		} else {
			c.stats.reloads.Add(1)
			c.log.Debug("block reloaded", "block", key, "records", len(blk), "duration", d)
		}
		if c.opts.observer != nil {
			c.opts.observer.OnReload(key, len(blk), d, err)
		}
	}()

	// Clear first: an invalidation arriving from here on survives the reload.
	if err := c.opts.staleness.MarkFresh(ctx, key); err != nil {
		return nil, &ErrReload{BlockKey: key, cause: err}
	}

	lo, hi := c.BlockRange(key)
	recs, err := c.query(ctx, lo, hi)
	if err != nil {
		c.restale(ctx, key)
		return nil, &ErrReload{BlockKey: key, cause: err}
	}

	blk = record.NewBlock(recs)
	data, err := c.encode(blk)
	if err != nil {
		c.restale(ctx, key)
		return nil, &ErrReload{BlockKey: key, cause: err}
	}
	if err := c.storeBlock(ctx, key, st, gen, data); err != nil {
		c.restale(ctx, key)
		return nil, &ErrReload{BlockKey: key, cause: err}
	}
	return blk, nil
}

// storeBlock writes the encoded block unless a newer reload of it has
// started in this process; that reload's rows supersede these.
func (c *Cache) storeBlock(ctx context.Context, key int64, st *blockState, gen uint64, data []byte) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.gen.Load() != gen {
		c.log.Debug("skipping superseded block write", "block", key)
		return nil
	}
	return c.store.Set(ctx, c.opts.group, storeKey(key), data, c.opts.ttl)
}

func (c *Cache) query(ctx context.Context, lo, hi int64) ([]record.Record, error) {
	if err := c.opts.rc.AcquireReload(ctx); err != nil {
		return nil, err
	}
	defer c.opts.rc.ReleaseReload()
	return c.tbl.QueryRange(ctx, lo, hi)
}

func (c *Cache) restale(ctx context.Context, key int64) {
	if err := c.opts.staleness.MarkStale(context.WithoutCancel(ctx), key); err != nil {
		c.log.Error("failed to re-mark block stale", "block", key, "error", err)
	}
}

func (c *Cache) encode(blk record.Block) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if c.opts.codec != nil {
		data, err = c.opts.codec.Marshal(blk.Records())
	} else {
		data, err = record.EncodeBlock(blk)
	}
	if err != nil {
		return nil, err
	}
	return c.opts.compressor.Compress(data)
}

func (c *Cache) decode(data []byte) (record.Block, error) {
	raw, err := c.opts.compressor.Decompress(data)
	if err != nil {
		return nil, err
	}
	if c.opts.codec == nil {
		return record.DecodeBlock(raw)
	}
	var recs []record.Record
	if err := c.opts.codec.Unmarshal(raw, &recs); err != nil {
		return nil, err
	}
	return record.NewBlock(recs), nil
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Gets:          c.stats.gets.Load(),
		Hits:          c.stats.hits.Load(),
		Misses:        c.stats.misses.Load(),
		StaleReads:    c.stats.staleReads.Load(),
		Reloads:       c.stats.reloads.Load(),
		ReloadErrors:  c.stats.reloadErrors.Load(),
		Invalidations: c.stats.invalidations.Load(),
		NotFound:      c.stats.notFound.Load(),
		Degraded:      c.stats.degraded.Load(),
	}
}
