package blockcache

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pdbcache/record"
)

// GetMany returns the records for ids, keyed by id. Ids without a record
// are absent from the result. Each distinct block is checked once and
// blocks are loaded in parallel.
func (c *Cache) GetMany(ctx context.Context, ids []int64) (map[int64]record.Record, error) {
	c.stats.gets.Add(int64(len(ids)))

	byBlock := make(map[int64][]int64)
	for _, id := range ids {
		key, err := c.blockKeyFor(id)
		if err != nil {
			return nil, err
		}
		byBlock[key] = append(byBlock[key], id)
	}

	var (
		mu  sync.Mutex
		out = make(map[int64]record.Record, len(ids))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.concurrency)

	for key, want := range byBlock {
		g.Go(func() error {
			blk, err := c.block(gctx, key)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			for _, id := range want {
				if rec, ok := blk[id]; ok {
					out[id] = rec.Clone()
				} else {
					c.stats.notFound.Add(1)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// WarmResult summarizes a Warm call.
type WarmResult struct {
	Blocks  int     // blocks checked
	Records int     // records held by those blocks
	Keys    []int64 // checked block keys, ascending
}

// Warm makes every block overlapping [lo, hi) fresh, reloading only blocks
// that are stale or not cached. Block checks are paced by WithWarmRate.
func (c *Cache) Warm(ctx context.Context, lo, hi int64) (WarmResult, error) {
	var res WarmResult
	if lo >= hi {
		return res, nil
	}

	first, err := c.blockKeyFor(lo)
	if err != nil {
		return res, err
	}
	last, err := c.blockKeyFor(hi - 1)
	if err != nil {
		return res, err
	}

	var (
		mu      sync.Mutex
		waitErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.concurrency)

	for key := first; key <= last; key++ {
		if c.opts.warmLimiter != nil {
			if waitErr = c.opts.warmLimiter.Wait(gctx); waitErr != nil {
				break
			}
		}
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			blk, err := c.block(gctx, key)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			res.Blocks++
			res.Records += len(blk)
			res.Keys = append(res.Keys, key)
			return nil
		})
	}

	err = g.Wait()
	slices.Sort(res.Keys)
	if err != nil {
		return res, err
	}
	if waitErr != nil {
		return res, waitErr
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	c.log.Info("warm complete", "lo", lo, "hi", hi, "blocks", res.Blocks, "records", res.Records)
	return res, nil
}
