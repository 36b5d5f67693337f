// Package blockcache implements a read-through cache for participant
// records that caches fixed-size, id-ranged blocks instead of single rows.
//
// # Blocks
//
// The id space is split into blocks of BlockSize ids. Block k holds every
// record with k*BlockSize <= id < (k+1)*BlockSize, so one range query
// replaces up to BlockSize point queries. Ids are mapped with floor
// division, so -1 lives in block -1 and 0 in block 0.
//
// # Staleness
//
// A Staleness table holds one flag per block key. A block is stale when its
// flag is set or absent; absent covers both never-loaded blocks and a lost
// staleness table. Cached block data is never returned without consulting
// the flag first:
//
//	missing -> stale -> fresh -> stale -> ...
//
// Get reloads a stale or absent block synchronously before answering.
// Invalidate only marks the block stale; the next Get pays for the reload.
//
// A reload clears the flag before it queries the table and sets it again if
// the query or the store write fails. An Invalidate racing with a reload
// therefore always leaves the block stale. Concurrent Gets of one block in
// this process share a single reload; across processes redundant reloads
// are possible and harmless.
//
// # Usage
//
//	tbl := table.NewMemoryTable()
//	store := objectcache.NewMemoryStore()
//
//	c, err := blockcache.New(tbl, store,
//	    blockcache.WithBlockSize(100),
//	    blockcache.WithTTL(time.Hour),
//	)
//	if err != nil {
//	    return err
//	}
//
//	rec, err := c.Get(ctx, 205)       // loads block 2: ids [200, 300)
//	err = c.Invalidate(ctx, 205)      // block 2 reloads on the next Get
package blockcache
