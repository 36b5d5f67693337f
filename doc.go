// Package pdbcache provides a participant record store fronted by a
// block-granular read-through cache.
//
// Records live in a table (see package table) keyed by integer id. Reads are
// served from a key-value cache store (see package objectcache) that holds
// whole blocks of ids, so a cold read of one participant loads its hundred
// neighbours with a single range query. A per-block staleness table decides
// when a cached block must be reloaded; writers only flip a flag.
//
// # Quick Start
//
//	ctx := context.Background()
//	tbl := table.NewMemoryTable()
//	store := objectcache.NewMemoryStore()
//
//	db, _ := pdbcache.New(tbl, store)
//	defer db.Close()
//
//	_ = db.Create(ctx, record.Record{ID: 205, Fields: record.Fields{
//	    "name": record.String("Ada"),
//	}})
//
//	rec, _ := db.Get(ctx, 205) // loads ids [200, 300) as one block
//
// # Shared Caches
//
// Several processes can share one cache store, e.g. Redis:
//
//	pool := redis.NewPool("localhost:6379", 8)
//	db, _ := pdbcache.New(pebbleTable, redis.NewStore(pool),
//	    pdbcache.WithStaleness(redis.NewHashStaleness(pool, "")),
//	    pdbcache.WithTTL(time.Hour),
//	)
//
// Every writer must invalidate through the DB (or call Invalidate after
// writing the table directly). A block is reloaded at most once per
// invalidation per process; redundant reloads across processes are
// harmless.
//
// # Observability
//
//	mc := &pdbcache.BasicMetricsCollector{}
//	db, _ := pdbcache.New(tbl, store,
//	    pdbcache.WithMetricsCollector(mc),
//	    pdbcache.WithLogger(pdbcache.NewJSONLogger(slog.LevelInfo)),
//	)
//
// The promcollector package exports the same metrics to Prometheus.
package pdbcache
