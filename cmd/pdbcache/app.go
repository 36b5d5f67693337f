package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hupe1980/pdbcache"
	"github.com/hupe1980/pdbcache/blobstore"
	"github.com/hupe1980/pdbcache/blobstore/minio"
	"github.com/hupe1980/pdbcache/blobstore/s3"
	"github.com/hupe1980/pdbcache/codec"
	"github.com/hupe1980/pdbcache/objectcache"
	ddbstore "github.com/hupe1980/pdbcache/objectcache/dynamodb"
	redisstore "github.com/hupe1980/pdbcache/objectcache/redis"
	"github.com/hupe1980/pdbcache/promcollector"
	"github.com/hupe1980/pdbcache/resource"
	"github.com/hupe1980/pdbcache/snapshot"
	pebbletable "github.com/hupe1980/pdbcache/table/pebble"
)

// app holds everything a command needs.
type app struct {
	cfg      Config
	logger   *pdbcache.Logger
	tbl      *pebbletable.Table
	db       *pdbcache.DB
	rc       *resource.Controller
	registry *prometheus.Registry
	closers  []func() error
}

func newLogger(cfg LogConfig, w io.Writer) *pdbcache.Logger {
	var lvl slog.Level
	_ = lvl.UnmarshalText([]byte(cfg.Level))

	opts := &slog.HandlerOptions{Level: lvl}
	if cfg.Format == "json" {
		return pdbcache.NewLogger(slog.NewJSONHandler(w, opts))
	}
	return pdbcache.NewLogger(slog.NewTextHandler(w, opts))
}

func openApp(ctx context.Context, cfg Config, stderr io.Writer) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   newLogger(cfg.Log, stderr),
		registry: prometheus.NewRegistry(),
		rc: resource.NewController(resource.Config{
			MemoryLimitBytes:   cfg.Cache.CapacityMB << 20,
			MaxReloads:         cfg.MaxReloads,
			IOLimitBytesPerSec: cfg.IOLimitMB << 20,
		}),
	}

	tbl, err := pebbletable.Open(cfg.DataPath, pebbletable.Options{Logger: a.logger.Logger})
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", cfg.DataPath, err)
	}
	a.tbl = tbl

	store, staleness, err := a.openCacheStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	opts := []pdbcache.Option{
		pdbcache.WithBlockSize(cfg.BlockSize),
		pdbcache.WithTTL(cfg.TTL),
		pdbcache.WithGroup(cfg.Group),
		pdbcache.WithLogger(a.logger),
		pdbcache.WithResourceController(a.rc),
		pdbcache.WithMetricsCollector(promcollector.New(a.registry, "pdbcache")),
		pdbcache.WithCloseTable(),
	}
	if staleness != nil {
		opts = append(opts, pdbcache.WithStaleness(staleness))
	}
	if cfg.Cache.Codec != "" {
		c, ok := codec.ByName(cfg.Cache.Codec)
		if !ok {
			_ = a.Close()
			return nil, fmt.Errorf("unknown codec %q", cfg.Cache.Codec)
		}
		opts = append(opts, pdbcache.WithCodec(c))
	}
	comp, ok := codec.CompressorByName(cfg.Cache.Compression)
	if !ok {
		_ = a.Close()
		return nil, fmt.Errorf("unknown compression %q", cfg.Cache.Compression)
	}
	opts = append(opts, pdbcache.WithCompressor(comp))

	db, err := pdbcache.New(tbl, store, opts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.db = db
	// db.Close closes the table.
	a.closers = append([]func() error{db.Close}, a.closers...)

	promcollector.RegisterCacheStats(a.registry, "pdbcache", db.Stats)
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return a, nil
}

func (a *app) openCacheStore(ctx context.Context) (objectcache.Store, *redisstore.HashStaleness, error) {
	cfg := a.cfg.Cache

	var (
		store     objectcache.Store
		staleness *redisstore.HashStaleness
	)

	switch cfg.Backend {
	case "memory":
		store = objectcache.NewMemoryStore(
			objectcache.WithCapacity(cfg.CapacityMB<<20),
			objectcache.WithResourceController(a.rc),
		)
	case "redis":
		pool := redisstore.NewPool(cfg.RedisAddr, 8)
		a.closers = append(a.closers, pool.Close)
		store = redisstore.NewStore(pool, redisstore.WithKeyPrefix(cfg.RedisPrefix))
		staleness = redisstore.NewHashStaleness(pool, cfg.RedisPrefix+redisstore.DefaultStalenessHash)
	case "dynamodb":
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		store = ddbstore.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
	}

	if cfg.Breaker {
		store = objectcache.NewBreakerStore(store, objectcache.DefaultBreakerSettings(cfg.Backend))
	}
	return store, staleness, nil
}

func (a *app) blobStore(ctx context.Context) (blobstore.Store, error) {
	cfg := a.cfg.Snapshot

	switch cfg.Backend {
	case "s3":
		opts := []s3.Option{s3.WithPrefix(cfg.Prefix)}
		if cfg.Region != "" {
			opts = append(opts, s3.WithRegion(cfg.Region))
		}
		if cfg.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(cfg.Endpoint))
		}
		return s3.New(ctx, cfg.Bucket, opts...)
	case "minio":
		return minio.Dial(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Secure, cfg.Bucket, cfg.Prefix)
	default:
		return blobstore.NewLocalStore(cfg.Path), nil
	}
}

func (a *app) snapshotOptions() ([]snapshot.Option, error) {
	comp, ok := codec.CompressorByName(a.cfg.Snapshot.Compression)
	if !ok {
		return nil, fmt.Errorf("unknown snapshot compression %q", a.cfg.Snapshot.Compression)
	}
	return []snapshot.Option{
		snapshot.WithBlockSize(a.cfg.Snapshot.BlockSize),
		snapshot.WithCompressor(comp),
	}, nil
}

// Close releases the DB (and with it the table) and every other resource.
func (a *app) Close() error {
	var firstErr error
	if a.db == nil && a.tbl != nil {
		firstErr = a.tbl.Close()
	}
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
