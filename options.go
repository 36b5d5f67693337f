package pdbcache

import (
	"time"

	"github.com/hupe1980/pdbcache/blockcache"
	"github.com/hupe1980/pdbcache/codec"
	"github.com/hupe1980/pdbcache/resource"
)

type options struct {
	blockSize        int64
	ttl              time.Duration
	group            string
	staleness        blockcache.Staleness
	codec            codec.Codec
	compressor       codec.Compressor
	concurrency      int
	warmRate         float64
	warmBurst        int
	rc               *resource.Controller
	metricsCollector MetricsCollector
	logger           *Logger
	closeTable       bool
}

// Option configures DB construction.
type Option func(*options)

// WithBlockSize sets the number of ids per cached block (default 100).
//
// Every process sharing a cache store must use the same block size.
func WithBlockSize(n int64) Option {
	return func(o *options) {
		o.blockSize = n
	}
}

// WithTTL sets how long a cached block may live in the cache store.
// Zero (the default) keeps blocks until they are invalidated or evicted.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithGroup sets the cache store group (default "participants").
func WithGroup(group string) Option {
	return func(o *options) {
		o.group = group
	}
}

// WithStaleness replaces the default staleness table, which is a single
// entry in the cache store.
func WithStaleness(s blockcache.Staleness) Option {
	return func(o *options) {
		o.staleness = s
	}
}

// WithCodec configures the codec used for cached blocks.
//
// If nil is passed, the compact binary block format is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithCompressor compresses cached blocks.
func WithCompressor(c codec.Compressor) Option {
	return func(o *options) {
		o.compressor = c
	}
}

// WithWarmConcurrency bounds parallel block loads in GetMany and Warm.
func WithWarmConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithWarmRate limits Warm to blocksPerSec block checks per second.
func WithWarmRate(blocksPerSec float64, burst int) Option {
	return func(o *options) {
		o.warmRate = blocksPerSec
		o.warmBurst = burst
	}
}

// WithResourceController bounds concurrent table queries.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithMetricsCollector configures a metrics collector.
//
// If nil is passed, NoopMetricsCollector is used.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures the logger.
//
// If nil is passed, NoopLogger is used.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithCloseTable makes Close also close the table when it implements
// io.Closer.
func WithCloseTable() Option {
	return func(o *options) {
		o.closeTable = true
	}
}
