package blockcache

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/pdbcache/codec"
	"github.com/hupe1980/pdbcache/resource"
)

const (
	// DefaultBlockSize is the number of ids per block.
	DefaultBlockSize = 100

	// DefaultGroup is the cache store group holding blocks and the
	// staleness table.
	DefaultGroup = "participants"

	// DefaultConcurrency bounds parallel block loads in GetMany and Warm.
	DefaultConcurrency = 8
)

type options struct {
	blockSize   int64
	ttl         time.Duration
	group       string
	staleness   Staleness
	logger      *slog.Logger
	codec       codec.Codec
	compressor  codec.Compressor
	concurrency int
	warmLimiter *rate.Limiter
	rc          *resource.Controller
	observer    Observer
}

// Option configures a Cache.
type Option func(*options)

// WithBlockSize sets the number of ids per block. Changing it for an
// existing store orphans every cached block.
func WithBlockSize(n int64) Option {
	return func(o *options) {
		o.blockSize = n
	}
}

// WithTTL sets the per-block expiry in the cache store. Zero keeps blocks
// until they are evicted or reloaded.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithGroup sets the cache store group.
func WithGroup(group string) Option {
	return func(o *options) {
		o.group = group
	}
}

// WithStaleness sets the staleness table. By default the table is a single
// entry in the cache store (see StoreStaleness), which every Get fetches in
// full. Large or shared deployments should pass a per-block table such as
// redis.HashStaleness.
func WithStaleness(s Staleness) Option {
	return func(o *options) {
		o.staleness = s
	}
}

// WithLogger sets the logger. Reloads are logged at Debug.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithCodec encodes blocks with c instead of the compact binary format.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithCompressor compresses encoded blocks before they are stored.
func WithCompressor(c codec.Compressor) Option {
	return func(o *options) {
		o.compressor = c
	}
}

// WithConcurrency bounds parallel block loads in GetMany and Warm.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithWarmRate limits Warm to blocksPerSec block checks per second.
func WithWarmRate(blocksPerSec float64, burst int) Option {
	return func(o *options) {
		if blocksPerSec <= 0 {
			o.warmLimiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.warmLimiter = rate.NewLimiter(rate.Limit(blocksPerSec), burst)
	}
}

// WithResourceController bounds concurrent table queries with the
// controller's reload slots.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.rc = rc
	}
}

// WithObserver receives a callback for every reload.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// Observer is notified about reloads.
type Observer interface {
	OnReload(blockKey int64, records int, d time.Duration, err error)
}
