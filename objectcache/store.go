package objectcache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned when the entry is absent or expired.
	ErrMiss = errors.New("objectcache: miss")

	// ErrUnavailable is returned when the store is temporarily refusing calls.
	ErrUnavailable = errors.New("objectcache: unavailable")
)

// Store is a grouped key-value cache.
//
// A ttl of zero means the entry lives until it is deleted or evicted.
type Store interface {
	Get(ctx context.Context, group, key string) ([]byte, error)
	Set(ctx context.Context, group, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, group, key string) error
}

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}
