// Package redis provides a Redis-backed objectcache.Store and a staleness
// table kept in a single Redis hash.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/hupe1980/pdbcache/objectcache"
)

// Pool hands out connections. *redis.Pool satisfies it.
type Pool interface {
	GetContext(ctx context.Context) (redis.Conn, error)
}

// Store is an objectcache.Store over Redis strings. Entries are stored under
// "<prefix><group>:<key>".
type Store struct {
	pool   Pool
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix namespaces every key, e.g. per deployment.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// NewStore creates a new Redis store.
func NewStore(pool Pool, optFns ...Option) *Store {
	s := &Store{pool: pool}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

// NewPool returns a redigo pool dialing addr.
func NewPool(addr string, maxIdle int) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     maxIdle,
		IdleTimeout: 4 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr)
		},
	}
}

func (s *Store) key(group, key string) string {
	return s.prefix + group + ":" + key
}

// Get implements objectcache.Store.
func (s *Store) Get(ctx context.Context, group, key string) ([]byte, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis: get connection: %w", err)
	}
	defer conn.Close()

	v, err := redis.Bytes(redis.DoContext(conn, ctx, "GET", s.key(group, key)))
	if errors.Is(err, redis.ErrNil) {
		return nil, objectcache.ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis: GET %s: %w", s.key(group, key), err)
	}
	return v, nil
}

// Set implements objectcache.Store. A positive ttl is applied with PX.
func (s *Store) Set(ctx context.Context, group, key string, value []byte, ttl time.Duration) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis: get connection: %w", err)
	}
	defer conn.Close()

	args := redis.Args{s.key(group, key), value}
	if ttl > 0 {
		args = args.Add("PX", ttl.Milliseconds())
	}
	if _, err := redis.DoContext(conn, ctx, "SET", args...); err != nil {
		return fmt.Errorf("redis: SET %s: %w", s.key(group, key), err)
	}
	return nil
}

// Delete implements objectcache.Store.
func (s *Store) Delete(ctx context.Context, group, key string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis: get connection: %w", err)
	}
	defer conn.Close()

	if _, err := redis.DoContext(conn, ctx, "DEL", s.key(group, key)); err != nil {
		return fmt.Errorf("redis: DEL %s: %w", s.key(group, key), err)
	}
	return nil
}

var _ objectcache.Store = (*Store)(nil)
