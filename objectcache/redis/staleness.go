package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gomodule/redigo/redis"

	"github.com/hupe1980/pdbcache/blockcache"
)

// DefaultStalenessHash is the hash holding one field per block key.
const DefaultStalenessHash = "pdb_block_staleness"

// HashStaleness keeps block staleness flags as fields of one Redis hash.
// Field values are "1" (stale) and "0" (fresh); a missing field is stale.
type HashStaleness struct {
	pool Pool
	hash string
}

// NewHashStaleness creates a staleness table in hash. An empty hash name
// selects DefaultStalenessHash.
func NewHashStaleness(pool Pool, hash string) *HashStaleness {
	if hash == "" {
		hash = DefaultStalenessHash
	}
	return &HashStaleness{pool: pool, hash: hash}
}

// IsStale implements blockcache.Staleness.
func (h *HashStaleness) IsStale(ctx context.Context, key int64) (bool, error) {
	conn, err := h.pool.GetContext(ctx)
	if err != nil {
		return true, fmt.Errorf("redis: get connection: %w", err)
	}
	defer conn.Close()

	v, err := redis.String(redis.DoContext(conn, ctx, "HGET", h.hash, strconv.FormatInt(key, 10)))
	if errors.Is(err, redis.ErrNil) {
		return true, nil
	}
	if err != nil {
		return true, fmt.Errorf("redis: HGET %s %d: %w", h.hash, key, err)
	}
	return v != "0", nil
}

// MarkStale implements blockcache.Staleness.
func (h *HashStaleness) MarkStale(ctx context.Context, key int64) error {
	return h.set(ctx, key, "1")
}

// MarkFresh implements blockcache.Staleness.
func (h *HashStaleness) MarkFresh(ctx context.Context, key int64) error {
	return h.set(ctx, key, "0")
}

// Reset removes every flag, which makes all blocks stale.
func (h *HashStaleness) Reset(ctx context.Context) error {
	conn, err := h.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis: get connection: %w", err)
	}
	defer conn.Close()

	if _, err := redis.DoContext(conn, ctx, "DEL", h.hash); err != nil {
		return fmt.Errorf("redis: DEL %s: %w", h.hash, err)
	}
	return nil
}

func (h *HashStaleness) set(ctx context.Context, key int64, v string) error {
	conn, err := h.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis: get connection: %w", err)
	}
	defer conn.Close()

	if _, err := redis.DoContext(conn, ctx, "HSET", h.hash, strconv.FormatInt(key, 10), v); err != nil {
		return fmt.Errorf("redis: HSET %s %d: %w", h.hash, key, err)
	}
	return nil
}

var _ blockcache.Staleness = (*HashStaleness)(nil)
