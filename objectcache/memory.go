package objectcache

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/pdbcache/resource"
)

const numShards = 64

// DefaultMemoryCapacity is the byte capacity of a MemoryStore created
// without WithCapacity.
const DefaultMemoryCapacity = 64 << 20

// MemoryStats is a snapshot of MemoryStore counters.
type MemoryStats struct {
	Hits    int64
	Misses  int64
	Bytes   int64
	Entries int
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	capacity int64
	rc       *resource.Controller
	now      func() time.Time
}

// WithCapacity sets the total byte capacity, split evenly across shards.
func WithCapacity(bytes int64) MemoryOption {
	return func(o *memoryOptions) {
		o.capacity = bytes
	}
}

// WithResourceController charges cached bytes against a shared memory budget.
func WithResourceController(rc *resource.Controller) MemoryOption {
	return func(o *memoryOptions) {
		o.rc = rc
	}
}

// WithClock overrides the time source used for TTL expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) {
		o.now = now
	}
}

// MemoryStore is an in-process Store. Entries are spread over 64 LRU shards
// to reduce lock contention; expired entries are dropped lazily on read.
type MemoryStore struct {
	shards [numShards]*lruShard
	now    func() time.Time
}

// NewMemoryStore creates a new in-process store.
func NewMemoryStore(optFns ...MemoryOption) *MemoryStore {
	opts := memoryOptions{
		capacity: DefaultMemoryCapacity,
		now:      time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	shardCapacity := opts.capacity / numShards
	if shardCapacity < 1 {
		shardCapacity = 1
	}

	s := &MemoryStore{now: opts.now}
	for i := range numShards {
		s.shards[i] = newLRUShard(shardCapacity, opts.rc)
	}
	return s
}

func (s *MemoryStore) shard(k entryKey) *lruShard {
	d := xxhash.New()
	_, _ = d.WriteString(k.group)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(k.key)
	return s.shards[d.Sum64()%numShards]
}

// Get implements Store. The returned slice must not be modified.
func (s *MemoryStore) Get(ctx context.Context, group, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := entryKey{group: group, key: key}
	v, ok := s.shard(k).get(k, s.now())
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

// Set implements Store. The value is copied.
func (s *MemoryStore) Set(ctx context.Context, group, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	k := entryKey{group: group, key: key}
	s.shard(k).set(k, append([]byte(nil), value...), expiresAt)
	return nil
}

// Delete implements Store. Deleting an absent key is not an error.
func (s *MemoryStore) Delete(ctx context.Context, group, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k := entryKey{group: group, key: key}
	s.shard(k).delete(k)
	return nil
}

// Purge drops every entry.
func (s *MemoryStore) Purge() {
	for _, sh := range s.shards {
		sh.purge()
	}
}

// Stats returns aggregated counters.
func (s *MemoryStore) Stats() MemoryStats {
	var st MemoryStats
	for _, sh := range s.shards {
		h, m, b, n := sh.stats()
		st.Hits += h
		st.Misses += m
		st.Bytes += b
		st.Entries += n
	}
	return st
}
