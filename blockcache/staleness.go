package blockcache

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/pdbcache/codec"
	"github.com/hupe1980/pdbcache/objectcache"
)

// DefaultStalenessName is the cache store key of the staleness table.
const DefaultStalenessName = "pdb_block_staleness"

// Staleness is the per-block staleness table.
//
// IsStale must report true for a block that has no flag. Implementations
// must be safe for concurrent use.
type Staleness interface {
	IsStale(ctx context.Context, blockKey int64) (bool, error)
	MarkStale(ctx context.Context, blockKey int64) error
	MarkFresh(ctx context.Context, blockKey int64) error
}

// MemoryStaleness is a process-local staleness table.
type MemoryStaleness struct {
	mu    sync.RWMutex
	flags map[int64]bool
}

// NewMemoryStaleness creates an empty table; every block starts stale.
func NewMemoryStaleness() *MemoryStaleness {
	return &MemoryStaleness{flags: make(map[int64]bool)}
}

// IsStale implements Staleness.
func (m *MemoryStaleness) IsStale(_ context.Context, key int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stale, ok := m.flags[key]
	return !ok || stale, nil
}

// MarkStale implements Staleness.
func (m *MemoryStaleness) MarkStale(_ context.Context, key int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[key] = true
	return nil
}

// MarkFresh implements Staleness.
func (m *MemoryStaleness) MarkFresh(_ context.Context, key int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[key] = false
	return nil
}

// Len returns the number of blocks with a flag.
func (m *MemoryStaleness) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.flags)
}

// StoreStaleness keeps the whole staleness table as one entry of the cache
// store, so every process sharing the store shares the table.
//
// Updates are read-modify-write of the entire table. They are serialized
// within the process; writers in different processes can overwrite each
// other's flags. Use a per-block table such as redis.HashStaleness when
// many processes invalidate concurrently. If the entry is evicted, every
// block reads as stale.
//
// IsStale fetches the whole entry, so a point read costs a transfer that
// grows with the number of blocks. The decoded table is kept per process
// and reused while the stored bytes are unchanged.
type StoreStaleness struct {
	store objectcache.Store
	group string
	name  string
	codec codec.Codec

	mu      sync.Mutex // serializes updates
	decoded atomic.Pointer[decodedFlags]
}

// decodedFlags is a decoded table and the checksum of its encoding.
// flags is never modified once published.
type decodedFlags struct {
	sum   uint64
	flags map[int64]bool
}

// NewStoreStaleness creates a staleness table stored under
// DefaultStalenessName in group. A nil codec selects codec.Default.
func NewStoreStaleness(store objectcache.Store, group string, c codec.Codec) *StoreStaleness {
	if group == "" {
		group = DefaultGroup
	}
	if c == nil {
		c = codec.Default
	}
	return &StoreStaleness{
		store: store,
		group: group,
		name:  DefaultStalenessName,
		codec: c,
	}
}

func (s *StoreStaleness) load(ctx context.Context) (map[int64]bool, error) {
	data, err := s.store.Get(ctx, s.group, s.name)
	if objectcache.IsMiss(err) {
		return map[int64]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blockcache: load staleness table: %w", err)
	}

	sum := xxhash.Sum64(data)
	if d := s.decoded.Load(); d != nil && d.sum == sum {
		return d.flags, nil
	}

	flags := map[int64]bool{}
	if err := s.codec.Unmarshal(data, &flags); err != nil {
		// An unreadable table is treated like a lost one.
		return map[int64]bool{}, nil
	}
	s.decoded.Store(&decodedFlags{sum: sum, flags: flags})
	return flags, nil
}

func (s *StoreStaleness) update(ctx context.Context, key int64, stale bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return err
	}
	flags := maps.Clone(current)
	flags[key] = stale

	data, err := s.codec.Marshal(flags)
	if err != nil {
		return fmt.Errorf("blockcache: encode staleness table: %w", err)
	}
	if err := s.store.Set(ctx, s.group, s.name, data, 0); err != nil {
		return fmt.Errorf("blockcache: store staleness table: %w", err)
	}
	return nil
}

// IsStale implements Staleness.
func (s *StoreStaleness) IsStale(ctx context.Context, key int64) (bool, error) {
	flags, err := s.load(ctx)
	if err != nil {
		return true, err
	}
	stale, ok := flags[key]
	return !ok || stale, nil
}

// MarkStale implements Staleness.
func (s *StoreStaleness) MarkStale(ctx context.Context, key int64) error {
	return s.update(ctx, key, true)
}

// MarkFresh implements Staleness.
func (s *StoreStaleness) MarkFresh(ctx context.Context, key int64) error {
	return s.update(ctx, key, false)
}
