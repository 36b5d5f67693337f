package blockcache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pdbcache/codec"
	"github.com/hupe1980/pdbcache/objectcache"
)

func testStaleness(t *testing.T, s Staleness) {
	t.Helper()
	ctx := context.Background()

	stale, err := s.IsStale(ctx, 3)
	require.NoError(t, err)
	assert.True(t, stale, "missing flag must read as stale")

	require.NoError(t, s.MarkFresh(ctx, 3))
	require.NoError(t, s.MarkFresh(ctx, -3))
	stale, err = s.IsStale(ctx, 3)
	require.NoError(t, err)
	assert.False(t, stale)

	require.NoError(t, s.MarkStale(ctx, 3))
	stale, err = s.IsStale(ctx, 3)
	require.NoError(t, err)
	assert.True(t, stale)

	stale, err = s.IsStale(ctx, -3)
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestMemoryStaleness(t *testing.T) {
	s := NewMemoryStaleness()
	testStaleness(t, s)
	assert.Equal(t, 2, s.Len())
}

func TestStoreStaleness(t *testing.T) {
	for _, c := range []codec.Codec{nil, codec.JSON{}, codec.Msgpack{}} {
		name := "default"
		if c != nil {
			name = c.Name()
		}
		t.Run(name, func(t *testing.T) {
			testStaleness(t, NewStoreStaleness(objectcache.NewMemoryStore(), "", c))
		})
	}
}

func TestStoreStaleness_LostTableMeansStale(t *testing.T) {
	store := objectcache.NewMemoryStore()
	s := NewStoreStaleness(store, "participants", nil)
	ctx := context.Background()

	require.NoError(t, s.MarkFresh(ctx, 1))
	require.NoError(t, store.Delete(ctx, "participants", DefaultStalenessName))

	stale, err := s.IsStale(ctx, 1)
	require.NoError(t, err)
	assert.True(t, stale)

	require.NoError(t, store.Set(ctx, "participants", DefaultStalenessName, []byte("{not json"), 0))
	stale, err = s.IsStale(ctx, 1)
	require.NoError(t, err)
	assert.True(t, stale)
}

type brokenStore struct {
	objectcache.Store
}

func (brokenStore) Get(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("unreachable")
}

func TestStoreStaleness_StoreErrorReportsStale(t *testing.T) {
	s := NewStoreStaleness(brokenStore{Store: objectcache.NewMemoryStore()}, "", nil)

	stale, err := s.IsStale(context.Background(), 1)
	assert.Error(t, err)
	assert.True(t, stale)
	assert.Error(t, s.MarkStale(context.Background(), 1))
}

type countingCodec struct {
	codec.Codec
	unmarshals atomic.Int32
}

func (c *countingCodec) Unmarshal(data []byte, v any) error {
	c.unmarshals.Add(1)
	return c.Codec.Unmarshal(data, v)
}

func TestStoreStaleness_DecodesOnlyChangedTables(t *testing.T) {
	store := objectcache.NewMemoryStore()
	c := &countingCodec{Codec: codec.Default}
	s := NewStoreStaleness(store, "", c)
	other := NewStoreStaleness(store, "", codec.Default)
	ctx := context.Background()

	require.NoError(t, s.MarkFresh(ctx, 1))
	require.NoError(t, s.MarkFresh(ctx, 2))
	before := c.unmarshals.Load()

	for range 10 {
		stale, err := s.IsStale(ctx, 1)
		require.NoError(t, err)
		assert.False(t, stale)
	}
	assert.LessOrEqual(t, c.unmarshals.Load()-before, int32(1))

	// a write from another process changes the stored bytes
	require.NoError(t, other.MarkStale(ctx, 1))
	stale, err := s.IsStale(ctx, 1)
	require.NoError(t, err)
	assert.True(t, stale)

	stale, err = s.IsStale(ctx, 2)
	require.NoError(t, err)
	assert.False(t, stale)
}
