package objectcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	err   error
	calls int
}

func (s *failingStore) Get(context.Context, string, string) ([]byte, error) {
	s.calls++
	return nil, s.err
}

func (s *failingStore) Set(context.Context, string, string, []byte, time.Duration) error {
	s.calls++
	return s.err
}

func (s *failingStore) Delete(context.Context, string, string) error {
	s.calls++
	return s.err
}

func TestBreakerStore_PassThrough(t *testing.T) {
	s := NewBreakerStore(NewMemoryStore(), DefaultBreakerSettings("test"))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "g", "k", []byte("v"), 0))
	got, err := s.Get(ctx, "g", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, s.Delete(ctx, "g", "k"))
	_, err = s.Get(ctx, "g", "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Equal(t, gobreaker.StateClosed, s.State())
}

func TestBreakerStore_MissDoesNotTrip(t *testing.T) {
	next := &failingStore{err: ErrMiss}
	s := NewBreakerStore(next, DefaultBreakerSettings("test"))

	for range 20 {
		_, err := s.Get(context.Background(), "g", "k")
		assert.ErrorIs(t, err, ErrMiss)
	}
	assert.Equal(t, gobreaker.StateClosed, s.State())
	assert.Equal(t, 20, next.calls)
}

func TestBreakerStore_TripsAndFailsFast(t *testing.T) {
	boom := errors.New("connection refused")
	next := &failingStore{err: boom}

	var transitions []gobreaker.State
	st := DefaultBreakerSettings("test")
	st.OnStateChange = func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to)
	}
	s := NewBreakerStore(next, st)
	ctx := context.Background()

	for range 5 {
		assert.ErrorIs(t, s.Set(ctx, "g", "k", nil, 0), boom)
	}
	assert.Equal(t, gobreaker.StateOpen, s.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	err := s.Delete(ctx, "g", "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 5, next.calls)
}
