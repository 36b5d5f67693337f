package objectcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings configures a BreakerStore.
type BreakerSettings struct {
	// Name identifies the breaker in state-change callbacks.
	Name string

	// MaxRequests is the number of trial calls allowed while half-open.
	MaxRequests uint32

	// Interval is the cyclic period after which closed-state counts reset.
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open.
	Timeout time.Duration

	// MinRequests and FailureRatio decide when the breaker trips.
	MinRequests  uint32
	FailureRatio float64

	// OnStateChange is called whenever the breaker changes state.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerSettings returns settings that trip after 60% of at least
// five calls fail and retry after 30 seconds.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// BreakerStore wraps a Store with a circuit breaker. While the breaker is
// open every call fails fast with ErrUnavailable. Misses and context
// cancellations are not counted as failures.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore creates a new BreakerStore.
func NewBreakerStore(next Store, st BreakerSettings) *BreakerStore {
	minRequests := st.MinRequests
	ratio := st.FailureRatio

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: st.MaxRequests,
		Interval:    st.Interval,
		Timeout:     st.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= ratio
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrMiss) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: st.OnStateChange,
	})

	return &BreakerStore{next: next, cb: cb}
}

// State returns the current breaker state.
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

// Get implements Store.
func (s *BreakerStore) Get(ctx context.Context, group, key string) ([]byte, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.Get(ctx, group, key)
	})
	if err != nil {
		return nil, s.translate(err)
	}
	return v.([]byte), nil
}

// Set implements Store.
func (s *BreakerStore) Set(ctx context.Context, group, key string, value []byte, ttl time.Duration) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.Set(ctx, group, key, value, ttl)
	})
	return s.translate(err)
}

// Delete implements Store.
func (s *BreakerStore) Delete(ctx context.Context, group, key string) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.Delete(ctx, group, key)
	})
	return s.translate(err)
}

func (s *BreakerStore) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, s.cb.Name(), err)
	}
	return err
}
