package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pdbcache/record"
	"github.com/hupe1980/pdbcache/table"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int63n returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Int63n(n)
}

var (
	firstNames = []string{"Ada", "Grace", "Alan", "Edsger", "Barbara", "Ken", "Dennis", "Radia", "Frances", "Donald"}
	lastNames  = []string{"Lovelace", "Hopper", "Turing", "Dijkstra", "Liskov", "Thompson", "Ritchie", "Perlman", "Allen", "Knuth"}
	statuses   = []string{"registered", "confirmed", "attended", "cancelled"}
)

// Fields returns a random participant field set.
func (r *RNG) Fields() record.Fields {
	r.mu.Lock()
	defer r.mu.Unlock()

	first := firstNames[r.rand.Intn(len(firstNames))]
	last := lastNames[r.rand.Intn(len(lastNames))]

	f := record.Fields{
		"first_name": record.String(first),
		"last_name":  record.String(last),
		"email":      record.String(fmt.Sprintf("%s.%s@example.org", first, last)),
		"status":     record.String(statuses[r.rand.Intn(len(statuses))]),
		"age":        record.Int(int64(18 + r.rand.Intn(60))),
		"score":      record.Float(r.rand.Float64() * 100),
		"verified":   record.Bool(r.rand.Intn(2) == 0),
	}

	// About one in four participants has no phone number on file.
	if r.rand.Intn(4) == 0 {
		f["phone"] = record.Null()
	} else {
		f["phone"] = record.String(fmt.Sprintf("+1-555-%04d", r.rand.Intn(10000)))
	}

	tags := make([]record.Value, r.rand.Intn(3))
	for i := range tags {
		tags[i] = record.String(fmt.Sprintf("tag-%d", r.rand.Intn(10)))
	}
	f["tags"] = record.Array(tags)

	return f
}

// Record returns a random record with the given id.
func (r *RNG) Record(id int64) record.Record {
	return record.Record{ID: id, Fields: r.Fields()}
}

// Records returns n random records with consecutive ids starting at start.
func (r *RNG) Records(start int64, n int) []record.Record {
	recs := make([]record.Record, n)
	for i := range recs {
		recs[i] = r.Record(start + int64(i))
	}
	return recs
}

// SparseIDs returns the ids in [0, n) that survive with probability 1-missingRate,
// in ascending order.
func (r *RNG) SparseIDs(n int64, missingRate float64) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []int64
	for id := int64(0); id < n; id++ {
		if r.rand.Float64() >= missingRate {
			ids = append(ids, id)
		}
	}
	return ids
}

// Fill writes recs to tbl and fails the test on the first error.
func Fill(tb testing.TB, tbl table.Table, recs []record.Record) {
	tb.Helper()

	ctx := context.Background()
	for _, rec := range recs {
		require.NoError(tb, tbl.Put(ctx, rec))
	}
}
