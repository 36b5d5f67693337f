// Package objectcache defines the key-value cache store that holds encoded
// record blocks and the staleness table.
//
// Values are opaque byte slices addressed by a (group, key) pair. A Store
// reports an absent or expired entry with ErrMiss; every other error is a
// store failure. Implementations in this package:
//
//   - MemoryStore: in-process, 64-way sharded LRU with per-entry TTL
//   - BreakerStore: wraps any Store with a circuit breaker
//
// The redis and dynamodb subpackages provide shared stores.
package objectcache
