// Package table defines the relational backing store the block cache
// reloads from, keyed by participant id.
package table

import (
	"context"
	"errors"

	"github.com/hupe1980/pdbcache/record"
)

var (
	// ErrNotFound is returned when no row has the requested id.
	ErrNotFound = errors.New("table: not found")

	// ErrClosed is returned by operations on a closed table.
	ErrClosed = errors.New("table: closed")

	// ErrExists is returned by Insert for an id that is taken.
	ErrExists = errors.New("table: exists")
)

// Table is an id-keyed record table.
type Table interface {
	// QueryRange returns every record with lo <= id < hi, ordered by id.
	// An empty range yields an empty, non-nil-error result.
	QueryRange(ctx context.Context, lo, hi int64) ([]record.Record, error)

	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, id int64) (record.Record, error)

	// Put inserts or replaces a record.
	Put(ctx context.Context, rec record.Record) error

	// Delete removes a record. Deleting an absent id is not an error.
	Delete(ctx context.Context, id int64) error

	// Scan calls fn for every record in id order until fn returns an error.
	Scan(ctx context.Context, fn func(record.Record) error) error
}

// Inserter is implemented by tables that can add a row only if its id is
// free, as one atomic step.
type Inserter interface {
	// Insert adds rec or returns ErrExists.
	Insert(ctx context.Context, rec record.Record) error
}
