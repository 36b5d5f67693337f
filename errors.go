package pdbcache

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pdbcache/blockcache"
	"github.com/hupe1980/pdbcache/table"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by Create for an id that is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrClosed is returned by operations on a closed DB.
	ErrClosed = errors.New("closed")
)

// ErrInvalidBlockSize indicates a non-positive configured block size.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidBlockSize struct {
	Size  int64
	cause error
}

func (e *ErrInvalidBlockSize) Error() string {
	return fmt.Sprintf("invalid block size: %d", e.Size)
}

func (e *ErrInvalidBlockSize) Unwrap() error { return e.cause }

// ErrStaleCache reports a table write whose cache invalidation failed. The
// write itself succeeded; readers may see the previous record until the
// block is invalidated again or expires.
type ErrStaleCache struct {
	ID    int64
	cause error
}

func (e *ErrStaleCache) Error() string {
	return fmt.Sprintf("record %d written but cache not invalidated: %v", e.ID, e.cause)
}

func (e *ErrStaleCache) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, blockcache.ErrNotFound) || errors.Is(err, table.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, table.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	var bs *blockcache.ErrInvalidBlockSize
	if errors.As(err, &bs) {
		return &ErrInvalidBlockSize{Size: bs.Size, cause: err}
	}

	return err
}
