package blockcache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the id has no record in its block.
	ErrNotFound = errors.New("blockcache: record not found")
)

// ErrInvalidBlockSize indicates a non-positive block size.
type ErrInvalidBlockSize struct {
	Size int64
}

func (e *ErrInvalidBlockSize) Error() string {
	return fmt.Sprintf("blockcache: invalid block size: %d", e.Size)
}

// ErrIDOutOfRange is returned for ids whose block bounds overflow int64.
type ErrIDOutOfRange struct {
	ID        int64
	BlockSize int64
}

func (e *ErrIDOutOfRange) Error() string {
	return fmt.Sprintf("blockcache: id %d out of range for block size %d", e.ID, e.BlockSize)
}

// ErrReload reports a failed block reload. The block is left stale.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrReload struct {
	BlockKey int64
	cause    error
}

func (e *ErrReload) Error() string {
	return fmt.Sprintf("blockcache: reload block %d: %v", e.BlockKey, e.cause)
}

func (e *ErrReload) Unwrap() error { return e.cause }
