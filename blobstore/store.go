package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blobstore: blob not found")

// Store is an abstraction for reading and writing named blobs.
type Store interface {
	// Put writes the contents of r under name, replacing any existing blob.
	// Readers never observe a partially written blob.
	Put(ctx context.Context, name string, r io.Reader) error
	// Get opens a blob for reading. The caller must close the reader.
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	// List returns the sorted names that start with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
}

// PutBytes writes data under name.
func PutBytes(ctx context.Context, s Store, name string, data []byte) error {
	return s.Put(ctx, name, bytes.NewReader(data))
}

// GetBytes reads a whole blob.
func GetBytes(ctx context.Context, s Store, name string) ([]byte, error) {
	rc, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	return io.ReadAll(rc)
}
