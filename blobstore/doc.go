// Package blobstore stores named blobs for cache snapshots.
//
// Store is the interface for writing and reading whole blobs:
//
//	type Store interface {
//	    Put(ctx, name, r) error           // Atomic write
//	    Get(ctx, name) (io.ReadCloser, error)
//	    List(ctx, prefix) ([]string, error)
//	    Delete(ctx, name) error
//	}
//
// # Built-in Implementations
//
//   - MemoryStore: in-process map, for tests
//   - LocalStore: local filesystem, one file per blob
//   - s3.Store: Amazon S3
//   - minio.Store: MinIO and other S3-compatible storage
//
// Names are slash-separated and relative. Implementations must be safe for
// concurrent use.
package blobstore
