package pdbcache

import (
	"context"
	"errors"
	"math"

	"github.com/hupe1980/pdbcache/blobstore"
	"github.com/hupe1980/pdbcache/snapshot"
)

// Export writes a snapshot of the table to blobs. The DB's resource
// controller, if any, limits the transfer rate.
func (db *DB) Export(ctx context.Context, blobs blobstore.Store, optFns ...snapshot.Option) (snapshot.Manifest, error) {
	if db.closed.Load() {
		return snapshot.Manifest{}, ErrClosed
	}

	m, err := snapshot.Export(ctx, db.tbl, blobs, db.snapshotOptions(optFns)...)
	db.logger.LogSnapshot(ctx, "export", m.ID, m.Records, err)
	return m, translateError(err)
}

// Import restores snapshot id into the table and invalidates every block
// the snapshot touches. The blocks are invalidated even when the import
// fails part way, since earlier chunks may already be in the table.
func (db *DB) Import(ctx context.Context, blobs blobstore.Store, id string, optFns ...snapshot.Option) (snapshot.Manifest, error) {
	if db.closed.Load() {
		return snapshot.Manifest{}, ErrClosed
	}

	m, err := snapshot.Import(ctx, blobs, id, db.tbl, db.snapshotOptions(optFns)...)
	if m.ID != "" {
		if ierr := db.invalidateImported(context.WithoutCancel(ctx), m); ierr != nil {
			err = errors.Join(err, ierr)
		}
	}
	db.logger.LogSnapshot(ctx, "import", id, m.Records, err)
	return m, translateError(err)
}

func (db *DB) invalidateImported(ctx context.Context, m snapshot.Manifest) error {
	var err error
	for _, b := range m.Blocks {
		hi := b.MaxID
		if hi < math.MaxInt64 {
			hi++
		}
		if ierr := db.cache.InvalidateRange(ctx, b.MinID, hi); ierr != nil {
			err = &ErrStaleCache{ID: b.MinID, cause: ierr}
			break
		}
	}
	db.metrics.RecordInvalidate(err)
	return err
}

func (db *DB) snapshotOptions(optFns []snapshot.Option) []snapshot.Option {
	if db.opts.rc == nil {
		return optFns
	}
	return append([]snapshot.Option{snapshot.WithResourceController(db.opts.rc)}, optFns...)
}
