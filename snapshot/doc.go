// Package snapshot exports a table to a blob store and restores it.
//
// A snapshot is a directory of block-sized chunks plus a manifest:
//
//	snapshots/<id>/<block>.blk   compressed record.EncodeBlock payload
//	snapshots/<id>/MANIFEST      JSON Manifest, written last
//
// Snapshot ids are UUIDv7, so lexical order is creation order. A snapshot
// without a MANIFEST is incomplete and is ignored by List and Import.
package snapshot
