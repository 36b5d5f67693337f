// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("pdbcache/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//
//	id, err := snapshot.Export(ctx, tbl, store)
//
// Uploads go through the multipart upload manager, so snapshot chunks of any
// size stream without being buffered whole. Listing pages automatically.
package s3
