// Package testutil provides testing utilities for pdbcache.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded random source and generators for participant
// records with realistic field sets.
//
// # Random Records
//
//	rng := testutil.NewRNG(seed)
//	recs := rng.Records(0, 500)       // ids 0..499
//	sparse := rng.SparseIDs(1000, 0.3)
//
// # Filling Tables
//
//	tbl := table.NewMemoryTable()
//	testutil.Fill(t, tbl, recs)
package testutil
