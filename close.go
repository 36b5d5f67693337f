package pdbcache

import "io"

// Close marks the DB closed. With WithCloseTable it also closes the table.
func (db *DB) Close() error {
	if db == nil || !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	if db.opts.closeTable {
		if c, ok := db.tbl.(io.Closer); ok {
			return c.Close()
		}
	}
	return nil
}
