// Package record defines the participant record model shared by the cache,
// the table backends and the snapshot format.
//
// A Record is an id plus an unordered bag of named, typed field values:
//
//	rec := record.Record{
//	    ID: 205,
//	    Fields: record.Fields{
//	        "first_name": record.String("Ada"),
//	        "approved":   record.Bool(true),
//	        "visits":     record.Int(3),
//	    },
//	}
//
// Field values use a small tagged representation (Value) instead of `any` so
// blocks can be encoded compactly and compared without reflection.
//
// # Encoding
//
// Fields implements encoding.BinaryMarshaler. EncodeBlock/DecodeBlock encode a
// whole block of records; the cache stores blocks in this form by default.
package record
