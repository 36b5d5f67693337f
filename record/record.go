package record

import (
	"slices"
)

// Record is a participant record: an integer id plus its fields.
type Record struct {
	ID     int64  `json:"id" msgpack:"id"`
	Fields Fields `json:"fields" msgpack:"fields"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	return Record{ID: r.ID, Fields: r.Fields.Clone()}
}

// Get returns the named field.
func (r Record) Get(name string) (Value, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// Block maps record ids to records for one contiguous id range.
type Block map[int64]Record

// NewBlock builds a block from a record list. Later duplicates win.
func NewBlock(recs []Record) Block {
	b := make(Block, len(recs))
	for _, r := range recs {
		b[r.ID] = r
	}
	return b
}

// IDs returns the block's ids in ascending order.
func (b Block) IDs() []int64 {
	ids := make([]int64, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Records returns the block's records ordered by id.
func (b Block) Records() []Record {
	out := make([]Record, 0, len(b))
	for _, id := range b.IDs() {
		out = append(out, b[id])
	}
	return out
}
