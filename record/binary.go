package record

import (
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"unique"
)

// blockFormatV1 prefixes every encoded block.
const blockFormatV1 byte = 1

var (
	// ErrCorrupt is returned when encoded fields or blocks cannot be parsed.
	ErrCorrupt = errors.New("record: corrupt encoding")
)

// MarshalBinary implements encoding.BinaryMarshaler.
// Keys are written in sorted order so equal field sets encode identically.
func (f Fields) MarshalBinary() ([]byte, error) {
	return f.appendBinary(make([]byte, 0, 4+len(f)*16))
}

func (f Fields) appendBinary(buf []byte) ([]byte, error) {
	buf = binary.AppendUvarint(buf, uint64(len(f)))

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		buf = binary.AppendUvarint(buf, uint64(len(k)))
		buf = append(buf, k...)

		var err error
		buf, err = appendValue(buf, f[k])
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (f *Fields) UnmarshalBinary(data []byte) error {
	_, err := f.parse(data)
	return err
}

func (f *Fields) parse(data []byte) ([]byte, error) {
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, errors.New("record: invalid fields length")
	}
	data = data[n:]
	if count > uint64(len(data)) {
		return nil, ErrCorrupt
	}

	if *f == nil {
		*f = make(Fields, count)
	}

	for range count {
		kLen, n := binary.Uvarint(data)
		if n <= 0 {
			return nil, errors.New("record: invalid key length")
		}
		data = data[n:]
		if uint64(len(data)) < kLen {
			return nil, errors.New("record: short buffer for key")
		}
		key := string(data[:kLen])
		data = data[kLen:]

		val, remaining, err := parseValue(data)
		if err != nil {
			return nil, err
		}
		(*f)[key] = val
		data = remaining
	}
	return data, nil
}

// EncodeBlock encodes a block of records, ordered by id.
func EncodeBlock(b Block) ([]byte, error) {
	buf := make([]byte, 0, 1+4+len(b)*58)
	buf = append(buf, blockFormatV1)
	buf = binary.AppendUvarint(buf, uint64(len(b)))

	for _, id := range b.IDs() {
		buf = binary.AppendVarint(buf, id)

		var err error
		buf, err = b[id].Fields.appendBinary(buf)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DecodeBlock decodes a block produced by EncodeBlock.
func DecodeBlock(data []byte) (Block, error) {
	if len(data) == 0 || data[0] != blockFormatV1 {
		return nil, ErrCorrupt
	}
	data = data[1:]

	count, n := binary.Uvarint(data)
	if n <= 0 || count > uint64(len(data)) {
		return nil, ErrCorrupt
	}
	data = data[n:]

	b := make(Block, count)
	for range count {
		id, n := binary.Varint(data)
		if n <= 0 {
			return nil, ErrCorrupt
		}
		data = data[n:]

		var fields Fields
		rest, err := fields.parse(data)
		if err != nil {
			return nil, err
		}
		data = rest
		b[id] = Record{ID: id, Fields: fields}
	}
	if len(data) != 0 {
		return nil, ErrCorrupt
	}
	return b, nil
}

func appendValue(buf []byte, v Value) ([]byte, error) {
	buf = append(buf, byte(v.Kind))

	switch v.Kind {
	case KindNull:
	case KindInt:
		buf = binary.AppendVarint(buf, v.I64)
	case KindFloat:
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.F64))
	case KindString:
		s := v.s.Value()
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	case KindBool:
		if v.B {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindArray:
		buf = binary.AppendUvarint(buf, uint64(len(v.A)))
		for _, item := range v.A {
			var err error
			buf, err = appendValue(buf, item)
			if err != nil {
				return nil, err
			}
		}
	default:
		return nil, errors.New("record: unknown value kind")
	}
	return buf, nil
}

func parseValue(data []byte) (Value, []byte, error) {
	if len(data) == 0 {
		return Value{}, nil, errors.New("record: short buffer for value kind")
	}
	kind := Kind(data[0])
	data = data[1:]

	v := Value{Kind: kind}

	switch kind {
	case KindNull:
	case KindInt:
		i, n := binary.Varint(data)
		if n <= 0 {
			return v, nil, errors.New("record: invalid int value")
		}
		v.I64 = i
		data = data[n:]
	case KindFloat:
		if len(data) < 8 {
			return v, nil, errors.New("record: short buffer for float")
		}
		v.F64 = math.Float64frombits(binary.LittleEndian.Uint64(data))
		data = data[8:]
	case KindString:
		sLen, n := binary.Uvarint(data)
		if n <= 0 {
			return v, nil, errors.New("record: invalid string length")
		}
		data = data[n:]
		if uint64(len(data)) < sLen {
			return v, nil, errors.New("record: short buffer for string")
		}
		v.s = unique.Make(string(data[:sLen]))
		data = data[sLen:]
	case KindBool:
		if len(data) == 0 {
			return v, nil, errors.New("record: short buffer for bool")
		}
		v.B = data[0] != 0
		data = data[1:]
	case KindArray:
		aLen, n := binary.Uvarint(data)
		if n <= 0 || aLen > uint64(len(data)) {
			return v, nil, errors.New("record: invalid array length")
		}
		data = data[n:]
		v.A = make([]Value, aLen)
		for i := range aLen {
			item, remaining, err := parseValue(data)
			if err != nil {
				return v, nil, err
			}
			v.A[i] = item
			data = remaining
		}
	default:
		return v, nil, errors.New("record: unknown value kind")
	}
	return v, data, nil
}
