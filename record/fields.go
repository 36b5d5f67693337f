package record

import (
	"fmt"
	"math"
)

// Fields is the unordered bag of named values carried by a record.
type Fields map[string]Value

// Clone creates a deep copy of the fields.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}

	clone := make(Fields, len(f))
	for k, v := range f {
		clone[k] = v.clone()
	}
	return clone
}

// ToMap converts the fields to a plain map[string]any.
func (f Fields) ToMap() map[string]any {
	m := make(map[string]any, len(f))
	for k, v := range f {
		m[k] = v.Interface()
	}
	return m
}

// Equal reports whether both field sets hold the same names and values.
func (f Fields) Equal(o Fields) bool {
	if len(f) != len(o) {
		return false
	}
	for k, v := range f {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// FromAny converts a Go value into a typed Value.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return Value{}, fmt.Errorf("field uint out of range: %d", x)
		}
		return Int(int64(x)), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, fmt.Errorf("field uint64 out of range: %d", x)
		}
		return Int(int64(x)), nil
	case []Value:
		return Array(x), nil
	case []any:
		arr := make([]Value, len(x))
		for i := range x {
			vv, err := FromAny(x[i])
			if err != nil {
				return Value{}, err
			}
			arr[i] = vv
		}
		return Array(arr), nil
	case []string:
		arr := make([]Value, len(x))
		for i := range x {
			arr[i] = String(x[i])
		}
		return Array(arr), nil
	case []int:
		arr := make([]Value, len(x))
		for i := range x {
			arr[i] = Int(int64(x[i]))
		}
		return Array(arr), nil
	default:
		return Value{}, fmt.Errorf("unsupported field value type %T", v)
	}
}

// FieldsFromAny converts a map[string]any to typed Fields.
func FieldsFromAny(m map[string]any) (Fields, error) {
	f := make(Fields, len(m))
	for k, v := range m {
		vv, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		f[k] = vv
	}
	return f, nil
}
