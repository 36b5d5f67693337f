package record

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected Value
	}{
		{"nil", nil, Null()},
		{"Value", Int(1), Int(1)},
		{"bool", true, Bool(true)},
		{"string", "hello", String("hello")},
		{"float64", 3.14, Float(3.14)},
		{"float32", float32(1.5), Float(1.5)},
		{"int", int(1), Int(1)},
		{"int8", int8(1), Int(1)},
		{"uint32 max", uint32(math.MaxUint32), Int(int64(math.MaxUint32))},
		{"uint64", uint64(1 << 40), Int(1 << 40)},
		{"strings", []string{"a"}, Array([]Value{String("a")})},
		{"any slice", []any{1, "a"}, Array([]Value{Int(1), String("a")})},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v, err := FromAny(tc.input)
			require.NoError(t, err)
			assert.True(t, tc.expected.Equal(v))
		})
	}

	t.Run("uint64 overflow", func(t *testing.T) {
		_, err := FromAny(uint64(math.MaxUint64))
		assert.Error(t, err)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := FromAny(struct{}{})
		assert.Error(t, err)
	})
}

func TestFieldsFromAny(t *testing.T) {
	f, err := FieldsFromAny(map[string]any{"name": "Ada", "age": 36})
	require.NoError(t, err)
	assert.Equal(t, "Ada", f["name"].StringValue())

	_, err = FieldsFromAny(map[string]any{"bad": make(chan int)})
	assert.ErrorContains(t, err, `field "bad"`)
}

func TestFieldsCloneIsDeep(t *testing.T) {
	orig := Fields{"tags": Array([]Value{String("a")})}
	clone := orig.Clone()

	clone["tags"].A[0] = String("changed")

	assert.Equal(t, "a", orig["tags"].A[0].StringValue())
}

func TestValueJSON(t *testing.T) {
	for _, v := range []Value{Null(), Int(123), String("hello"), Bool(true), Float(2.5), Array([]Value{Int(1), String("a")})} {
		b, err := json.Marshal(v)
		require.NoError(t, err)

		var got Value
		require.NoError(t, json.Unmarshal(b, &got))
		assert.True(t, v.Equal(got), "round trip %s", v.Key())
	}
}

func TestValueInterface(t *testing.T) {
	assert.Equal(t, "test", String("test").Interface())
	assert.Equal(t, int64(123), Int(123).Interface())
	assert.Nil(t, Null().Interface())
	assert.Equal(t, []any{int64(1), "a"}, Array([]Value{Int(1), String("a")}).Interface())

	m := Fields{"k": String("v")}.ToMap()
	assert.Equal(t, "v", m["k"])
}
