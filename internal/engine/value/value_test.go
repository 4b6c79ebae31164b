package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueKinds(t *testing.T) {
	t.Run("zero value is null", func(t *testing.T) {
		var v Value
		assert.True(t, v.IsNull())
		assert.Equal(t, KindNull, v.Kind())
	})

	t.Run("accessors reject mismatched kinds", func(t *testing.T) {
		v := Int(42)
		i, ok := v.AsInt()
		assert.True(t, ok)
		assert.Equal(t, int64(42), i)

		_, ok = v.AsText()
		assert.False(t, ok)
		_, ok = v.AsFloat()
		assert.False(t, ok)
	})

	t.Run("interface round trip", func(t *testing.T) {
		assert.Equal(t, int64(7), Int(7).Interface())
		assert.Equal(t, "hi", Text("hi").Interface())
		assert.Equal(t, true, Bool(true).Interface())
		assert.Nil(t, Null.Interface())
		assert.Equal(t, []interface{}{int64(1), "a"}, List(Int(1), Text("a")).Interface())
	})
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Int(1).Equal(Int(1)))
	assert.False(t, Int(1).Equal(Int(2)))
	assert.False(t, Int(1).Equal(Float(1)))
	assert.True(t, List(Int(1), Text("a")).Equal(List(Int(1), Text("a"))))
	assert.False(t, List(Int(1)).Equal(List(Int(1), Int(2))))

	a := NewObject()
	a.Set("x", Int(1))
	b := NewObject()
	b.Set("x", Int(1))
	assert.True(t, FromObject(a).Equal(FromObject(b)))

	b.Set("y", Int(2))
	assert.False(t, FromObject(a).Equal(FromObject(b)))
}

func TestValueJSON(t *testing.T) {
	t.Run("object key order survives a round trip", func(t *testing.T) {
		raw := `{"zeta":1,"alpha":{"inner":"x"},"mid":[1,2.5,true,null]}`

		var v Value
		require.NoError(t, json.Unmarshal([]byte(raw), &v))

		obj, ok := v.AsObject()
		require.True(t, ok)
		assert.Equal(t, []string{"zeta", "alpha", "mid"}, obj.Keys())

		out, err := json.Marshal(v)
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(out))
		assert.Equal(t, raw, string(out))
	})

	t.Run("integers stay integral", func(t *testing.T) {
		var v Value
		require.NoError(t, json.Unmarshal([]byte(`9007199254740993`), &v))
		i, ok := v.AsInt()
		require.True(t, ok)
		assert.Equal(t, int64(9007199254740993), i)
	})

	t.Run("empty list marshals as brackets", func(t *testing.T) {
		out, err := json.Marshal(List())
		require.NoError(t, err)
		assert.Equal(t, "[]", string(out))
	})

	t.Run("null marshals as null", func(t *testing.T) {
		out, err := json.Marshal(Null)
		require.NoError(t, err)
		assert.Equal(t, "null", string(out))
	})
}

func TestFromInterface(t *testing.T) {
	assert.Equal(t, Null, FromInterface(nil))
	assert.Equal(t, Int(3), FromInterface(3))
	assert.Equal(t, Int(3), FromInterface(int64(3)))
	assert.Equal(t, Float(1.5), FromInterface(1.5))
	assert.Equal(t, Bool(true), FromInterface(true))
	assert.Equal(t, Text("x"), FromInterface("x"))
	assert.Equal(t, Text("bytes"), FromInterface([]byte("bytes")))
	assert.Equal(t, Int(12), FromInterface(json.Number("12")))
	assert.Equal(t, Float(1.2), FromInterface(json.Number("1.2")))

	v := FromInterface([]interface{}{1, "a"})
	assert.True(t, v.Equal(List(Int(1), Text("a"))))

	t.Run("maps get deterministic key order", func(t *testing.T) {
		v := FromInterface(map[string]interface{}{"b": 2, "a": 1})
		obj, ok := v.AsObject()
		require.True(t, ok)
		assert.Equal(t, []string{"a", "b"}, obj.Keys())
	})

	t.Run("unknown types degrade to text", func(t *testing.T) {
		type odd struct{ X int }
		v := FromInterface(odd{X: 1})
		_, ok := v.AsText()
		assert.True(t, ok)
	})
}

func TestObject(t *testing.T) {
	obj := NewObject()
	obj.Set("a", Int(1))
	obj.Set("b", Int(2))
	obj.Set("a", Int(3)) // overwrite keeps position

	assert.Equal(t, []string{"a", "b"}, obj.Keys())
	v, ok := obj.Get("a")
	require.True(t, ok)
	assert.True(t, v.Equal(Int(3)))

	obj.Delete("a")
	assert.Equal(t, []string{"b"}, obj.Keys())
	assert.False(t, obj.Has("a"))
	assert.Equal(t, 1, obj.Len())

	t.Run("clone is independent", func(t *testing.T) {
		clone := obj.Clone()
		clone.Set("c", Int(9))
		assert.False(t, obj.Has("c"))
		assert.True(t, clone.Has("b"))
	})
}
