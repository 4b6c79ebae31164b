package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Object is a string-keyed value map that remembers insertion order. Records
// are ordered field maps, so plain Go maps are not enough here.
type Object struct {
	keys []string
	m    map[string]Value
}

// NewObject creates an empty object
func NewObject() *Object {
	return &Object{m: make(map[string]Value)}
}

// ObjectFromMap builds an object from a plain map with sorted keys, so the
// result is deterministic even though the input map is not ordered.
func ObjectFromMap(m map[string]interface{}) *Object {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	obj := NewObject()
	for _, k := range keys {
		obj.Set(k, FromInterface(m[k]))
	}
	return obj
}

// Set stores a value under the given key, appending the key on first use
func (o *Object) Set(key string, v Value) {
	if _, exists := o.m[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.m[key] = v
}

// Get returns the value stored under the key
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.m[key]
	return v, ok
}

// Has reports whether the key is present
func (o *Object) Has(key string) bool {
	_, ok := o.m[key]
	return ok
}

// Delete removes a key, preserving the order of the remaining keys
func (o *Object) Delete(key string) {
	if _, exists := o.m[key]; !exists {
		return
	}
	delete(o.m, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of keys
func (o *Object) Len() int { return len(o.keys) }

// Keys returns the keys in insertion order
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Clone returns a shallow copy of the object
func (o *Object) Clone() *Object {
	clone := NewObject()
	for _, k := range o.keys {
		clone.Set(k, o.m[k])
	}
	return clone
}

// Interface converts the object to a plain map
func (o *Object) Interface() map[string]interface{} {
	out := make(map[string]interface{}, len(o.keys))
	for _, k := range o.keys {
		out[k] = o.m[k].Interface()
	}
	return out
}

// Equal reports deep equality ignoring key order
func (o *Object) Equal(other *Object) bool {
	if o == nil || other == nil {
		return o == other
	}
	if len(o.keys) != len(other.keys) {
		return false
	}
	for _, k := range o.keys {
		ov, ok := other.m[k]
		if !ok || !o.m[k].Equal(ov) {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler, emitting keys in insertion order
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyData, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyData)
		buf.WriteByte(':')
		valData, err := json.Marshal(o.m[k])
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", k, err)
		}
		buf.Write(valData)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving key order
func (o *Object) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	obj, ok := v.AsObject()
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", v.Kind())
	}
	*o = *obj
	return nil
}
