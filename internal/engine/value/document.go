package value

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// settingsNamespace is the reserved dotted prefix whose entries are hoisted
// into a dedicated settings sub-object on parse.
const settingsNamespace = "settings."

// ParseDocument parses an embedded-document blob (a JSON object of dotted
// keys) into a nested object. Keys under the settings namespace are hoisted
// into a "settings" sub-object with the prefix stripped; a remaining name
// starting with an uppercase letter gets its first character lower-cased.
// A corrupt blob yields an empty object rather than an error, so one bad
// embedded field cannot hide an otherwise valid record.
func ParseDocument(blob string) *Object {
	var flat map[string]interface{}
	if err := json.Unmarshal([]byte(blob), &flat); err != nil {
		return NewObject()
	}

	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := NewObject()
	for _, key := range keys {
		path := key
		target := root
		if strings.HasPrefix(key, settingsNamespace) {
			rest := lowerFirst(strings.TrimPrefix(key, settingsNamespace))
			if rest == "" {
				continue
			}
			target = childObject(root, "settings")
			path = rest
		}
		setPath(target, path, FromInterface(flat[key]))
	}
	return root
}

// SerializeDocument flattens a nested document object back into the dotted
// key blob format. A settings sub-object re-expands into settings.* keys by
// way of ordinary nesting.
func SerializeDocument(doc *Object) string {
	flat := NewObject()
	flatten("", doc, flat)

	data, err := flat.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(data)
}

func flatten(prefix string, obj *Object, out *Object) {
	for _, key := range obj.Keys() {
		v, _ := obj.Get(key)
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := v.AsObject(); ok {
			flatten(path, nested, out)
			continue
		}
		out.Set(path, v)
	}
}

// setPath stores a value under a dotted path, creating intermediate objects
func setPath(obj *Object, path string, v Value) {
	segments := strings.Split(path, ".")
	for _, segment := range segments[:len(segments)-1] {
		obj = childObject(obj, segment)
	}
	obj.Set(segments[len(segments)-1], v)
}

// childObject returns the nested object under key, creating it if the key is
// absent or holds a non-object value
func childObject(obj *Object, key string) *Object {
	if existing, ok := obj.Get(key); ok {
		if nested, ok := existing.AsObject(); ok {
			return nested
		}
	}
	nested := NewObject()
	obj.Set(key, FromObject(nested))
	return nested
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
