package value

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/draftline/draftline/internal/engine/schema"
)

// datePattern matches the ISO-8601 date and datetime strings the decode path
// converts back to epoch seconds.
var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([T ]\d{2}:\d{2}(:\d{2})?([+-]\d{2}:\d{2}|Z)?)?$`)

var decodeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Codec converts raw stored scalars into transport values and back, driven
// entirely by the schema registry.
type Codec struct {
	reg *schema.Registry
	loc *time.Location
}

// NewCodec creates a codec using the process's local time offset for
// timestamp rendering
func NewCodec(reg *schema.Registry) *Codec {
	return &Codec{reg: reg, loc: time.Local}
}

// Encode converts a stored scalar into its transport value.
func (c *Codec) Encode(table, field string, stored interface{}) Value {
	if stored == nil {
		return Null
	}

	fs, _ := c.reg.Field(table, field)

	if fs != nil && fs.NumericEval() {
		return coerceNumeric(stored, fs)
	}

	if fs != nil && fs.Kind == schema.FieldDocument {
		if s, ok := stringOf(stored); ok {
			return FromObject(ParseDocument(s))
		}
	}

	if s, ok := stringOf(stored); ok && looksLikeObjectLiteral(s) {
		var v Value
		if err := v.UnmarshalJSON([]byte(s)); err == nil {
			if _, isObj := v.AsObject(); isObj {
				return v
			}
		}
		return Text(s)
	}

	if c.isTemporal(table, fs, field) {
		if seconds, ok := intOf(stored); ok {
			if seconds <= 0 {
				return Null
			}
			return Text(time.Unix(seconds, 0).In(c.loc).Format(time.RFC3339))
		}
	}

	return FromInterface(stored)
}

// Decode converts a transport value back into its stored representation,
// the inverse of Encode on the write path.
func (c *Codec) Decode(table, field string, v Value) interface{} {
	fs, _ := c.reg.Field(table, field)

	if s, ok := v.AsText(); ok && c.isTemporal(table, fs, field) && datePattern.MatchString(s) {
		if seconds, ok := parseDateString(s, c.loc); ok {
			return seconds
		}
	}

	if fs != nil && fs.Kind == schema.FieldDocument {
		if obj, ok := v.AsObject(); ok {
			return SerializeDocument(obj)
		}
	}

	if fs != nil && (fs.Kind == schema.FieldMultiSelect || fs.Kind == schema.FieldSelect) {
		if items, ok := v.AsList(); ok {
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = item.String()
			}
			return strings.Join(parts, ",")
		}
	}

	return v.Interface()
}

// isTemporal reports whether a field carries timestamps: either an explicit
// date/datetime/time evaluation rule, or one of the conventional timestamp
// control columns.
func (c *Codec) isTemporal(table string, fs *schema.FieldSchema, field string) bool {
	if fs != nil && fs.Constraints.Temporal != schema.TemporalNone {
		return true
	}
	if control, ok := c.reg.Control(table); ok {
		if field != "" && (field == control.CreatedAt || field == control.UpdatedAt) {
			return true
		}
	}
	return false
}

// coerceNumeric converts string or numeric input into the numeric transport
// type the field is configured for. Unparseable input passes through as-is.
func coerceNumeric(stored interface{}, fs *schema.FieldSchema) Value {
	wantFloat := fs.Kind == schema.FieldFloat || fs.Constraints.Float

	switch v := stored.(type) {
	case int64, int, int32, uint, uint32, uint64:
		n := FromInterface(v)
		if wantFloat {
			i, _ := n.AsInt()
			return Float(float64(i))
		}
		return n
	case float64:
		if wantFloat {
			return Float(v)
		}
		return Int(int64(v))
	case float32:
		if wantFloat {
			return Float(float64(v))
		}
		return Int(int64(v))
	case string:
		return coerceNumericString(v, wantFloat)
	case []byte:
		return coerceNumericString(string(v), wantFloat)
	}
	return FromInterface(stored)
}

func coerceNumericString(s string, wantFloat bool) Value {
	trimmed := strings.TrimSpace(s)
	if wantFloat {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return Float(f)
		}
		return Text(s)
	}
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return Int(int64(f))
	}
	return Text(s)
}

func parseDateString(s string, loc *time.Location) (int64, bool) {
	for _, layout := range decodeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

func looksLikeObjectLiteral(s string) bool {
	trimmed := strings.TrimSpace(s)
	return len(trimmed) >= 2 && strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")
}

func stringOf(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	}
	return "", false
}

func intOf(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}
