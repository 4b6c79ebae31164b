// Package schema provides the type schema registry: a declarative, read-only
// description of tables, their fields, discriminator-driven field layouts and
// relation shapes. Every other engine component asks this package what a field
// means instead of re-deriving field semantics ad hoc.
package schema

import (
	"fmt"
	"strconv"
)

// FieldKind represents the value kind of a field
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldInteger
	FieldFloat
	FieldBool
	FieldSelect
	FieldMultiSelect
	FieldRelation
	FieldDocument
	FieldOpaque
)

// String returns the string representation of the field kind
func (k FieldKind) String() string {
	switch k {
	case FieldText:
		return "text"
	case FieldInteger:
		return "integer"
	case FieldFloat:
		return "float"
	case FieldBool:
		return "bool"
	case FieldSelect:
		return "select"
	case FieldMultiSelect:
		return "multiselect"
	case FieldRelation:
		return "relation"
	case FieldDocument:
		return "document"
	case FieldOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// ParseFieldKind converts a string to a FieldKind
func ParseFieldKind(s string) (FieldKind, error) {
	switch s {
	case "text":
		return FieldText, nil
	case "integer":
		return FieldInteger, nil
	case "float":
		return FieldFloat, nil
	case "bool":
		return FieldBool, nil
	case "select":
		return FieldSelect, nil
	case "multiselect":
		return FieldMultiSelect, nil
	case "relation":
		return FieldRelation, nil
	case "document":
		return FieldDocument, nil
	case "opaque":
		return FieldOpaque, nil
	default:
		return 0, fmt.Errorf("unknown field kind: %s", s)
	}
}

// RelationShape represents how a relation field is stored and resolved
type RelationShape int

const (
	// RelationDirect stores one or more target ids in the local column
	RelationDirect RelationShape = iota
	// RelationManyToMany resolves through a junction table
	RelationManyToMany
	// RelationInlineIndependent points at autonomous child rows via a
	// foreign column on the target table; the relation value is an id list
	RelationInlineIndependent
	// RelationInlineEmbedded owns its child rows entirely; children are
	// always returned and mutated inline with the parent
	RelationInlineEmbedded
)

// String returns the string representation of the relation shape
func (s RelationShape) String() string {
	switch s {
	case RelationDirect:
		return "direct"
	case RelationManyToMany:
		return "many_to_many"
	case RelationInlineIndependent:
		return "inline"
	case RelationInlineEmbedded:
		return "inline_embedded"
	default:
		return "unknown"
	}
}

// ParseRelationShape converts a string to a RelationShape
func ParseRelationShape(s string) (RelationShape, error) {
	switch s {
	case "direct":
		return RelationDirect, nil
	case "many_to_many":
		return RelationManyToMany, nil
	case "inline":
		return RelationInlineIndependent, nil
	case "inline_embedded":
		return RelationInlineEmbedded, nil
	default:
		return 0, fmt.Errorf("unknown relation shape: %s", s)
	}
}

// TemporalKind classifies date/time evaluation rules
type TemporalKind int

const (
	TemporalNone TemporalKind = iota
	TemporalDate
	TemporalDateTime
	TemporalTime
)

// Option is the canonical representation of one select choice. Both legacy
// encodings are normalized into this shape at load time; nothing downstream
// branches on encoding age.
type Option struct {
	Value string
	Label string
}

// DividerValue marks a pseudo-option used purely as a visual divider. Divider
// entries never match a stored selection.
const DividerValue = "--div--"

// IsDivider reports whether the option is a divider marker
func (o Option) IsDivider() bool { return o.Value == DividerValue }

// RelationSchema describes a relation-kind field
type RelationSchema struct {
	Shape       RelationShape
	TargetTable string

	// ForeignField is the column on the target table that points back at
	// the local record (inline shapes).
	ForeignField string

	// Junction configuration (many-to-many)
	JunctionTable        string
	LocalField           string
	ForeignJunctionField string
	Reversed             bool
	Match                map[string]string
	SortField            string

	// Multiple is false for single-valued relations; extra ids stored in a
	// single-valued direct relation are silently dropped.
	Multiple bool

	// ChildSortField names the sort column on embedded child rows
	ChildSortField string
}

// Constraints holds per-field validation configuration
type Constraints struct {
	Required  bool
	MaxLength int
	Integer   bool
	Float     bool
	Email     bool
	Temporal  TemporalKind
}

// FieldSchema describes one field of one table
type FieldSchema struct {
	Name        string
	Kind        FieldKind
	Label       string
	Options     []Option
	Relation    *RelationSchema
	Constraints Constraints

	// Internal fields are excluded from the access policy
	Internal bool
}

// IsRelation reports whether the field is relation-kind
func (f *FieldSchema) IsRelation() bool {
	return f.Kind == FieldRelation && f.Relation != nil
}

// NumericEval reports whether stored values of this field should be coerced
// to a numeric transport value. A select field only qualifies when every
// declared option value is integer-like; a mixed enumeration is left alone so
// non-numeric codes are not silently corrupted.
func (f *FieldSchema) NumericEval() bool {
	switch f.Kind {
	case FieldInteger, FieldFloat:
		return true
	case FieldSelect:
		return f.AllOptionsInteger()
	}
	return f.Constraints.Integer || f.Constraints.Float
}

// AllOptionsInteger reports whether every non-divider option value parses as
// an integer. A select without options never qualifies.
func (f *FieldSchema) AllOptionsInteger() bool {
	seen := false
	for _, opt := range f.Options {
		if opt.IsDivider() {
			continue
		}
		if _, err := strconv.ParseInt(opt.Value, 10, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

// ControlFields names the storage columns the engine itself interprets
type ControlFields struct {
	PrimaryKey        string
	Container         string
	Discriminator     string
	Sort              string
	SoftDelete        string
	TranslationParent string
	Language          string
	CreatedAt         string
	UpdatedAt         string

	// Versioning overlay columns
	Origin     string
	DraftState string
	Workspace  string
}

// TableSchema describes one table of the registry
type TableSchema struct {
	Name             string
	Label            string
	Control          ControlFields
	SourceLanguageID int64

	// DefaultOrder is a parsed-on-demand "field ASC, field DESC" spec used
	// when no sort field is declared.
	DefaultOrder string

	ReadOnly bool
	Internal bool

	Fields map[string]*FieldSchema

	// Layouts maps a discriminator value to the ordered field names visible
	// for that type.
	Layouts map[string][]string

	// Essentials are always included regardless of type.
	Essentials []string
}

// Field returns the schema for a field, if declared
func (t *TableSchema) Field(name string) (*FieldSchema, bool) {
	f, ok := t.Fields[name]
	return f, ok
}

// IsControlField reports whether the column is one of the engine-interpreted
// control columns rather than a declared content field.
func (t *TableSchema) IsControlField(name string) bool {
	c := t.Control
	switch name {
	case "":
		return false
	case c.PrimaryKey, c.Container, c.Discriminator, c.Sort, c.SoftDelete,
		c.TranslationParent, c.Language, c.CreatedAt, c.UpdatedAt,
		c.Origin, c.DraftState, c.Workspace:
		return true
	}
	return false
}

// Versioned reports whether the table carries overlay columns
func (t *TableSchema) Versioned() bool {
	return t.Control.Origin != "" && t.Control.DraftState != "" && t.Control.Workspace != ""
}
