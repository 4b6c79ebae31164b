package schema

import (
	"encoding/json"
	"fmt"
	"os"
)

// File declaration types. The registry is read-only input to the engine; the
// loader turns a declarative JSON file into a validated Registry.

type registryFile struct {
	Tables []tableDecl `json:"tables"`
}

type tableDecl struct {
	Name             string               `json:"name"`
	Label            string               `json:"label"`
	ReadOnly         bool                 `json:"read_only"`
	Internal         bool                 `json:"internal"`
	Versioned        bool                 `json:"versioned"`
	DefaultOrder     string               `json:"default_order"`
	SourceLanguageID int64                `json:"source_language_id"`
	Control          controlDecl          `json:"control"`
	Essentials       []string             `json:"essentials"`
	Layouts          map[string][]string  `json:"layouts"`
	Fields           map[string]fieldDecl `json:"fields"`
}

type controlDecl struct {
	PrimaryKey        string `json:"primary_key"`
	Container         string `json:"container"`
	Discriminator     string `json:"discriminator"`
	Sort              string `json:"sort"`
	SoftDelete        string `json:"soft_delete"`
	TranslationParent string `json:"translation_parent"`
	Language          string `json:"language"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
	Origin            string `json:"origin"`
	DraftState        string `json:"draft_state"`
	Workspace         string `json:"workspace"`
}

type fieldDecl struct {
	Kind      string          `json:"kind"`
	Label     string          `json:"label"`
	Internal  bool            `json:"internal"`
	Required  bool            `json:"required"`
	MaxLength int             `json:"max_length"`
	Eval      string          `json:"eval"`
	Options   json.RawMessage `json:"options"`
	Relation  *relationDecl   `json:"relation"`
}

type relationDecl struct {
	Shape                string            `json:"shape"`
	TargetTable          string            `json:"target_table"`
	ForeignField         string            `json:"foreign_field"`
	JunctionTable        string            `json:"junction_table"`
	LocalField           string            `json:"local_field"`
	ForeignJunctionField string            `json:"foreign_junction_field"`
	Reversed             bool              `json:"reversed"`
	Match                map[string]string `json:"match"`
	SortField            string            `json:"sort_field"`
	Multiple             bool              `json:"multiple"`
	ChildSortField       string            `json:"child_sort_field"`
}

// Load reads and parses a registry file from disk
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry file %s: %w", path, err)
	}
	return reg, nil
}

// Parse builds a validated Registry from a JSON registry declaration
func Parse(data []byte) (*Registry, error) {
	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid registry JSON: %w", err)
	}

	reg := NewRegistry()
	for _, decl := range file.Tables {
		table, err := buildTable(decl)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", decl.Name, err)
		}
		if err := reg.Register(table); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func buildTable(decl tableDecl) (*TableSchema, error) {
	control := ControlFields{
		PrimaryKey:        decl.Control.PrimaryKey,
		Container:         decl.Control.Container,
		Discriminator:     decl.Control.Discriminator,
		Sort:              decl.Control.Sort,
		SoftDelete:        decl.Control.SoftDelete,
		TranslationParent: decl.Control.TranslationParent,
		Language:          decl.Control.Language,
		CreatedAt:         decl.Control.CreatedAt,
		UpdatedAt:         decl.Control.UpdatedAt,
		Origin:            decl.Control.Origin,
		DraftState:        decl.Control.DraftState,
		Workspace:         decl.Control.Workspace,
	}
	if control.PrimaryKey == "" {
		control.PrimaryKey = "id"
	}
	if decl.Versioned {
		if control.Origin == "" {
			control.Origin = "origin_id"
		}
		if control.DraftState == "" {
			control.DraftState = "draft_state"
		}
		if control.Workspace == "" {
			control.Workspace = "workspace_id"
		}
	}

	fields := make(map[string]*FieldSchema, len(decl.Fields))
	for name, fd := range decl.Fields {
		field, err := buildField(name, fd)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fields[name] = field
	}

	essentials := decl.Essentials
	if len(essentials) == 0 {
		essentials = defaultEssentials(control)
	}

	return &TableSchema{
		Name:             decl.Name,
		Label:            decl.Label,
		Control:          control,
		SourceLanguageID: decl.SourceLanguageID,
		DefaultOrder:     decl.DefaultOrder,
		ReadOnly:         decl.ReadOnly,
		Internal:         decl.Internal,
		Fields:           fields,
		Layouts:          decl.Layouts,
		Essentials:       essentials,
	}, nil
}

// defaultEssentials derives the always-included field set from the declared
// control columns when a table does not spell one out.
func defaultEssentials(c ControlFields) []string {
	candidates := []string{
		c.PrimaryKey, c.Container, c.Discriminator,
		c.CreatedAt, c.UpdatedAt, c.SoftDelete, c.Sort,
	}
	out := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

func buildField(name string, decl fieldDecl) (*FieldSchema, error) {
	kind, err := ParseFieldKind(decl.Kind)
	if err != nil {
		return nil, err
	}

	options, err := NormalizeOptions(decl.Options)
	if err != nil {
		return nil, err
	}

	constraints := Constraints{
		Required:  decl.Required,
		MaxLength: decl.MaxLength,
	}
	switch decl.Eval {
	case "":
	case "integer":
		constraints.Integer = true
	case "float":
		constraints.Float = true
	case "email":
		constraints.Email = true
	case "date":
		constraints.Temporal = TemporalDate
	case "datetime":
		constraints.Temporal = TemporalDateTime
	case "time":
		constraints.Temporal = TemporalTime
	default:
		return nil, fmt.Errorf("unknown eval rule: %s", decl.Eval)
	}

	var relation *RelationSchema
	if decl.Relation != nil {
		shape, err := ParseRelationShape(decl.Relation.Shape)
		if err != nil {
			return nil, err
		}
		relation = &RelationSchema{
			Shape:                shape,
			TargetTable:          decl.Relation.TargetTable,
			ForeignField:         decl.Relation.ForeignField,
			JunctionTable:        decl.Relation.JunctionTable,
			LocalField:           decl.Relation.LocalField,
			ForeignJunctionField: decl.Relation.ForeignJunctionField,
			Reversed:             decl.Relation.Reversed,
			Match:                decl.Relation.Match,
			SortField:            decl.Relation.SortField,
			Multiple:             decl.Relation.Multiple,
			ChildSortField:       decl.Relation.ChildSortField,
		}
	}

	return &FieldSchema{
		Name:        name,
		Kind:        kind,
		Label:       decl.Label,
		Options:     options,
		Relation:    relation,
		Constraints: constraints,
		Internal:    decl.Internal,
	}, nil
}
