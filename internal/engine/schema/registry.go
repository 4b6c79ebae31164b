package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// deniedTablePrefixes marks tables reserved for engine bookkeeping. Tables
// matching a prefix are never accessible, regardless of registration.
var deniedTablePrefixes = []string{"sys_", "cache_"}

// Registry manages all table schemas known to the engine. It is the single
// authorization choke point: every component consults IsTableAccessible and
// IsFieldAccessible before touching a table or field. A registry is loaded
// once and treated as immutable for the lifetime of a request cycle.
type Registry struct {
	tables map[string]*TableSchema
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*TableSchema)}
}

// Register registers a table schema after structural validation
func (r *Registry) Register(table *TableSchema) error {
	if err := validateStructural(table); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", table.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tables[table.Name]; exists {
		return fmt.Errorf("table %s is already registered", table.Name)
	}
	r.tables[table.Name] = table
	return nil
}

// Table retrieves a table schema by name
func (r *Registry) Table(name string) (*TableSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.tables[name]
	return t, exists
}

// Tables returns all registered table names in sorted order
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AccessibleTables returns the names of all tables that pass the access policy
func (r *Registry) AccessibleTables() []string {
	names := r.Tables()
	out := make([]string, 0, len(names))
	for _, name := range names {
		if r.IsTableAccessible(name) {
			out = append(out, name)
		}
	}
	return out
}

// Count returns the number of registered tables
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tables)
}

// FieldsForType resolves the ordered set of field names visible for a record
// of the given discriminator value: the essential fields followed by the
// type's declared layout. An unknown discriminator value degrades to the
// essential set alone; it never fails.
func (r *Registry) FieldsForType(table, discriminator string) []string {
	t, ok := r.Table(table)
	if !ok {
		return nil
	}

	seen := make(map[string]bool)
	fields := make([]string, 0, len(t.Essentials))
	for _, name := range t.Essentials {
		if !seen[name] {
			seen[name] = true
			fields = append(fields, name)
		}
	}

	layout, ok := t.Layouts[discriminator]
	if !ok {
		return fields
	}
	for _, name := range layout {
		if !seen[name] {
			seen[name] = true
			fields = append(fields, name)
		}
	}
	return fields
}

// Field returns the field schema for table.field, if declared
func (r *Registry) Field(table, field string) (*FieldSchema, bool) {
	t, ok := r.Table(table)
	if !ok {
		return nil, false
	}
	return t.Field(field)
}

// Control returns the control field names for a table
func (r *Registry) Control(table string) (ControlFields, bool) {
	t, ok := r.Table(table)
	if !ok {
		return ControlFields{}, false
	}
	return t.Control, true
}

// IsTableAccessible reports whether the table may be exposed to callers
func (r *Registry) IsTableAccessible(table string) bool {
	for _, prefix := range deniedTablePrefixes {
		if strings.HasPrefix(table, prefix) {
			return false
		}
	}
	t, ok := r.Table(table)
	if !ok {
		return false
	}
	return !t.Internal
}

// IsFieldAccessible reports whether the field may be exposed to callers.
// Control columns are accessible whenever their table is; declared fields
// additionally honor their Internal flag.
func (r *Registry) IsFieldAccessible(table, field string) bool {
	if !r.IsTableAccessible(table) {
		return false
	}
	t, _ := r.Table(table)
	if t.IsControlField(field) {
		return true
	}
	f, ok := t.Field(field)
	if !ok {
		return false
	}
	return !f.Internal
}

// validateStructural checks a single table schema for internal consistency
func validateStructural(t *TableSchema) error {
	if t.Name == "" {
		return fmt.Errorf("table name is required")
	}
	if t.Control.PrimaryKey == "" {
		return fmt.Errorf("primary key field name is required")
	}

	declared := func(name string) bool {
		if t.IsControlField(name) {
			return true
		}
		_, ok := t.Fields[name]
		return ok
	}

	for _, name := range t.Essentials {
		if !declared(name) {
			return fmt.Errorf("essential field %s is not declared", name)
		}
	}

	for typeValue, layout := range t.Layouts {
		for _, name := range layout {
			if !declared(name) {
				return fmt.Errorf("layout %s references undeclared field %s", typeValue, name)
			}
		}
	}

	for name, f := range t.Fields {
		if f.Name == "" {
			f.Name = name
		}
		if f.Name != name {
			return fmt.Errorf("field %s declares mismatched name %s", name, f.Name)
		}
		if f.Kind == FieldRelation && f.Relation == nil {
			return fmt.Errorf("relation field %s has no relation descriptor", name)
		}
		if f.Relation != nil {
			if err := validateRelation(name, f.Relation); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateRelation(field string, rel *RelationSchema) error {
	switch rel.Shape {
	case RelationDirect:
		if rel.TargetTable == "" {
			return fmt.Errorf("direct relation %s needs a target table", field)
		}
	case RelationManyToMany:
		if rel.JunctionTable == "" || rel.LocalField == "" || rel.ForeignJunctionField == "" {
			return fmt.Errorf("many-to-many relation %s needs junction table and columns", field)
		}
	case RelationInlineIndependent, RelationInlineEmbedded:
		if rel.TargetTable == "" || rel.ForeignField == "" {
			return fmt.Errorf("inline relation %s needs target table and foreign column", field)
		}
	default:
		return fmt.Errorf("relation %s has unknown shape", field)
	}
	return nil
}
