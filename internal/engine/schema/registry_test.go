package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(name string) *TableSchema {
	return &TableSchema{
		Name: name,
		Control: ControlFields{
			PrimaryKey:    "id",
			Discriminator: "kind",
			SoftDelete:    "deleted",
		},
		Fields: map[string]*FieldSchema{
			"name":  {Name: "name", Kind: FieldText},
			"price": {Name: "price", Kind: FieldText, Constraints: Constraints{Integer: true}},
			"notes": {Name: "notes", Kind: FieldText, Internal: true},
		},
		Layouts: map[string][]string{
			"basic":    {"name", "price"},
			"extended": {"name", "price", "notes"},
		},
		Essentials: []string{"id", "kind"},
	}
}

func TestRegistryRegister(t *testing.T) {
	t.Run("register and retrieve", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(newTestTable("item")))

		tab, ok := reg.Table("item")
		require.True(t, ok)
		assert.Equal(t, "item", tab.Name)
		assert.Equal(t, 1, reg.Count())
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.Register(newTestTable("item")))
		err := reg.Register(newTestTable("item"))
		assert.Error(t, err)
	})

	t.Run("missing primary key fails", func(t *testing.T) {
		reg := NewRegistry()
		tab := newTestTable("item")
		tab.Control.PrimaryKey = ""
		assert.Error(t, reg.Register(tab))
	})

	t.Run("layout referencing undeclared field fails", func(t *testing.T) {
		reg := NewRegistry()
		tab := newTestTable("item")
		tab.Layouts["basic"] = append(tab.Layouts["basic"], "missing")
		assert.Error(t, reg.Register(tab))
	})

	t.Run("relation field without descriptor fails", func(t *testing.T) {
		reg := NewRegistry()
		tab := newTestTable("item")
		tab.Fields["owner"] = &FieldSchema{Name: "owner", Kind: FieldRelation}
		assert.Error(t, reg.Register(tab))
	})

	t.Run("junction relation needs columns", func(t *testing.T) {
		reg := NewRegistry()
		tab := newTestTable("item")
		tab.Fields["tags"] = &FieldSchema{
			Name: "tags",
			Kind: FieldRelation,
			Relation: &RelationSchema{
				Shape:         RelationManyToMany,
				JunctionTable: "item_tag",
			},
		}
		assert.Error(t, reg.Register(tab))
	})
}

func TestRegistryAccessPolicy(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newTestTable("item")))

	internal := newTestTable("audit_log")
	internal.Internal = true
	require.NoError(t, reg.Register(internal))

	denied := newTestTable("sys_registry")
	require.NoError(t, reg.Register(denied))

	t.Run("internal table is hidden", func(t *testing.T) {
		assert.True(t, reg.IsTableAccessible("item"))
		assert.False(t, reg.IsTableAccessible("audit_log"))
	})

	t.Run("denied prefix overrides registration", func(t *testing.T) {
		assert.False(t, reg.IsTableAccessible("sys_registry"))
		assert.False(t, reg.IsTableAccessible("cache_pages"))
	})

	t.Run("unregistered table is inaccessible", func(t *testing.T) {
		assert.False(t, reg.IsTableAccessible("nope"))
	})

	t.Run("accessible tables excludes hidden ones", func(t *testing.T) {
		assert.Equal(t, []string{"item"}, reg.AccessibleTables())
	})

	t.Run("internal field is hidden", func(t *testing.T) {
		assert.True(t, reg.IsFieldAccessible("item", "name"))
		assert.False(t, reg.IsFieldAccessible("item", "notes"))
		assert.False(t, reg.IsFieldAccessible("item", "missing"))
	})

	t.Run("control columns ride the table policy", func(t *testing.T) {
		assert.True(t, reg.IsFieldAccessible("item", "id"))
		assert.True(t, reg.IsFieldAccessible("item", "deleted"))
		assert.False(t, reg.IsFieldAccessible("audit_log", "id"))
	})
}

func TestFieldsForType(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newTestTable("item")))

	t.Run("essentials precede the layout", func(t *testing.T) {
		fields := reg.FieldsForType("item", "basic")
		assert.Equal(t, []string{"id", "kind", "name", "price"}, fields)
	})

	t.Run("unknown discriminator degrades to essentials", func(t *testing.T) {
		fields := reg.FieldsForType("item", "bogus")
		assert.Equal(t, []string{"id", "kind"}, fields)
	})

	t.Run("duplicates are collapsed", func(t *testing.T) {
		tab := newTestTable("thing")
		tab.Essentials = []string{"id", "name"}
		require.NoError(t, reg.Register(tab))

		fields := reg.FieldsForType("thing", "basic")
		assert.Equal(t, []string{"id", "name", "price"}, fields)
	})

	t.Run("unknown table yields nil", func(t *testing.T) {
		assert.Nil(t, reg.FieldsForType("nope", "basic"))
	})
}

func TestNumericEval(t *testing.T) {
	t.Run("integer eval", func(t *testing.T) {
		f := &FieldSchema{Kind: FieldText, Constraints: Constraints{Integer: true}}
		assert.True(t, f.NumericEval())
	})

	t.Run("select with all-integer options", func(t *testing.T) {
		f := &FieldSchema{
			Kind: FieldSelect,
			Options: []Option{
				{Value: "1", Label: "One"},
				{Value: DividerValue, Label: ""},
				{Value: "2", Label: "Two"},
			},
		}
		assert.True(t, f.NumericEval())
	})

	t.Run("select with mixed options stays textual", func(t *testing.T) {
		f := &FieldSchema{
			Kind: FieldSelect,
			Options: []Option{
				{Value: "1", Label: "One"},
				{Value: "draft", Label: "Draft"},
			},
		}
		assert.False(t, f.NumericEval())
	})

	t.Run("select without options stays textual", func(t *testing.T) {
		f := &FieldSchema{Kind: FieldSelect}
		assert.False(t, f.NumericEval())
	})
}

func TestVersioned(t *testing.T) {
	tab := newTestTable("item")
	assert.False(t, tab.Versioned())

	tab.Control.Origin = "origin_id"
	tab.Control.DraftState = "draft_state"
	tab.Control.Workspace = "workspace_id"
	assert.True(t, tab.Versioned())
}
