package writer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftline/draftline/internal/engine/record"
	"github.com/draftline/draftline/internal/engine/schema"
	"github.com/draftline/draftline/internal/engine/value"
	"github.com/draftline/draftline/internal/engine/workspace"
	"github.com/draftline/draftline/internal/storage"
)

// mutation records one call against the fake mutator
type mutation struct {
	kind   string
	table  string
	id     int64
	values storage.Row
}

type fakeMutator struct {
	mutations []mutation
	deletions []*storage.Restriction
	nextID    int64
	insertErr error
	updateErr error
	deleteErr error
}

func (f *fakeMutator) Insert(ctx context.Context, table string, values storage.Row, opts ...storage.MutateOption) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.nextID++
	f.mutations = append(f.mutations, mutation{kind: "insert", table: table, id: f.nextID, values: values})
	return f.nextID, nil
}

func (f *fakeMutator) Update(ctx context.Context, table string, id int64, values storage.Row, opts ...storage.MutateOption) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mutations = append(f.mutations, mutation{kind: "update", table: table, id: id, values: values})
	return nil
}

func (f *fakeMutator) SoftDelete(ctx context.Context, table string, id int64, opts ...storage.MutateOption) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.mutations = append(f.mutations, mutation{kind: "delete", table: table, id: id})
	return nil
}

func (f *fakeMutator) DeleteWhere(ctx context.Context, table string, where *storage.Restriction, opts ...storage.MutateOption) error {
	f.mutations = append(f.mutations, mutation{kind: "deleteWhere", table: table})
	f.deletions = append(f.deletions, where)
	return nil
}

func (f *fakeMutator) byKind(kind string) []mutation {
	out := make([]mutation, 0)
	for _, m := range f.mutations {
		if m.kind == kind {
			out = append(out, m)
		}
	}
	return out
}

// stubQuerier serves canned rows keyed by table
type stubQuerier struct {
	rows map[string][]storage.Row
}

func (f *stubQuerier) Select(ctx context.Context, q storage.Query) ([]storage.Row, error) {
	return f.rows[q.Table], nil
}

func (f *stubQuerier) Count(ctx context.Context, q storage.Query) (int, error) {
	return len(f.rows[q.Table]), nil
}

func newWriterRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.TableSchema{
		Name: "article",
		Control: schema.ControlFields{
			PrimaryKey: "id",
			Container:  "pid",
			SoftDelete: "deleted",
			CreatedAt:  "created_at",
			UpdatedAt:  "updated_at",
		},
		Fields: map[string]*schema.FieldSchema{
			"title": {Name: "title", Kind: schema.FieldText, Constraints: schema.Constraints{Required: true, MaxLength: 10}},
			"email": {Name: "email", Kind: schema.FieldText, Constraints: schema.Constraints{Email: true}},
			"links": {Name: "links", Kind: schema.FieldRelation, Relation: &schema.RelationSchema{
				Shape: schema.RelationDirect, TargetTable: "article", Multiple: true,
			}},
			"tags": {Name: "tags", Kind: schema.FieldRelation, Relation: &schema.RelationSchema{
				Shape:                schema.RelationManyToMany,
				TargetTable:          "tag",
				JunctionTable:        "article_tag",
				LocalField:           "article_id",
				ForeignJunctionField: "tag_id",
				SortField:            "sorting",
				Multiple:             true,
			}},
			"blocks": {Name: "blocks", Kind: schema.FieldRelation, Relation: &schema.RelationSchema{
				Shape: schema.RelationInlineEmbedded, TargetTable: "block", ForeignField: "article_id",
				ChildSortField: "sorting", Multiple: true,
			}},
			"attachments": {Name: "attachments", Kind: schema.FieldRelation, Relation: &schema.RelationSchema{
				Shape: schema.RelationInlineIndependent, TargetTable: "file", ForeignField: "article_id", Multiple: true,
			}},
		},
	}))
	require.NoError(t, reg.Register(&schema.TableSchema{
		Name: "block",
		Control: schema.ControlFields{
			PrimaryKey: "id",
			SoftDelete: "deleted",
			CreatedAt:  "created_at",
			UpdatedAt:  "updated_at",
		},
		Fields: map[string]*schema.FieldSchema{
			"body": {Name: "body", Kind: schema.FieldText},
		},
	}))
	require.NoError(t, reg.Register(&schema.TableSchema{
		Name:    "file",
		Control: schema.ControlFields{PrimaryKey: "id"},
		Fields:  map[string]*schema.FieldSchema{},
	}))
	require.NoError(t, reg.Register(&schema.TableSchema{
		Name: "page",
		Control: schema.ControlFields{
			PrimaryKey: "id",
			SoftDelete: "deleted",
			Origin:     "origin_id",
			DraftState: "draft_state",
			Workspace:  "workspace_id",
		},
		Fields: map[string]*schema.FieldSchema{
			"title": {Name: "title", Kind: schema.FieldText},
		},
	}))
	require.NoError(t, reg.Register(&schema.TableSchema{
		Name:     "snapshot",
		ReadOnly: true,
		Control:  schema.ControlFields{PrimaryKey: "id"},
		Fields:   map[string]*schema.FieldSchema{},
	}))
	return reg
}

func newTestWriter(t *testing.T, q storage.Querier, m storage.Mutator) *Writer {
	t.Helper()
	if q == nil {
		q = &stubQuerier{}
	}
	reg := newWriterRegistry(t)
	w := NewWriter(reg, q, m, value.NewCodec(reg), workspace.NewOverlay(reg, q), nil)
	w.now = func() time.Time { return time.Unix(1700000000, 0) }
	return w
}

func payload(pairs ...interface{}) *value.Object {
	obj := value.NewObject()
	for i := 0; i < len(pairs); i += 2 {
		obj.Set(pairs[i].(string), pairs[i+1].(value.Value))
	}
	return obj
}

func TestCreateValidation(t *testing.T) {
	m := &fakeMutator{}
	w := newTestWriter(t, nil, m)
	ctx := context.Background()

	t.Run("primary key is always rejected", func(t *testing.T) {
		_, err := w.Create(ctx, "article", 1, payload("id", value.Int(5), "title", value.Text("x")), 0)
		assert.ErrorIs(t, err, record.ErrValidationFailed)
	})

	t.Run("control fields are rejected", func(t *testing.T) {
		_, err := w.Create(ctx, "article", 1, payload("deleted", value.Int(1), "title", value.Text("x")), 0)
		assert.ErrorIs(t, err, record.ErrValidationFailed)
	})

	t.Run("undeclared fields fail fast", func(t *testing.T) {
		_, err := w.Create(ctx, "article", 1, payload("bogus", value.Text("x")), 0)
		assert.ErrorIs(t, err, record.ErrUnknownField)
	})

	t.Run("required fields must be present on create", func(t *testing.T) {
		_, err := w.Create(ctx, "article", 1, payload("email", value.Text("a@b.co")), 0)
		assert.ErrorIs(t, err, record.ErrValidationFailed)
	})

	t.Run("violations are collected, not first-only", func(t *testing.T) {
		_, err := w.Create(ctx, "article", 1, payload(
			"title", value.Text("far too long a title"),
			"email", value.Text("not-an-address"),
		), 0)
		require.ErrorIs(t, err, record.ErrValidationFailed)

		var verr *record.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Len(t, verr.Errors, 2)
	})

	t.Run("nothing was written", func(t *testing.T) {
		assert.Empty(t, m.mutations)
	})
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("scalars, container default and timestamps", func(t *testing.T) {
		m := &fakeMutator{}
		w := newTestWriter(t, nil, m)

		res, err := w.Create(ctx, "article", 42, payload("title", value.Text("Hello")), 0)
		require.NoError(t, err)
		assert.Equal(t, record.ActionCreate, res.Action)
		assert.Equal(t, int64(1), res.ID)

		inserts := m.byKind("insert")
		require.Len(t, inserts, 1)
		row := inserts[0].values
		assert.Equal(t, "Hello", row["title"])
		assert.Equal(t, int64(42), row["pid"])
		assert.Equal(t, int64(1700000000), row["created_at"])
		assert.Equal(t, int64(1700000000), row["updated_at"])
	})

	t.Run("direct relations store a joined id list", func(t *testing.T) {
		m := &fakeMutator{}
		w := newTestWriter(t, nil, m)

		_, err := w.Create(ctx, "article", 1, payload(
			"title", value.Text("Hello"),
			"links", value.List(value.Int(3), value.Int(5)),
		), 0)
		require.NoError(t, err)

		row := m.byKind("insert")[0].values
		assert.Equal(t, "3,5", row["links"])
	})

	t.Run("workspace create marks the row new-in-draft", func(t *testing.T) {
		m := &fakeMutator{}
		w := newTestWriter(t, nil, m)

		res, err := w.Create(ctx, "page", 0, payload("title", value.Text("Draft page")), 7)
		require.NoError(t, err)

		row := m.byKind("insert")[0].values
		assert.Equal(t, int64(7), row["workspace_id"])
		assert.Equal(t, workspace.DraftStateNew, row["draft_state"])
		// a new-in-draft row's storage id is its live id
		assert.Equal(t, int64(1), res.ID)
	})

	t.Run("read-only and internal tables refuse writes", func(t *testing.T) {
		w := newTestWriter(t, nil, &fakeMutator{})

		_, err := w.Create(ctx, "snapshot", 0, payload(), 0)
		assert.ErrorIs(t, err, record.ErrReadOnly)

		_, err = w.Create(ctx, "sys_registry", 0, payload(), 0)
		assert.ErrorIs(t, err, record.ErrAccessDenied)
	})

	t.Run("insert failure maps to mutation failed", func(t *testing.T) {
		m := &fakeMutator{insertErr: errors.New("boom")}
		w := newTestWriter(t, nil, m)

		_, err := w.Create(ctx, "article", 1, payload("title", value.Text("x")), 0)
		assert.ErrorIs(t, err, record.ErrMutationFailed)
	})
}

func TestCreateEmbeddedChildren(t *testing.T) {
	m := &fakeMutator{}
	w := newTestWriter(t, nil, m)

	child := value.NewObject()
	child.Set("body", value.Text("First"))
	second := value.NewObject()
	second.Set("body", value.Text("Second"))

	res, err := w.Create(context.Background(), "article", 1, payload(
		"title", value.Text("Hello"),
		"blocks", value.List(value.FromObject(child), value.FromObject(second)),
	), 0)
	require.NoError(t, err)

	inserts := m.byKind("insert")
	require.Len(t, inserts, 3)
	assert.Equal(t, "article", inserts[0].table)

	first := inserts[1]
	assert.Equal(t, "block", first.table)
	assert.Equal(t, "First", first.values["body"])
	assert.Equal(t, res.ID, first.values["article_id"])
	assert.Equal(t, int64(256), first.values["sorting"])
	assert.Equal(t, int64(1700000000), first.values["created_at"])

	assert.Equal(t, int64(512), inserts[2].values["sorting"])
}

func TestCreateJunctionRows(t *testing.T) {
	m := &fakeMutator{}
	w := newTestWriter(t, nil, m)

	_, err := w.Create(context.Background(), "article", 1, payload(
		"title", value.Text("Hello"),
		"tags", value.List(value.Int(10), value.Int(11)),
	), 0)
	require.NoError(t, err)

	require.Len(t, m.byKind("deleteWhere"), 1)

	inserts := m.byKind("insert")
	require.Len(t, inserts, 3)
	assert.Equal(t, "article_tag", inserts[1].table)
	assert.Equal(t, int64(10), inserts[1].values["tag_id"])
	assert.Equal(t, int64(1), inserts[1].values["article_id"])
	assert.Equal(t, int64(256), inserts[1].values["sorting"])
	assert.Equal(t, int64(11), inserts[2].values["tag_id"])
	assert.Equal(t, int64(512), inserts[2].values["sorting"])
}

func TestCreatePartialFailure(t *testing.T) {
	m := &fakeMutator{}
	w := newTestWriter(t, nil, m)

	// the second insert (the child) fails
	childErr := errors.New("child insert failed")
	first := true
	w.m = &hookedMutator{inner: m, onInsert: func(table string) error {
		if first {
			first = false
			return nil
		}
		return childErr
	}}

	child := value.NewObject()
	child.Set("body", value.Text("First"))

	_, err := w.Create(context.Background(), "article", 1, payload(
		"title", value.Text("Hello"),
		"blocks", value.List(value.FromObject(child)),
	), 0)

	var partial *record.PartialFailureError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, "article", partial.Table)
	assert.Equal(t, int64(1), partial.ParentID, "caller can still find the created parent")
	assert.ErrorIs(t, err, childErr)
}

// hookedMutator lets a test fail selected calls while delegating the rest
type hookedMutator struct {
	inner    *fakeMutator
	onInsert func(table string) error
}

func (h *hookedMutator) Insert(ctx context.Context, table string, values storage.Row, opts ...storage.MutateOption) (int64, error) {
	if err := h.onInsert(table); err != nil {
		return 0, err
	}
	return h.inner.Insert(ctx, table, values, opts...)
}

func (h *hookedMutator) Update(ctx context.Context, table string, id int64, values storage.Row, opts ...storage.MutateOption) error {
	return h.inner.Update(ctx, table, id, values, opts...)
}

func (h *hookedMutator) SoftDelete(ctx context.Context, table string, id int64, opts ...storage.MutateOption) error {
	return h.inner.SoftDelete(ctx, table, id, opts...)
}

func (h *hookedMutator) DeleteWhere(ctx context.Context, table string, where *storage.Restriction, opts ...storage.MutateOption) error {
	return h.inner.DeleteWhere(ctx, table, where, opts...)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("scalar update stamps updated_at only", func(t *testing.T) {
		m := &fakeMutator{}
		w := newTestWriter(t, nil, m)

		res, err := w.Update(ctx, "article", 7, payload("title", value.Text("New")), 0)
		require.NoError(t, err)
		assert.Equal(t, record.ActionUpdate, res.Action)
		assert.Equal(t, int64(7), res.ID)

		updates := m.byKind("update")
		require.Len(t, updates, 1)
		assert.Equal(t, int64(7), updates[0].id)
		assert.Equal(t, "New", updates[0].values["title"])
		assert.Equal(t, int64(1700000000), updates[0].values["updated_at"])
		assert.NotContains(t, updates[0].values, "created_at")
	})

	t.Run("live id resolves to the overlay row", func(t *testing.T) {
		q := &stubQuerier{rows: map[string][]storage.Row{
			"page": {{"id": int64(30)}},
		}}
		m := &fakeMutator{}
		w := newTestWriter(t, q, m)

		res, err := w.Update(ctx, "page", 10, payload("title", value.Text("Drafted")), 7)
		require.NoError(t, err)

		updates := m.byKind("update")
		require.Len(t, updates, 1)
		assert.Equal(t, int64(30), updates[0].id, "mutation lands on the draft row")
		assert.Equal(t, int64(10), res.ID, "result reports the live id")
	})

	t.Run("vanished rows yield not found", func(t *testing.T) {
		m := &fakeMutator{updateErr: storage.ErrNoRows}
		w := newTestWriter(t, nil, m)

		_, err := w.Update(ctx, "article", 7, payload("title", value.Text("New")), 0)
		assert.ErrorIs(t, err, record.ErrNotFound)
	})

	t.Run("container cannot move on update", func(t *testing.T) {
		w := newTestWriter(t, nil, &fakeMutator{})

		_, err := w.Update(ctx, "article", 7, payload("pid", value.Int(9)), 0)
		assert.ErrorIs(t, err, record.ErrValidationFailed)
	})
}

func TestUpdateEmbeddedReconcile(t *testing.T) {
	// current children: 100 (kept and updated), 101 (absent from the payload)
	q := &stubQuerier{rows: map[string][]storage.Row{
		"block": {
			{"id": int64(100), "article_id": int64(7), "body": "Old"},
			{"id": int64(101), "article_id": int64(7), "body": "Stale"},
		},
	}}
	m := &fakeMutator{nextID: 200}
	w := newTestWriter(t, q, m)

	kept := value.NewObject()
	kept.Set("id", value.Int(100))
	kept.Set("body", value.Text("Updated"))
	added := value.NewObject()
	added.Set("body", value.Text("Added"))

	_, err := w.Update(context.Background(), "article", 7, payload(
		"blocks", value.List(value.FromObject(kept), value.FromObject(added)),
	), 0)
	require.NoError(t, err)

	t.Run("payload items with an id update in place", func(t *testing.T) {
		updates := m.byKind("update")
		require.Len(t, updates, 2)
		assert.Equal(t, "article", updates[0].table)
		assert.Equal(t, "block", updates[1].table)
		assert.Equal(t, int64(100), updates[1].id)
		assert.Equal(t, "Updated", updates[1].values["body"])
		assert.NotContains(t, updates[1].values, "id")
	})

	t.Run("items without an id insert under the parent", func(t *testing.T) {
		inserts := m.byKind("insert")
		require.Len(t, inserts, 1)
		assert.Equal(t, "block", inserts[0].table)
		assert.Equal(t, int64(7), inserts[0].values["article_id"])
		assert.Equal(t, "Added", inserts[0].values["body"])
		assert.Equal(t, int64(512), inserts[0].values["sorting"])
	})

	t.Run("absent children are deleted", func(t *testing.T) {
		deletes := m.byKind("delete")
		require.Len(t, deletes, 1)
		assert.Equal(t, "block", deletes[0].table)
		assert.Equal(t, int64(101), deletes[0].id)
	})
}

func TestUpdateIndependentReconcile(t *testing.T) {
	m := &fakeMutator{}
	w := newTestWriter(t, nil, m)

	_, err := w.Update(context.Background(), "article", 7, payload(
		"attachments", value.List(value.Int(55), value.Int(56)),
	), 0)
	require.NoError(t, err)

	updates := m.byKind("update")
	require.Len(t, updates, 3)
	assert.Equal(t, "article", updates[0].table, "timestamp stamp touches the parent")
	assert.Equal(t, "file", updates[1].table)
	assert.Equal(t, int64(55), updates[1].id)
	assert.Equal(t, int64(7), updates[1].values["article_id"])
	assert.Equal(t, int64(56), updates[2].id)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("soft delete by live id", func(t *testing.T) {
		m := &fakeMutator{}
		w := newTestWriter(t, nil, m)

		res, err := w.Delete(ctx, "article", 7, 0)
		require.NoError(t, err)
		assert.Equal(t, record.ActionDelete, res.Action)
		assert.Equal(t, int64(7), res.ID)

		deletes := m.byKind("delete")
		require.Len(t, deletes, 1)
		assert.Equal(t, int64(7), deletes[0].id)
	})

	t.Run("resolves the overlay row first", func(t *testing.T) {
		q := &stubQuerier{rows: map[string][]storage.Row{
			"page": {{"id": int64(30)}},
		}}
		m := &fakeMutator{}
		w := newTestWriter(t, q, m)

		res, err := w.Delete(ctx, "page", 10, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(30), m.byKind("delete")[0].id)
		assert.Equal(t, int64(10), res.ID)
	})

	t.Run("missing rows yield not found", func(t *testing.T) {
		m := &fakeMutator{deleteErr: storage.ErrNoRows}
		w := newTestWriter(t, nil, m)

		_, err := w.Delete(ctx, "article", 99, 0)
		assert.ErrorIs(t, err, record.ErrNotFound)
	})

	t.Run("read-only tables refuse deletion", func(t *testing.T) {
		w := newTestWriter(t, nil, &fakeMutator{})
		_, err := w.Delete(ctx, "snapshot", 1, 0)
		assert.ErrorIs(t, err, record.ErrReadOnly)
	})
}
