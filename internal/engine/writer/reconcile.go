package writer

import (
	"context"
	"fmt"
	"sort"

	"github.com/draftline/draftline/internal/engine/schema"
	"github.com/draftline/draftline/internal/engine/value"
	"github.com/draftline/draftline/internal/engine/workspace"
	"github.com/draftline/draftline/internal/storage"
)

// childSortSpacing is the gap between generated sort values for embedded
// children, leaving room for later manual reordering without renumbering.
const childSortSpacing = 256

// reconcileRelations applies the relation half of a payload once the parent
// row exists. parentID is always the live id; children point at live
// identifiers, never overlay ids.
func (w *Writer) reconcileRelations(ctx context.Context, t *schema.TableSchema, parentID int64, relations map[string]value.Value, workspaceID int64) error {
	names := make([]string, 0, len(relations))
	for name := range relations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := relations[name]
		field, _ := t.Field(name)

		var err error
		switch field.Relation.Shape {
		case schema.RelationManyToMany:
			err = w.reconcileJunction(ctx, field.Relation, parentID, v)
		case schema.RelationInlineIndependent:
			err = w.reconcileIndependent(ctx, field.Relation, parentID, v, workspaceID)
		case schema.RelationInlineEmbedded:
			err = w.reconcileEmbedded(ctx, field.Relation, parentID, v, workspaceID)
		}
		if err != nil {
			return fmt.Errorf("relation %s: %w", name, err)
		}
	}
	return nil
}

// reconcileJunction replaces the junction rows for the local record with the
// payload's ordered id list
func (w *Writer) reconcileJunction(ctx context.Context, rel *schema.RelationSchema, parentID int64, v value.Value) error {
	localColumn := rel.LocalField
	foreignColumn := rel.ForeignJunctionField
	if rel.Reversed {
		localColumn, foreignColumn = foreignColumn, localColumn
	}

	clear := storage.And().Eq(localColumn, parentID)
	for matchField, matchValue := range rel.Match {
		clear.Eq(matchField, matchValue)
	}
	if err := w.m.DeleteWhere(ctx, rel.JunctionTable, clear); err != nil {
		return err
	}

	items, _ := v.AsList()
	for i, item := range items {
		id, _ := item.AsInt()
		row := storage.Row{localColumn: parentID, foreignColumn: id}
		for matchField, matchValue := range rel.Match {
			row[matchField] = matchValue
		}
		if rel.SortField != "" {
			row[rel.SortField] = int64(i+1) * childSortSpacing
		}
		if _, err := w.m.Insert(ctx, rel.JunctionTable, row); err != nil {
			return err
		}
	}
	return nil
}

// reconcileIndependent repoints each referenced child's foreign column at
// the parent's live id. Children removed from the list are left alone; they
// keep their current parent.
func (w *Writer) reconcileIndependent(ctx context.Context, rel *schema.RelationSchema, parentID int64, v value.Value, workspaceID int64) error {
	items, _ := v.AsList()
	for _, item := range items {
		childID, _ := item.AsInt()
		targetID, err := w.overlay.ResolveOverlayID(ctx, rel.TargetTable, childID, workspaceID)
		if err != nil {
			return err
		}
		values := storage.Row{rel.ForeignField: parentID}
		if err := w.m.Update(ctx, rel.TargetTable, targetID, values, storage.WithBypassWorkspaceGuard()); err != nil {
			return err
		}
	}
	return nil
}

// reconcileEmbedded brings the owned child set in line with the payload:
// items carrying an id update that child, items without an id insert a new
// child, and previously attached children absent from the payload are
// deleted. Children of other parents are untouched.
func (w *Writer) reconcileEmbedded(ctx context.Context, rel *schema.RelationSchema, parentID int64, v value.Value, workspaceID int64) error {
	target, ok := w.reg.Table(rel.TargetTable)
	if !ok {
		return fmt.Errorf("unknown target table: %s", rel.TargetTable)
	}
	pk := target.Control.PrimaryKey

	existing, err := w.currentChildIDs(ctx, target, rel, parentID, workspaceID)
	if err != nil {
		return err
	}

	items, _ := v.AsList()
	kept := make(map[int64]bool, len(items))

	for i, item := range items {
		obj, _ := item.AsObject()
		childPayload := obj.Clone()

		var childID int64
		if idValue, ok := childPayload.Get(pk); ok {
			childID, _ = idValue.AsInt()
			childPayload.Delete(pk)
		}

		values := make(storage.Row, childPayload.Len())
		for _, name := range childPayload.Keys() {
			cv, _ := childPayload.Get(name)
			values[name] = w.codec.Decode(rel.TargetTable, name, cv)
		}

		if childID > 0 {
			kept[childID] = true
			targetID, err := w.overlay.ResolveOverlayID(ctx, rel.TargetTable, childID, workspaceID)
			if err != nil {
				return err
			}
			if err := w.m.Update(ctx, rel.TargetTable, targetID, values, storage.WithBypassWorkspaceGuard()); err != nil {
				return err
			}
			continue
		}

		values[rel.ForeignField] = parentID
		if rel.ChildSortField != "" {
			values[rel.ChildSortField] = int64(i+1) * childSortSpacing
		}
		w.stampTimestamps(target, values, true)
		if workspaceID > 0 && target.Versioned() {
			values[target.Control.Workspace] = workspaceID
			values[target.Control.DraftState] = workspace.DraftStateNew
		}
		if _, err := w.m.Insert(ctx, rel.TargetTable, values, storage.WithBypassWorkspaceGuard()); err != nil {
			return err
		}
	}

	for _, childID := range existing {
		if kept[childID] {
			continue
		}
		targetID, err := w.overlay.ResolveOverlayID(ctx, rel.TargetTable, childID, workspaceID)
		if err != nil {
			return err
		}
		if err := w.m.SoftDelete(ctx, rel.TargetTable, targetID, storage.WithBypassWorkspaceGuard()); err != nil {
			return err
		}
	}
	return nil
}

// currentChildIDs fetches the live ids of the children currently attached to
// the parent
func (w *Writer) currentChildIDs(ctx context.Context, target *schema.TableSchema, rel *schema.RelationSchema, parentID int64, workspaceID int64) ([]int64, error) {
	where := storage.And().Eq(rel.ForeignField, parentID)
	if target.Control.SoftDelete != "" {
		where.Eq(target.Control.SoftDelete, int64(0))
	}
	where.Group(workspace.Visibility(target, workspaceID))

	rows, err := w.q.Select(ctx, storage.Query{Table: rel.TargetTable, Where: where})
	if err != nil {
		return nil, err
	}
	rows = workspace.Collapse(target, rows, workspaceID)

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, workspace.LiveID(target, row))
	}
	return ids, nil
}
