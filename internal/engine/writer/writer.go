// Package writer orchestrates the write path: payload validation, the
// scalar/relation split, live-to-overlay id resolution, the scalar mutation
// and child-relation reconciliation. Results always report live identifiers,
// even where the underlying mutation touched an overlay row.
package writer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/draftline/draftline/internal/engine/record"
	"github.com/draftline/draftline/internal/engine/schema"
	"github.com/draftline/draftline/internal/engine/value"
	"github.com/draftline/draftline/internal/engine/workspace"
	"github.com/draftline/draftline/internal/storage"
)

// Writer applies validated mutations through the mutation engine
type Writer struct {
	reg     *schema.Registry
	q       storage.Querier
	m       storage.Mutator
	codec   *value.Codec
	overlay *workspace.Overlay
	log     *zap.Logger

	now func() time.Time
}

// NewWriter creates a writer
func NewWriter(reg *schema.Registry, q storage.Querier, m storage.Mutator, codec *value.Codec, overlay *workspace.Overlay, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{reg: reg, q: q, m: m, codec: codec, overlay: overlay, log: log, now: time.Now}
}

// Create inserts a new record under the given parent and reconciles its
// relation fields. The returned id is the live id: inside a draft workspace
// the new row is marked new-in-draft and its storage id serves as the live
// id until publication.
func (w *Writer) Create(ctx context.Context, table string, parentID int64, payload *value.Object, workspaceID int64) (*record.WriteResult, error) {
	t, err := w.writable(table)
	if err != nil {
		return nil, err
	}
	if err := validatePayload(t, payload, opCreate); err != nil {
		return nil, err
	}

	scalars, relations := w.split(t, payload)

	if t.Control.Container != "" && scalars[t.Control.Container] == nil {
		scalars[t.Control.Container] = parentID
	}
	w.stampTimestamps(t, scalars, true)
	if workspaceID > 0 && t.Versioned() {
		scalars[t.Control.Workspace] = workspaceID
		scalars[t.Control.DraftState] = workspace.DraftStateNew
	}

	newID, err := w.m.Insert(ctx, table, scalars, storage.WithBypassWorkspaceGuard())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", record.ErrMutationFailed, err)
	}

	if err := w.reconcileRelations(ctx, t, newID, relations, workspaceID); err != nil {
		// The parent row exists; the caller must be able to find it.
		return nil, &record.PartialFailureError{Table: table, ParentID: newID, Err: err}
	}

	w.log.Info("record created",
		zap.String("table", table),
		zap.Int64("id", newID),
		zap.Int64("workspace", workspaceID))

	return &record.WriteResult{Action: record.ActionCreate, Table: table, ID: newID}, nil
}

// Update applies a payload to the record addressed by its live id. The live
// id resolves to the current overlay row before the scalar mutation; child
// relations reconcile against the live id, because children always point at
// live identifiers.
func (w *Writer) Update(ctx context.Context, table string, liveID int64, payload *value.Object, workspaceID int64) (*record.WriteResult, error) {
	t, err := w.writable(table)
	if err != nil {
		return nil, err
	}
	if err := validatePayload(t, payload, opUpdate); err != nil {
		return nil, err
	}

	scalars, relations := w.split(t, payload)
	w.stampTimestamps(t, scalars, false)

	targetID, err := w.overlay.ResolveOverlayID(ctx, table, liveID, workspaceID)
	if err != nil {
		return nil, err
	}

	if len(scalars) > 0 {
		if err := w.m.Update(ctx, table, targetID, scalars, storage.WithBypassWorkspaceGuard()); err != nil {
			if errors.Is(err, storage.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s/%d", record.ErrNotFound, table, liveID)
			}
			return nil, fmt.Errorf("%w: %v", record.ErrMutationFailed, err)
		}
	}

	if err := w.reconcileRelations(ctx, t, liveID, relations, workspaceID); err != nil {
		return nil, &record.PartialFailureError{Table: table, ParentID: liveID, Err: err}
	}

	w.log.Info("record updated",
		zap.String("table", table),
		zap.Int64("id", liveID),
		zap.Int64("workspace", workspaceID))

	return &record.WriteResult{Action: record.ActionUpdate, Table: table, ID: liveID}, nil
}

// Delete removes the record addressed by its live id, resolving to the
// overlay row first
func (w *Writer) Delete(ctx context.Context, table string, liveID int64, workspaceID int64) (*record.WriteResult, error) {
	if _, err := w.writable(table); err != nil {
		return nil, err
	}

	targetID, err := w.overlay.ResolveOverlayID(ctx, table, liveID, workspaceID)
	if err != nil {
		return nil, err
	}

	if err := w.m.SoftDelete(ctx, table, targetID, storage.WithBypassWorkspaceGuard()); err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%d", record.ErrNotFound, table, liveID)
		}
		return nil, fmt.Errorf("%w: %v", record.ErrMutationFailed, err)
	}

	w.log.Info("record deleted",
		zap.String("table", table),
		zap.Int64("id", liveID),
		zap.Int64("workspace", workspaceID))

	return &record.WriteResult{Action: record.ActionDelete, Table: table, ID: liveID}, nil
}

// writable checks access and read-only status before any other validation
func (w *Writer) writable(table string) (*schema.TableSchema, error) {
	if !w.reg.IsTableAccessible(table) {
		return nil, fmt.Errorf("%w: table %s", record.ErrAccessDenied, table)
	}
	t, _ := w.reg.Table(table)
	if t.ReadOnly {
		return nil, fmt.Errorf("%w: %s", record.ErrReadOnly, table)
	}
	return t, nil
}

// split separates the payload into directly writable scalar columns and the
// relation fields reconciled after the parent row exists. Direct relations
// store their id list in the local column, so they count as scalars.
func (w *Writer) split(t *schema.TableSchema, payload *value.Object) (storage.Row, map[string]value.Value) {
	scalars := make(storage.Row)
	relations := make(map[string]value.Value)

	for _, name := range payload.Keys() {
		v, _ := payload.Get(name)

		field, ok := t.Field(name)
		if ok && field.IsRelation() && field.Relation.Shape != schema.RelationDirect {
			relations[name] = v
			continue
		}
		if ok && field.IsRelation() {
			// Direct relation: serialize the id list into the local column
			scalars[name] = joinIDs(v)
			continue
		}
		scalars[name] = w.codec.Decode(t.Name, name, v)
	}
	return scalars, relations
}

func (w *Writer) stampTimestamps(t *schema.TableSchema, scalars storage.Row, create bool) {
	now := w.now().Unix()
	if create && t.Control.CreatedAt != "" {
		scalars[t.Control.CreatedAt] = now
	}
	if t.Control.UpdatedAt != "" {
		scalars[t.Control.UpdatedAt] = now
	}
}

func joinIDs(v value.Value) string {
	items, ok := v.AsList()
	if !ok {
		return v.String()
	}
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ","
		}
		out += item.String()
	}
	return out
}
