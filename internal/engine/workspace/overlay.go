// Package workspace implements the two-tier live/draft versioning overlay.
// Edits inside a draft workspace are represented as separate physical rows;
// this package translates between stable live identifiers and the overlay
// rows currently representing them, and keeps the distinction invisible to
// callers.
package workspace

import (
	"context"
	"fmt"

	"github.com/draftline/draftline/internal/engine/schema"
	"github.com/draftline/draftline/internal/storage"
)

// Draft-state column values
const (
	DraftStateNormal            int64 = 0
	DraftStateNew               int64 = 1
	DraftStateDeletePlaceholder int64 = 2
)

// State classifies a row with respect to the active draft workspace
type State int

const (
	// StateUnmodified is a plain live row with no overlay
	StateUnmodified State = iota
	// StateDraftOfLive is an overlay row carrying a back-reference to its live row
	StateDraftOfLive
	// StateNewInDraft is a row created inside a draft; its storage id is its
	// live id until the draft is published
	StateNewInDraft
	// StateDeletePlaceholder marks a pending deletion; never visible to readers
	StateDeletePlaceholder
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateUnmodified:
		return "unmodified"
	case StateDraftOfLive:
		return "draft_of_live"
	case StateNewInDraft:
		return "new_in_draft"
	case StateDeletePlaceholder:
		return "delete_placeholder"
	default:
		return "unknown"
	}
}

// Classify derives a row's state from its origin back-reference and
// draft-state flag
func Classify(origin, draftState int64) State {
	switch draftState {
	case DraftStateNew:
		return StateNewInDraft
	case DraftStateDeletePlaceholder:
		return StateDeletePlaceholder
	}
	if origin > 0 {
		return StateDraftOfLive
	}
	return StateUnmodified
}

// LiveID returns the stable caller-facing identifier for a storage row: the
// origin back-reference when present, else the row's own id. Idempotent by
// construction.
func LiveID(t *schema.TableSchema, row storage.Row) int64 {
	if t.Versioned() {
		if origin := row.Int64(t.Control.Origin); origin > 0 {
			return origin
		}
	}
	return row.Int64(t.Control.PrimaryKey)
}

// Visibility builds the read-path row filter for a table under the given
// active workspace. With no workspace active only live rows match. With a
// workspace active the filter must admit rows that are unversioned,
// versioned for this workspace, or new-in-draft, while excluding delete
// placeholders; collapsing draft rows onto their live originals happens
// afterwards in Collapse.
func Visibility(t *schema.TableSchema, workspaceID int64) *storage.Restriction {
	if !t.Versioned() {
		return nil
	}
	c := t.Control
	if workspaceID == 0 {
		return storage.And().Eq(c.Workspace, int64(0))
	}
	return storage.And().
		NotEq(c.DraftState, DraftStateDeletePlaceholder).
		Group(storage.Or().
			Eq(c.Workspace, int64(0)).
			Eq(c.Workspace, workspaceID))
}

// Collapse substitutes draft rows for the live rows they shadow. The result
// reports live identifiers only: a draft row's values replace its original's,
// keyed under the live id, and the physical draft row disappears from the
// output. Rows new in the draft keep their own id.
func Collapse(t *schema.TableSchema, rows []storage.Row, workspaceID int64) []storage.Row {
	if workspaceID == 0 || !t.Versioned() {
		return rows
	}
	c := t.Control

	drafts := make(map[int64]storage.Row)
	for _, row := range rows {
		if row.Int64(c.Workspace) != workspaceID {
			continue
		}
		if origin := row.Int64(c.Origin); origin > 0 {
			drafts[origin] = row
		}
	}

	out := make([]storage.Row, 0, len(rows))
	for _, row := range rows {
		ws := row.Int64(c.Workspace)
		if ws == workspaceID && row.Int64(c.Origin) > 0 {
			// Substitution row; surfaced in place of its original below.
			// A draft whose original fell outside this page still has to
			// appear, keyed under the live id.
			if !containsLive(rows, c, row.Int64(c.Origin)) {
				out = append(out, substitute(c, row, row.Int64(c.Origin)))
			}
			continue
		}
		liveID := row.Int64(c.PrimaryKey)
		if draft, ok := drafts[liveID]; ok {
			out = append(out, substitute(c, draft, liveID))
			continue
		}
		out = append(out, row)
	}
	return out
}

func containsLive(rows []storage.Row, c schema.ControlFields, id int64) bool {
	for _, row := range rows {
		if row.Int64(c.Workspace) == 0 && row.Int64(c.PrimaryKey) == id {
			return true
		}
	}
	return false
}

// substitute copies a draft row and rewrites its identity to the live id
func substitute(c schema.ControlFields, draft storage.Row, liveID int64) storage.Row {
	out := make(storage.Row, len(draft))
	for k, v := range draft {
		out[k] = v
	}
	out[c.PrimaryKey] = liveID
	return out
}

// Overlay resolves live identifiers to the overlay rows currently
// representing them inside a draft workspace.
type Overlay struct {
	reg *schema.Registry
	q   storage.Querier
}

// NewOverlay creates an overlay resolver
func NewOverlay(reg *schema.Registry, q storage.Querier) *Overlay {
	return &Overlay{reg: reg, q: q}
}

// ResolveOverlayID translates a live id into the storage id of its draft row
// in the given workspace. With no active workspace, or when no draft row
// exists yet, the live id is returned unchanged.
func (o *Overlay) ResolveOverlayID(ctx context.Context, table string, liveID, workspaceID int64) (int64, error) {
	if workspaceID == 0 {
		return liveID, nil
	}
	t, ok := o.reg.Table(table)
	if !ok || !t.Versioned() {
		return liveID, nil
	}
	c := t.Control

	rows, err := o.q.Select(ctx, storage.Query{
		Table:   table,
		Columns: []string{c.PrimaryKey},
		Where: storage.And().
			Eq(c.Origin, liveID).
			Eq(c.Workspace, workspaceID).
			NotEq(c.DraftState, DraftStateDeletePlaceholder),
		Limit: 1,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to resolve overlay for %s/%d: %w", table, liveID, err)
	}
	if len(rows) == 0 {
		return liveID, nil
	}
	return rows[0].Int64(c.PrimaryKey), nil
}
