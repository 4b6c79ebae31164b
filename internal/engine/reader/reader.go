// Package reader orchestrates the read path: filter construction, versioning
// overlay visibility, type-driven projection, value decoding and relation
// resolution, returning a fully hydrated page plus total count.
package reader

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/draftline/draftline/internal/engine/record"
	"github.com/draftline/draftline/internal/engine/relation"
	"github.com/draftline/draftline/internal/engine/schema"
	"github.com/draftline/draftline/internal/engine/value"
	"github.com/draftline/draftline/internal/engine/workspace"
	"github.com/draftline/draftline/internal/storage"
)

// Options narrows one read call
type Options struct {
	// ParentID filters by the parent-container column
	ParentID *int64

	// ID addresses one record by its live id. Under an active workspace the
	// match expands to the origin back-reference, so a drafted record stays
	// addressable by its live id.
	ID *int64

	// RawPredicate is an optional caller-supplied filter fragment, screened
	// against mutating keywords before the query runs.
	RawPredicate string

	// Fields is an optional allow-list intersected with the type-resolved
	// field set; the primary key is always included.
	Fields []string

	Limit       int
	Offset      int
	WorkspaceID int64
}

// Reader reads fully resolved record pages
type Reader struct {
	reg      *schema.Registry
	q        storage.Querier
	codec    *value.Codec
	resolver *relation.Resolver
	log      *zap.Logger
}

// NewReader creates a reader
func NewReader(reg *schema.Registry, q storage.Querier, codec *value.Codec, resolver *relation.Resolver, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{reg: reg, q: q, codec: codec, resolver: resolver, log: log}
}

// Read returns one page of records plus the total count for the shared
// filter. The result is always fully hydrated: every relation field on every
// returned record is resolved, or the whole call fails.
func (r *Reader) Read(ctx context.Context, table string, opts Options) (*record.Page, error) {
	if !r.reg.IsTableAccessible(table) {
		return nil, fmt.Errorf("%w: table %s", record.ErrAccessDenied, table)
	}
	t, _ := r.reg.Table(table)

	if err := ScreenPredicate(opts.RawPredicate); err != nil {
		return nil, err
	}

	where := r.buildFilter(t, opts)

	query := storage.Query{
		Table:    table,
		Where:    where,
		RawWhere: opts.RawPredicate,
		OrderBy:  resolveOrder(t),
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	}

	rows, err := r.q.Select(ctx, query)
	if err != nil {
		return nil, err
	}
	total, err := r.q.Count(ctx, storage.Query{Table: table, Where: where, RawWhere: opts.RawPredicate})
	if err != nil {
		return nil, err
	}

	rows = workspace.Collapse(t, rows, opts.WorkspaceID)

	records := make([]*record.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, r.project(t, row, opts.Fields))
	}

	if err := r.resolver.Resolve(ctx, table, records, opts.WorkspaceID); err != nil {
		return nil, err
	}

	if opts.ID != nil && len(records) == 0 {
		return nil, fmt.Errorf("%w: %s/%d", record.ErrNotFound, table, *opts.ID)
	}

	r.log.Debug("read page",
		zap.String("table", table),
		zap.Int("records", len(records)),
		zap.Int("total", total),
		zap.Int64("workspace", opts.WorkspaceID))

	return &record.Page{
		Table:   table,
		Records: records,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+len(records) < total,
	}, nil
}

// buildFilter combines soft-delete exclusion, versioning visibility and the
// caller's parent/id equality filters into one restriction tree.
func (r *Reader) buildFilter(t *schema.TableSchema, opts Options) *storage.Restriction {
	where := storage.And()

	if t.Control.SoftDelete != "" {
		where.Eq(t.Control.SoftDelete, int64(0))
	}
	where.Group(workspace.Visibility(t, opts.WorkspaceID))

	if opts.ParentID != nil && t.Control.Container != "" {
		where.Eq(t.Control.Container, *opts.ParentID)
	}

	if opts.ID != nil {
		if opts.WorkspaceID > 0 && t.Versioned() {
			where.Group(storage.Or().
				Eq(t.Control.PrimaryKey, *opts.ID).
				Eq(t.Control.Origin, *opts.ID))
		} else {
			where.Eq(t.Control.PrimaryKey, *opts.ID)
		}
	}

	return where
}

// project resolves the field set for the row's type and runs the value codec
// over each field. A caller allow-list narrows the type-resolved set; it
// never widens it, and the primary key survives it.
func (r *Reader) project(t *schema.TableSchema, row storage.Row, allowList []string) *record.Record {
	discriminator := ""
	if t.Control.Discriminator != "" {
		if raw, ok := row[t.Control.Discriminator]; ok && raw != nil {
			discriminator = fmt.Sprintf("%v", raw)
		}
	}

	fields := r.reg.FieldsForType(t.Name, discriminator)
	if len(allowList) > 0 {
		fields = intersect(fields, allowList, t.Control.PrimaryKey)
	}

	rec := record.New(t.Name)
	for _, name := range fields {
		if !r.reg.IsFieldAccessible(t.Name, name) {
			continue
		}
		raw, ok := row[name]
		if !ok {
			continue
		}
		if name == t.Control.PrimaryKey {
			rec.Set(name, value.Int(workspace.LiveID(t, row)))
			continue
		}
		rec.Set(name, r.codec.Encode(t.Name, name, raw))
	}
	return rec
}

func intersect(fields, allowList []string, primaryKey string) []string {
	allowed := make(map[string]bool, len(allowList)+1)
	allowed[primaryKey] = true
	for _, name := range allowList {
		allowed[name] = true
	}

	out := make([]string, 0, len(fields))
	for _, name := range fields {
		if allowed[name] {
			out = append(out, name)
		}
	}
	return out
}
