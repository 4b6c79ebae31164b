// Package relation expands relation-valued fields on a page of projected
// records: static option lists, direct id references, many-to-many junctions
// and inline parent/child relations. Every relation field is resolved with
// one batched fetch across the whole page, never once per record.
package relation

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/draftline/draftline/internal/engine/record"
	"github.com/draftline/draftline/internal/engine/schema"
	"github.com/draftline/draftline/internal/engine/value"
	"github.com/draftline/draftline/internal/engine/workspace"
	"github.com/draftline/draftline/internal/storage"
)

// Resolver attaches resolved relation values to records
type Resolver struct {
	reg        *schema.Registry
	q          storage.Querier
	codec      *value.Codec
	translator schema.Translator

	// filterJunctionTargets additionally drops junction entries whose
	// target row is soft-deleted. Off by default to match the historical
	// behavior of resolving junction rows by existence only.
	filterJunctionTargets bool
}

// Option configures a Resolver
type Option func(*Resolver)

// WithJunctionTargetFilter enables target-side soft-delete filtering for
// many-to-many relations
func WithJunctionTargetFilter() Option {
	return func(r *Resolver) { r.filterJunctionTargets = true }
}

// NewResolver creates a resolver
func NewResolver(reg *schema.Registry, q storage.Querier, codec *value.Codec, translator schema.Translator, opts ...Option) *Resolver {
	r := &Resolver{reg: reg, q: q, codec: codec, translator: translator}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve expands every relation-kind and option-bearing field present on
// the given records. Records must all belong to the same table and carry
// live identifiers. Resolution order across fields is immaterial; a failure
// fetching any one relation field fails the whole call, because a partially
// hydrated record would be misleading.
func (r *Resolver) Resolve(ctx context.Context, table string, records []*record.Record, workspaceID int64) error {
	if len(records) == 0 {
		return nil
	}
	t, ok := r.reg.Table(table)
	if !ok {
		return fmt.Errorf("unknown table: %s", table)
	}

	for _, name := range sortedFieldNames(t) {
		field := t.Fields[name]

		holders := withField(records, name)
		if len(holders) == 0 {
			continue
		}

		var err error
		switch {
		case field.IsRelation():
			err = r.resolveRelation(ctx, t, field, holders, workspaceID)
		case len(field.Options) > 0 && (field.Kind == schema.FieldSelect || field.Kind == schema.FieldMultiSelect):
			r.resolveStaticOptions(field, holders)
		}
		if err != nil {
			return fmt.Errorf("failed to resolve relation field %s.%s: %w", table, name, err)
		}
	}
	return nil
}

func (r *Resolver) resolveRelation(ctx context.Context, t *schema.TableSchema, field *schema.FieldSchema, records []*record.Record, workspaceID int64) error {
	switch field.Relation.Shape {
	case schema.RelationDirect:
		resolveDirect(field, records)
		return nil
	case schema.RelationManyToMany:
		return r.resolveManyToMany(ctx, t, field, records)
	case schema.RelationInlineIndependent:
		return r.resolveInline(ctx, t, field, records, workspaceID, false)
	case schema.RelationInlineEmbedded:
		return r.resolveInline(ctx, t, field, records, workspaceID, true)
	}
	return fmt.Errorf("unsupported relation shape %s", field.Relation.Shape)
}

// resolveStaticOptions replaces the raw stored selection with the matching
// {value, label} entries. Divider markers never match.
func (r *Resolver) resolveStaticOptions(field *schema.FieldSchema, records []*record.Record) {
	for _, rec := range records {
		raw, _ := rec.Get(field.Name)
		selected := selectedValues(raw)

		matches := make([]value.Value, 0, len(selected))
		for _, sel := range selected {
			for _, opt := range field.Options {
				if opt.IsDivider() || opt.Value != sel {
					continue
				}
				entry := value.NewObject()
				entry.Set("value", value.Text(opt.Value))
				entry.Set("label", value.Text(r.translator.Translate(opt.Label)))
				matches = append(matches, value.FromObject(entry))
				break
			}
		}
		rec.Set(field.Name, value.List(matches...))
	}
}

// resolveDirect parses the locally stored id list. Single-valued relations
// keep only the first id; extra ids are dropped, not an error.
func resolveDirect(field *schema.FieldSchema, records []*record.Record) {
	for _, rec := range records {
		raw, _ := rec.Get(field.Name)
		ids := parseIDList(raw)
		if !field.Relation.Multiple && len(ids) > 1 {
			ids = ids[:1]
		}
		rec.Set(field.Name, idListValue(ids))
	}
}

func (r *Resolver) resolveManyToMany(ctx context.Context, t *schema.TableSchema, field *schema.FieldSchema, records []*record.Record) error {
	rel := field.Relation

	localColumn := rel.LocalField
	foreignColumn := rel.ForeignJunctionField
	if rel.Reversed {
		localColumn, foreignColumn = foreignColumn, localColumn
	}

	localIDs := recordIDs(records, t.Control.PrimaryKey)
	if len(localIDs) == 0 {
		return nil
	}

	where := storage.And().In(localColumn, toInterfaces(localIDs))
	for matchField, matchValue := range rel.Match {
		where.Eq(matchField, matchValue)
	}

	sortField := rel.SortField
	var orderBy []storage.Order
	if sortField != "" {
		orderBy = []storage.Order{{Field: sortField}}
	}

	rows, err := r.q.Select(ctx, storage.Query{
		Table:   rel.JunctionTable,
		Columns: []string{localColumn, foreignColumn},
		Where:   where,
		OrderBy: orderBy,
	})
	if err != nil {
		return err
	}

	grouped := make(map[int64][]int64)
	for _, row := range rows {
		local := row.Int64(localColumn)
		grouped[local] = append(grouped[local], row.Int64(foreignColumn))
	}

	if r.filterJunctionTargets {
		if err := r.filterDeletedTargets(ctx, rel.TargetTable, grouped); err != nil {
			return err
		}
	}

	for _, rec := range records {
		rec.Set(field.Name, idListValue(grouped[rec.ID(t.Control.PrimaryKey)]))
	}
	return nil
}

// filterDeletedTargets drops junction entries pointing at soft-deleted
// target rows
func (r *Resolver) filterDeletedTargets(ctx context.Context, targetTable string, grouped map[int64][]int64) error {
	target, ok := r.reg.Table(targetTable)
	if !ok || target.Control.SoftDelete == "" {
		return nil
	}

	all := make(map[int64]bool)
	for _, ids := range grouped {
		for _, id := range ids {
			all[id] = true
		}
	}
	if len(all) == 0 {
		return nil
	}
	flat := make([]interface{}, 0, len(all))
	for id := range all {
		flat = append(flat, id)
	}

	rows, err := r.q.Select(ctx, storage.Query{
		Table:   targetTable,
		Columns: []string{target.Control.PrimaryKey},
		Where: storage.And().
			In(target.Control.PrimaryKey, flat).
			Eq(target.Control.SoftDelete, int64(0)),
	})
	if err != nil {
		return err
	}

	alive := make(map[int64]bool, len(rows))
	for _, row := range rows {
		alive[row.Int64(target.Control.PrimaryKey)] = true
	}

	for local, ids := range grouped {
		kept := ids[:0]
		for _, id := range ids {
			if alive[id] {
				kept = append(kept, id)
			}
		}
		grouped[local] = kept
	}
	return nil
}

// resolveInline batch-fetches child rows referencing the local records via
// the foreign column. Independent children attach as an ordered id list;
// embedded children attach fully projected, because they have no independent
// existence for the caller.
func (r *Resolver) resolveInline(ctx context.Context, t *schema.TableSchema, field *schema.FieldSchema, records []*record.Record, workspaceID int64, embedded bool) error {
	rel := field.Relation
	target, ok := r.reg.Table(rel.TargetTable)
	if !ok {
		return fmt.Errorf("unknown target table: %s", rel.TargetTable)
	}

	localIDs := recordIDs(records, t.Control.PrimaryKey)
	if len(localIDs) == 0 {
		return nil
	}

	where := storage.And().In(rel.ForeignField, toInterfaces(localIDs))
	if target.Control.SoftDelete != "" {
		where.Eq(target.Control.SoftDelete, int64(0))
	}
	where.Group(workspace.Visibility(target, workspaceID))

	rows, err := r.q.Select(ctx, storage.Query{
		Table:   rel.TargetTable,
		Where:   where,
		OrderBy: childOrder(rel, target),
	})
	if err != nil {
		return err
	}
	rows = workspace.Collapse(target, rows, workspaceID)

	groupedIDs := make(map[int64][]int64)
	groupedRows := make(map[int64][]storage.Row)
	for _, row := range rows {
		parent := row.Int64(rel.ForeignField)
		groupedIDs[parent] = append(groupedIDs[parent], workspace.LiveID(target, row))
		groupedRows[parent] = append(groupedRows[parent], row)
	}

	for _, rec := range records {
		localID := rec.ID(t.Control.PrimaryKey)
		if !embedded {
			rec.Set(field.Name, idListValue(groupedIDs[localID]))
			continue
		}
		children := groupedRows[localID]
		projected := make([]value.Value, 0, len(children))
		for _, child := range children {
			projected = append(projected, value.FromObject(r.projectChild(target, child)))
		}
		rec.Set(field.Name, value.List(projected...))
	}
	return nil
}

// projectChild runs type field resolution and the value codec over one
// embedded child row. Child relations are not expanded further.
func (r *Resolver) projectChild(target *schema.TableSchema, row storage.Row) *value.Object {
	discriminator := ""
	if target.Control.Discriminator != "" {
		if raw, ok := row[target.Control.Discriminator]; ok {
			discriminator = fmt.Sprintf("%v", raw)
		}
	}

	fields := r.reg.FieldsForType(target.Name, discriminator)
	obj := value.NewObject()
	for _, name := range fields {
		raw, ok := row[name]
		if !ok {
			continue
		}
		if name == target.Control.PrimaryKey {
			obj.Set(name, value.Int(workspace.LiveID(target, row)))
			continue
		}
		obj.Set(name, r.codec.Encode(target.Name, name, raw))
	}
	return obj
}

func childOrder(rel *schema.RelationSchema, target *schema.TableSchema) []storage.Order {
	switch {
	case rel.ChildSortField != "":
		return []storage.Order{{Field: rel.ChildSortField}}
	case target.Control.Sort != "":
		return []storage.Order{{Field: target.Control.Sort}}
	default:
		return []storage.Order{{Field: rel.ForeignField}, {Field: target.Control.PrimaryKey}}
	}
}

// Helpers

func sortedFieldNames(t *schema.TableSchema) []string {
	names := make([]string, 0, len(t.Fields))
	for name := range t.Fields {
		names = append(names, name)
	}
	// Deterministic resolution order; fields are independent so any fixed
	// order is valid.
	sort.Strings(names)
	return names
}

func withField(records []*record.Record, field string) []*record.Record {
	out := make([]*record.Record, 0, len(records))
	for _, rec := range records {
		if rec.Values.Has(field) {
			out = append(out, rec)
		}
	}
	return out
}

func recordIDs(records []*record.Record, primaryKey string) []int64 {
	seen := make(map[int64]bool)
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		id := rec.ID(primaryKey)
		if id > 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func toInterfaces(ids []int64) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// parseIDList parses a stored id selection: a delimited string, a single
// number, or an already-structured list. Empty, zero and "0" entries
// normalize to nothing.
func parseIDList(v value.Value) []int64 {
	switch v.Kind() {
	case value.KindInt:
		id, _ := v.AsInt()
		if id > 0 {
			return []int64{id}
		}
		return nil
	case value.KindText:
		s, _ := v.AsText()
		ids := make([]int64, 0)
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" || part == "0" {
				continue
			}
			if id, err := strconv.ParseInt(part, 10, 64); err == nil && id > 0 {
				ids = append(ids, id)
			}
		}
		return ids
	case value.KindList:
		items, _ := v.AsList()
		ids := make([]int64, 0, len(items))
		for _, item := range items {
			for _, id := range parseIDList(item) {
				ids = append(ids, id)
			}
		}
		return ids
	}
	return nil
}

// selectedValues renders a stored selection as its comma-separated parts
func selectedValues(v value.Value) []string {
	switch v.Kind() {
	case value.KindInt:
		id, _ := v.AsInt()
		return []string{strconv.FormatInt(id, 10)}
	case value.KindText:
		s, _ := v.AsText()
		parts := make([]string, 0)
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				parts = append(parts, part)
			}
		}
		return parts
	case value.KindList:
		items, _ := v.AsList()
		parts := make([]string, 0, len(items))
		for _, item := range items {
			parts = append(parts, item.String())
		}
		return parts
	}
	return nil
}

func idListValue(ids []int64) value.Value {
	items := make([]value.Value, len(ids))
	for i, id := range ids {
		items[i] = value.Int(id)
	}
	return value.List(items...)
}
