package storage

import (
	"context"
)

// Row is one raw storage row: column name to driver value, before any codec
// or projection work.
type Row map[string]interface{}

// Int64 reads a column as an integer id, tolerating the numeric types
// database drivers actually hand back.
func (r Row) Int64(column string) int64 {
	switch v := r[column].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case uint64:
		return int64(v)
	}
	return 0
}

// Order is one ORDER BY term
type Order struct {
	Field string
	Desc  bool
}

// Query describes one filtered, ordered, paginated row fetch
type Query struct {
	Table   string
	Columns []string // empty selects all columns

	// Where is the composed restriction tree. RawWhere is an additional
	// caller-supplied predicate, already screened by the reader; it is the
	// only non-parameterized fragment that ever reaches the backend.
	Where    *Restriction
	RawWhere string

	OrderBy []Order
	Limit   int // 0 means no limit
	Offset  int
}

// Querier runs row fetches and counts against a named table
type Querier interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Count(ctx context.Context, q Query) (int, error)
}

// MutateOptions adjusts how a single mutation is applied
type MutateOptions struct {
	// BypassWorkspaceGuard allows writing rows of versioned tables. The
	// caller asserts it already resolved the correct physical row.
	BypassWorkspaceGuard bool
}

// MutateOption configures MutateOptions
type MutateOption func(*MutateOptions)

// WithBypassWorkspaceGuard disables the versioned-table write guard
func WithBypassWorkspaceGuard() MutateOption {
	return func(o *MutateOptions) { o.BypassWorkspaceGuard = true }
}

// Mutator applies row mutations: the mutation-engine contract the record
// writer depends on. Implementations report per-row errors and return the
// assigned id for inserts.
type Mutator interface {
	Insert(ctx context.Context, table string, values Row, opts ...MutateOption) (int64, error)
	Update(ctx context.Context, table string, id int64, values Row, opts ...MutateOption) error
	SoftDelete(ctx context.Context, table string, id int64, opts ...MutateOption) error

	// DeleteWhere hard-deletes all rows matching the restriction. Used for
	// junction-table cleanup; junction rows have no soft-delete semantics.
	DeleteWhere(ctx context.Context, table string, where *Restriction, opts ...MutateOption) error
}
