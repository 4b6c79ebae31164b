package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/draftline/draftline/internal/engine/schema"
)

// SQLStore implements Querier and Mutator on top of database/sql. The
// registry supplies control column names (soft-delete, versioning) so the
// store can enforce the workspace write guard and soft-delete semantics.
type SQLStore struct {
	db     *sql.DB
	reg    *schema.Registry
	driver string
	log    *zap.Logger
}

// NewSQLStore creates a store for the given database handle. driver is the
// database/sql driver name ("pgx", "postgres", "sqlite3"); it selects the
// insert-id strategy.
func NewSQLStore(db *sql.DB, reg *schema.Registry, driver string, log *zap.Logger) *SQLStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLStore{db: db, reg: reg, driver: driver, log: log}
}

// Select runs a filtered, ordered, paginated row fetch
func (s *SQLStore) Select(ctx context.Context, q Query) ([]Row, error) {
	query, args, err := s.buildSelect(q, false)
	if err != nil {
		return nil, err
	}

	s.log.Debug("select", zap.String("table", q.Table), zap.String("sql", query))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Table, ConvertDBError(err))
	}
	defer rows.Close()

	return scanRows(rows)
}

// Count runs the equivalent unpaginated count query for a fetch
func (s *SQLStore) Count(ctx context.Context, q Query) (int, error) {
	query, args, err := s.buildSelect(q, true)
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.Table, ConvertDBError(err))
	}
	return count, nil
}

func (s *SQLStore) buildSelect(q Query, count bool) (string, []interface{}, error) {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	if count {
		sb.WriteString("COUNT(*)")
	} else if len(q.Columns) == 0 {
		sb.WriteString("*")
	} else {
		cols := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			cols[i] = pq.QuoteIdentifier(c)
		}
		sb.WriteString(strings.Join(cols, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(pq.QuoteIdentifier(q.Table))

	counter := 1
	args := make([]interface{}, 0)

	var whereParts []string
	if !q.Where.Empty() {
		clause, err := q.Where.ToSQL(&counter, &args)
		if err != nil {
			return "", nil, err
		}
		if clause != "" {
			whereParts = append(whereParts, clause)
		}
	}
	if q.RawWhere != "" {
		whereParts = append(whereParts, fmt.Sprintf("(%s)", q.RawWhere))
	}
	if len(whereParts) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(whereParts, " AND "))
	}

	if !count {
		if len(q.OrderBy) > 0 {
			terms := make([]string, len(q.OrderBy))
			for i, o := range q.OrderBy {
				dir := "ASC"
				if o.Desc {
					dir = "DESC"
				}
				terms[i] = fmt.Sprintf("%s %s", pq.QuoteIdentifier(o.Field), dir)
			}
			sb.WriteString(" ORDER BY ")
			sb.WriteString(strings.Join(terms, ", "))
		}
		if q.Limit > 0 {
			fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
		}
		if q.Offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", q.Offset)
		}
	}

	return sb.String(), args, nil
}

// Insert inserts a row and returns the assigned id
func (s *SQLStore) Insert(ctx context.Context, table string, values Row, opts ...MutateOption) (int64, error) {
	if err := s.checkGuard(table, opts); err != nil {
		return 0, err
	}

	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	if len(columns) == 0 {
		return 0, fmt.Errorf("no fields to insert into %s", table)
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		quoted[i] = pq.QuoteIdentifier(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[col]
	}

	pk := s.primaryKey(table)

	if s.driver == "sqlite3" {
		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			pq.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert into %s: %w", table, ConvertDBError(err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read inserted id: %w", err)
		}
		return id, nil
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		pq.QuoteIdentifier(table), strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "), pq.QuoteIdentifier(pk))

	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, ConvertDBError(err))
	}
	return id, nil
}

// Update applies a field map to the row with the given id
func (s *SQLStore) Update(ctx context.Context, table string, id int64, values Row, opts ...MutateOption) error {
	if err := s.checkGuard(table, opts); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	assignments := make([]string, len(columns))
	args := make([]interface{}, 0, len(columns)+1)
	for i, col := range columns {
		assignments[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), i+1)
		args = append(args, values[col])
	}
	args = append(args, id)

	pk := s.primaryKey(table)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		pq.QuoteIdentifier(table), strings.Join(assignments, ", "),
		pq.QuoteIdentifier(pk), len(columns)+1)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, ConvertDBError(err))
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNoRows
	}
	return nil
}

// SoftDelete marks the row deleted when the table declares a soft-delete
// column, and removes it otherwise
func (s *SQLStore) SoftDelete(ctx context.Context, table string, id int64, opts ...MutateOption) error {
	if err := s.checkGuard(table, opts); err != nil {
		return err
	}

	pk := s.primaryKey(table)

	var query string
	if control, ok := s.reg.Control(table); ok && control.SoftDelete != "" {
		query = fmt.Sprintf("UPDATE %s SET %s = 1 WHERE %s = $1",
			pq.QuoteIdentifier(table), pq.QuoteIdentifier(control.SoftDelete), pq.QuoteIdentifier(pk))
	} else {
		query = fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
			pq.QuoteIdentifier(table), pq.QuoteIdentifier(pk))
	}

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, ConvertDBError(err))
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrNoRows
	}
	return nil
}

// DeleteWhere hard-deletes all rows matching the restriction
func (s *SQLStore) DeleteWhere(ctx context.Context, table string, where *Restriction, opts ...MutateOption) error {
	if err := s.checkGuard(table, opts); err != nil {
		return err
	}
	if where.Empty() {
		return fmt.Errorf("refusing to delete from %s without a restriction", table)
	}

	counter := 1
	args := make([]interface{}, 0)
	clause, err := where.ToSQL(&counter, &args)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s", pq.QuoteIdentifier(table), clause)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, ConvertDBError(err))
	}
	return nil
}

// checkGuard refuses mutations on versioned tables unless the caller asserts
// it already resolved the correct physical row.
func (s *SQLStore) checkGuard(table string, opts []MutateOption) error {
	options := MutateOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.BypassWorkspaceGuard {
		return nil
	}
	if t, ok := s.reg.Table(table); ok && t.Versioned() {
		return fmt.Errorf("%w: %s", ErrWorkspaceGuard, table)
	}
	return nil
}

func (s *SQLStore) primaryKey(table string) string {
	if control, ok := s.reg.Control(table); ok && control.PrimaryKey != "" {
		return control.PrimaryKey
	}
	return "id"
}

// scanRows scans all result rows into generic column maps
func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	results := make([]Row, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			v := values[i]
			// Text columns come back as []byte from some drivers
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return results, nil
}
