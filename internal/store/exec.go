package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/queryir"
	"github.com/roach88/linkage/internal/querysql"
)

var compiler = querysql.NewSQLCompiler()

// Select runs a Select and returns every row as an IRObject keyed by
// column name. Returns an empty slice (not nil) when nothing matches.
func (s *Store) Select(ctx context.Context, q queryir.Select) ([]ir.IRObject, error) {
	query, params, err := compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", q.From, err)
	}
	slog.Debug("store select", "sql", query, "params", len(params))

	rows, err := s.conn(ctx).QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", q.From, classify(err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("select from %s: columns: %w", q.From, err)
	}

	out := []ir.IRObject{}
	for rows.Next() {
		row, err := scanRow(rows, cols)
		if err != nil {
			return nil, fmt.Errorf("select from %s: %w", q.From, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select from %s: iterate: %w", q.From, err)
	}
	return out, nil
}

// Column runs a single-column Select and returns the values in order.
func (s *Store) Column(ctx context.Context, q queryir.Select) ([]ir.IRValue, error) {
	if len(q.Columns) != 1 {
		return nil, fmt.Errorf("select column from %s: want exactly one column, got %d", q.From, len(q.Columns))
	}
	rows, err := s.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]ir.IRValue, len(rows))
	for i, row := range rows {
		out[i] = row[q.Columns[0]]
	}
	return out, nil
}

// Count runs a Count query.
func (s *Store) Count(ctx context.Context, q queryir.Count) (int64, error) {
	query, params, err := compiler.Compile(q)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.From, err)
	}
	var n int64
	if err := s.conn(ctx).QueryRowContext(ctx, query, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.From, classify(err))
	}
	return n, nil
}

// Insert writes one row and returns its rowid.
func (s *Store) Insert(ctx context.Context, q queryir.Insert) (int64, error) {
	res, err := s.exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", q.Into, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert into %s: last insert id: %w", q.Into, err)
	}
	return id, nil
}

// Exec runs an Update, Delete or Lock and returns the rows affected.
func (s *Store) Exec(ctx context.Context, q queryir.Query) (int64, error) {
	res, err := s.exec(ctx, q)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *Store) exec(ctx context.Context, q queryir.Query) (sql.Result, error) {
	query, params, err := compiler.Compile(q)
	if err != nil {
		return nil, err
	}
	slog.Debug("store exec", "sql", query, "params", len(params))

	res, err := s.conn(ctx).ExecContext(ctx, query, params...)
	if err != nil {
		return nil, classify(err)
	}
	return res, nil
}

// ExecRaw runs a statement that has no queryir form (DDL).
func (s *Store) ExecRaw(ctx context.Context, stmt string) error {
	if _, err := s.conn(ctx).ExecContext(ctx, stmt); err != nil {
		return classify(err)
	}
	return nil
}

func scanRow(rows *sql.Rows, cols []string) (ir.IRObject, error) {
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	row := make(ir.IRObject, len(cols))
	for i, col := range cols {
		v, err := ir.FromSQL(vals[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		row[col] = v
	}
	return row, nil
}
