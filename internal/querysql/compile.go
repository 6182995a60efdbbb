package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/queryir"
)

// SQLCompiler compiles queryir nodes to parameterized SQL for SQLite.
//
// CRITICAL: every top-level SELECT is ordered with the primary key as the
// last term, so results and pages are deterministic.
// CRITICAL: all values are parameterized (never interpolated). Identifiers
// are validated by queryir.Validate and double-quoted.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a query to SQL. Returns (sql, params, error).
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, err
	}

	var b builder
	switch query := q.(type) {
	case queryir.Select:
		if err := b.selectStmt(query, true); err != nil {
			return "", nil, err
		}
	case *queryir.Select:
		if err := b.selectStmt(*query, true); err != nil {
			return "", nil, err
		}
	case queryir.Count:
		b.countStmt(query)
	case *queryir.Count:
		b.countStmt(*query)
	case queryir.Insert:
		b.insertStmt(query)
	case *queryir.Insert:
		b.insertStmt(*query)
	case queryir.Update:
		b.updateStmt(query)
	case *queryir.Update:
		b.updateStmt(*query)
	case queryir.Delete:
		b.deleteStmt(query)
	case *queryir.Delete:
		b.deleteStmt(*query)
	case queryir.Lock:
		b.lockStmt(query)
	case *queryir.Lock:
		b.lockStmt(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
	if b.err != nil {
		return "", nil, b.err
	}
	return b.sql.String(), b.params, nil
}

// builder accumulates SQL text and parameters. The first conversion error
// sticks in err.
type builder struct {
	sql    strings.Builder
	params []any
	err    error
}

func (b *builder) write(parts ...string) {
	for _, p := range parts {
		b.sql.WriteString(p)
	}
}

func (b *builder) param(v ir.IRValue) {
	p, err := ir.ToSQL(v)
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("convert value: %w", err)
	}
	b.params = append(b.params, p)
	b.sql.WriteByte('?')
}

func quote(ident string) string {
	return `"` + ident + `"`
}

// selectStmt writes a SELECT. Subqueries (top=false) are not ordered.
func (b *builder) selectStmt(q queryir.Select, top bool) error {
	b.write("SELECT ")
	if len(q.Columns) == 0 {
		b.write("*")
	}
	for i, col := range q.Columns {
		if i > 0 {
			b.write(", ")
		}
		b.write(quote(col))
	}
	b.write(" FROM ", quote(q.From))
	b.where(q.Filter)

	if !top {
		return nil
	}
	if q.Key == "" {
		return fmt.Errorf("select from %s: no key column to order by", q.From)
	}

	b.write(" ORDER BY ")
	for _, term := range q.Order {
		if term.Field == q.Key {
			continue
		}
		b.write(quote(term.Field), " COLLATE BINARY ", direction(term.Desc), ", ")
	}
	b.write(quote(q.Key), " COLLATE BINARY ", direction(keyDesc(q)))

	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit == 0 {
			limit = -1 // SQLite: no limit
		}
		b.write(" LIMIT ")
		b.param(ir.IRInt(limit))
		if q.Offset > 0 {
			b.write(" OFFSET ")
			b.param(ir.IRInt(q.Offset))
		}
	}
	return nil
}

// keyDesc honours an explicit order term on the key column itself.
func keyDesc(q queryir.Select) bool {
	for _, term := range q.Order {
		if term.Field == q.Key {
			return term.Desc
		}
	}
	return false
}

func direction(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}

func (b *builder) countStmt(q queryir.Count) {
	b.write("SELECT COUNT(*) FROM ", quote(q.From))
	b.where(q.Filter)
}

func (b *builder) insertStmt(q queryir.Insert) {
	if len(q.Values) == 0 {
		b.write("INSERT INTO ", quote(q.Into), " DEFAULT VALUES")
		return
	}
	cols := q.Values.SortedKeys()
	b.write("INSERT INTO ", quote(q.Into), " (")
	for i, col := range cols {
		if i > 0 {
			b.write(", ")
		}
		b.write(quote(col))
	}
	b.write(") VALUES (")
	for i, col := range cols {
		if i > 0 {
			b.write(", ")
		}
		b.param(q.Values[col])
	}
	b.write(")")
}

func (b *builder) updateStmt(q queryir.Update) {
	b.write("UPDATE ", quote(q.Table), " SET ")
	for i, col := range q.Set.SortedKeys() {
		if i > 0 {
			b.write(", ")
		}
		b.write(quote(col), " = ")
		b.param(q.Set[col])
	}
	b.where(q.Filter)
}

func (b *builder) deleteStmt(q queryir.Delete) {
	b.write("DELETE FROM ", quote(q.From))
	b.where(q.Filter)
}

// lockStmt writes the row in place. In SQLite this takes the database
// write lock (held until commit) and reports whether the row exists.
func (b *builder) lockStmt(q queryir.Lock) {
	col := quote(q.KeyColumn)
	b.write("UPDATE ", quote(q.Table), " SET ", col, " = ", col, " WHERE ", col, " = ")
	b.param(q.Key)
}

func (b *builder) where(p queryir.Predicate) {
	if p == nil {
		return
	}
	b.write(" WHERE ")
	b.predicate(p)
}

func (b *builder) predicate(p queryir.Predicate) {
	switch pred := p.(type) {
	case queryir.Equals:
		b.write(quote(pred.Field), " = ")
		b.param(pred.Value)
	case *queryir.Equals:
		b.predicate(*pred)
	case queryir.In:
		if len(pred.Values) == 0 {
			b.write("0 = 1")
			return
		}
		b.write(quote(pred.Field), " IN (")
		for i, v := range pred.Values {
			if i > 0 {
				b.write(", ")
			}
			b.param(v)
		}
		b.write(")")
	case *queryir.In:
		b.predicate(*pred)
	case queryir.InQuery:
		b.write(quote(pred.Field), " IN (")
		if err := b.selectStmt(pred.Query, false); err != nil && b.err == nil {
			b.err = err
		}
		b.write(")")
	case *queryir.InQuery:
		b.predicate(*pred)
	case queryir.IsNull:
		b.write(quote(pred.Field), " IS NULL")
	case *queryir.IsNull:
		b.predicate(*pred)
	case queryir.And:
		if len(pred.Predicates) == 0 {
			b.write("1 = 1")
			return
		}
		for i, sub := range pred.Predicates {
			if i > 0 {
				b.write(" AND ")
			}
			b.predicate(sub)
		}
	case *queryir.And:
		b.predicate(*pred)
	default:
		if b.err == nil {
			b.err = fmt.Errorf("unsupported predicate type: %T", p)
		}
	}
}
