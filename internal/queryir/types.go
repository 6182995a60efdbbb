package queryir

import "github.com/roach88/linkage/internal/ir"

// Query is an abstract statement issued by a Dataset or a Record.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers.
//
// Query types:
//   - Select: rows (or a column) of one table, filtered, ordered, sliced
//   - Count: number of rows matching a filter
//   - Insert, Update, Delete: single-table writes
//   - Lock: take the write lock on one row
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate is a filter condition.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = literal_value
//   - In: field IN (literal, ...)
//   - InQuery: field IN (SELECT ...)
//   - IsNull: field IS NULL
//   - And: all predicates must be true
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// OrderTerm is one ORDER BY criterion.
type OrderTerm struct {
	Field string
	Desc  bool
}

// Select reads rows from one table.
//
// Semantics:
//
//	SELECT <columns> FROM <from> WHERE <filter>
//	ORDER BY <order>, <key> LIMIT <limit> OFFSET <offset>
//
// Key names the primary-key column. It is appended to every ORDER BY as
// the deterministic tiebreaker, so pages never overlap or skip rows.
// Columns empty means every column. Limit 0 means no limit.
//
// Example:
//
//	Select{
//	  From:    "tags",
//	  Key:     "id",
//	  Columns: []string{"id"},
//	  Filter: InQuery{Field: "id", Query: Select{
//	    From:    "posts_tags",
//	    Columns: []string{"tag_id"},
//	    Filter:  Equals{Field: "post_id", Value: ir.IRInt(1)},
//	  }},
//	}
//
// reads the keys of every tag linked to post 1 in one statement.
type Select struct {
	From    string
	Key     string
	Columns []string
	Filter  Predicate // nil = no filter
	Order   []OrderTerm
	Limit   int64
	Offset  int64
}

func (Select) queryNode() {}

// Count counts rows of one table.
type Count struct {
	From   string
	Filter Predicate
}

func (Count) queryNode() {}

// Insert writes one row. Columns are emitted in sorted order; empty
// Values inserts a row of column defaults.
type Insert struct {
	Into   string
	Values ir.IRObject
}

func (Insert) queryNode() {}

// Update assigns columns on every row matching Filter.
// A nil Filter is rejected by Validate: whole-table updates are never
// issued by this package's callers.
type Update struct {
	Table  string
	Set    ir.IRObject
	Filter Predicate
}

func (Update) queryNode() {}

// Delete removes every row matching Filter. A nil Filter is rejected.
type Delete struct {
	From   string
	Filter Predicate
}

func (Delete) queryNode() {}

// Lock takes the database write lock on the row of Table whose KeyColumn
// equals Key. Backends without row locks lock by writing the row in place;
// a statement that matches no row reports zero rows affected.
type Lock struct {
	Table     string
	KeyColumn string
	Key       ir.IRValue
}

func (Lock) queryNode() {}

// Equals is a field-equals-literal predicate.
//
// Value must not be IRNull: NULL never equals anything in SQL, so
// Validate rejects it. Use IsNull.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// In matches any of Values. An empty Values list matches nothing.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// InQuery matches values produced by a single-column Select.
type InQuery struct {
	Field string
	Query Select
}

func (InQuery) predicateNode() {}

// IsNull matches rows where Field is NULL.
type IsNull struct {
	Field string
}

func (IsNull) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Conj joins predicates, dropping nils and flattening nested Ands.
// It returns nil when nothing remains.
func Conj(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		switch v := p.(type) {
		case nil:
		case And:
			out = append(out, v.Predicates...)
		case *And:
			out = append(out, v.Predicates...)
		default:
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return And{Predicates: out}
}
