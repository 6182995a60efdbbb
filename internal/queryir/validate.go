package queryir

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/roach88/linkage/internal/ir"
)

// ErrInvalidQuery wraps every problem reported by Validate.
var ErrInvalidQuery = errors.New("invalid query")

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s can be used as a table or column name.
// Identifiers are the only part of a statement a backend interpolates,
// so anything else is refused.
func ValidIdentifier(s string) bool {
	return identifier.MatchString(s)
}

// Validate checks a query before compilation. All problems are reported
// in one error (does not fail-fast).
//
// Rules:
//  1. Every table and column name is a plain identifier
//  2. Equals never compares against NULL
//  3. Update and Delete always carry a filter
//  4. Subqueries select exactly one column
//  5. Lock names a key
//
// Validate is a pure function with no side effects.
func Validate(q Query) error {
	v := &validator{}
	v.validateQuery(q)
	if len(v.problems) == 0 {
		return nil
	}
	errs := make([]error, len(v.problems))
	for i, p := range v.problems {
		errs[i] = fmt.Errorf("%w: %s", ErrInvalidQuery, p)
	}
	return errors.Join(errs...)
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) ident(kind, s string) {
	if !ValidIdentifier(s) {
		v.addProblem("%s %q is not a valid identifier", kind, s)
	}
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Count:
		v.ident("table", query.From)
		v.validatePredicate(query.Filter)
	case *Count:
		v.validateQuery(*query)
	case Insert:
		v.ident("table", query.Into)
		for col := range query.Values {
			v.ident("column", col)
		}
	case *Insert:
		v.validateQuery(*query)
	case Update:
		v.ident("table", query.Table)
		if len(query.Set) == 0 {
			v.addProblem("update of %s sets nothing", query.Table)
		}
		for col := range query.Set {
			v.ident("column", col)
		}
		if query.Filter == nil {
			v.addProblem("update of %s has no filter", query.Table)
		}
		v.validatePredicate(query.Filter)
	case *Update:
		v.validateQuery(*query)
	case Delete:
		v.ident("table", query.From)
		if query.Filter == nil {
			v.addProblem("delete from %s has no filter", query.From)
		}
		v.validatePredicate(query.Filter)
	case *Delete:
		v.validateQuery(*query)
	case Lock:
		v.ident("table", query.Table)
		v.ident("column", query.KeyColumn)
		if ir.IsNull(query.Key) {
			v.addProblem("lock on %s has no key", query.Table)
		}
	case *Lock:
		v.validateQuery(*query)
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	v.ident("table", sel.From)
	if sel.Key != "" {
		v.ident("column", sel.Key)
	}
	for _, c := range sel.Columns {
		v.ident("column", c)
	}
	for _, o := range sel.Order {
		v.ident("column", o.Field)
	}
	if sel.Limit < 0 || sel.Offset < 0 {
		v.addProblem("negative limit or offset on %s", sel.From)
	}
	v.validatePredicate(sel.Filter)
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.ident("column", pred.Field)
		if ir.IsNull(pred.Value) {
			v.addProblem("field %q compared to NULL - use IsNull", pred.Field)
		}
	case *Equals:
		v.validatePredicate(*pred)
	case In:
		v.ident("column", pred.Field)
		for _, val := range pred.Values {
			if ir.IsNull(val) {
				v.addProblem("field %q IN list contains NULL", pred.Field)
				break
			}
		}
	case *In:
		v.validatePredicate(*pred)
	case InQuery:
		v.ident("column", pred.Field)
		if len(pred.Query.Columns) != 1 {
			v.addProblem("subquery for %q must select exactly one column", pred.Field)
		}
		v.validateSelect(pred.Query)
	case *InQuery:
		v.validatePredicate(*pred)
	case IsNull:
		v.ident("column", pred.Field)
	case *IsNull:
		v.validatePredicate(*pred)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		v.validatePredicate(*pred)
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}
