package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/queryir"
	"github.com/roach88/linkage/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, describe(event))
		}
	}
	return buf.String()
}

func describe(ev TraceEvent) string {
	s := ev.Op + " " + ev.Type
	if ev.ID != "" {
		s += "/" + ev.ID
	}
	if ev.Relation != "" {
		s += "." + ev.Relation
	}
	return s + " -> " + ev.Outcome
}

// matches reports whether ev is an event of the assertion's op, and of
// its resource type and relation when given.
func matches(ev TraceEvent, a Assertion) bool {
	return ev.Op == a.Op &&
		(a.Resource == "" || ev.Type == a.Resource) &&
		(a.Relation == "" || ev.Relation == a.Relation)
}

// assertTraceContains checks if the trace contains a matching step.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op %s (resource=%q relation=%q)", a.Op, a.Resource, a.Relation),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if ops appear in the specified order.
// Ops don't need to be consecutive (intervening steps are allowed).
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Ops) && ev.Op == a.Ops[next] {
			next++
		}
	}
	if next < len(a.Ops) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("ops in order: %v", a.Ops),
			Actual:   fmt.Sprintf("%s not found after %v", a.Ops[next], a.Ops[:next]),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceCount checks if the op appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// rowidColumn orders ad-hoc reads of tables that have no declared
// resource type, such as join tables.
const rowidColumn = "rowid"

// assertFinalState checks that exactly one row of the table matches
// Where, and that it holds the Expect values (subset semantics).
// Table and column names are validated by the query compiler.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	where, err := buildFilter(a.Where)
	if err != nil {
		return err
	}
	expected, err := toIRObject(a.Expect)
	if err != nil {
		return fmt.Errorf("final_state expect: %w", err)
	}

	rows, err := st.Select(ctx, queryir.Select{From: a.Table, Key: rowidColumn, Filter: where})
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	switch len(rows) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, formatWhere(a.Where)),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, formatWhere(a.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	row := rows[0]
	for _, key := range expected.SortedKeys() {
		actual, exists := row[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in columns %v", key, row.SortedKeys()),
			}
		}
		if !stateValuesEqual(expected[key], actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %s", key, ir.String(expected[key])),
				Actual:   fmt.Sprintf("field %q = %s", key, ir.String(actual)),
			}
		}
	}
	return nil
}

// assertRowCount checks how many rows of the table match Where.
func assertRowCount(ctx context.Context, st *store.Store, a Assertion) error {
	where, err := buildFilter(a.Where)
	if err != nil {
		return err
	}
	n, err := st.Count(ctx, queryir.Count{From: a.Table, Filter: where})
	if err != nil {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("count table %s", a.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	if n != int64(a.Count) {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s where %s", a.Count, a.Table, formatWhere(a.Where)),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

// buildFilter converts a where map into a conjunction of equalities.
// Null values match NULL columns.
func buildFilter(where map[string]any) (queryir.Predicate, error) {
	values, err := toIRObject(where)
	if err != nil {
		return nil, fmt.Errorf("where: %w", err)
	}
	var preds []queryir.Predicate
	for _, col := range values.SortedKeys() {
		v := values[col]
		if ir.IsNull(v) {
			preds = append(preds, queryir.IsNull{Field: col})
			continue
		}
		preds = append(preds, queryir.Equals{Field: col, Value: sqlValue(v)})
	}
	return queryir.Conj(preds...), nil
}

// sqlValue maps booleans to the integers SQLite stores them as.
func sqlValue(v ir.IRValue) ir.IRValue {
	if b, ok := v.(ir.IRBool); ok {
		if b {
			return ir.IRInt(1)
		}
		return ir.IRInt(0)
	}
	return v
}

// formatWhere creates a human-readable description of WHERE conditions.
func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	values, err := toIRObject(where)
	if err != nil {
		return fmt.Sprintf("%v", where)
	}
	parts := make([]string, 0, len(values))
	for _, k := range values.SortedKeys() {
		parts = append(parts, fmt.Sprintf("%s=%s", k, ir.String(values[k])))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares an expected value with a stored one.
// SQLite stores booleans as integers (0/1).
func stateValuesEqual(expected, actual ir.IRValue) bool {
	if b, ok := expected.(ir.IRBool); ok {
		if n, ok := actual.(ir.IRInt); ok {
			return bool(b) == (n != 0)
		}
	}
	return ir.Equal(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertFinalState, AssertRowCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires database context", i, a.Type)
			} else if a.Type == AssertFinalState {
				err = assertFinalState(actx.Ctx, actx.Store, a)
			} else {
				err = assertRowCount(actx.Ctx, actx.Store, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
