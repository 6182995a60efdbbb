package reconcile

import (
	"context"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/model"
)

// Predicate decides whether one candidate member is actually added or
// removed. A false result skips the member without error. ctx carries
// the reconciliation's transaction; queries made with it join that
// transaction.
type Predicate func(ctx context.Context, candidate *model.Record) bool

type sideKind int

const (
	sideSkip sideKind = iota
	sideAlways
	sideWhen
)

// Side is one half (add or remove) of a reconciliation: skipped entirely,
// always applied, or applied per member when a predicate holds. The zero
// Side is Skip.
type Side struct {
	kind sideKind
	keep Predicate
}

// Skip disables a side: its keys are not resolved or processed at all.
func Skip() Side {
	return Side{kind: sideSkip}
}

// Always applies a side to every key in its diff.
func Always() Side {
	return Side{kind: sideAlways}
}

// When applies a side to the members for which keep returns true.
// A nil keep is Always.
func When(keep Predicate) Side {
	if keep == nil {
		return Always()
	}
	return Side{kind: sideWhen, keep: keep}
}

// Active reports whether the side processes its diff.
func (s Side) Active() bool {
	return s.kind != sideSkip
}

func (s Side) admits(ctx context.Context, candidate *model.Record) bool {
	switch s.kind {
	case sideAlways:
		return true
	case sideWhen:
		return s.keep(ctx, candidate)
	default:
		return false
	}
}

func (s Side) String() string {
	switch s.kind {
	case sideAlways:
		return "always"
	case sideWhen:
		return "when"
	default:
		return "skip"
	}
}

// Mode selects the active sides of a reconciliation.
type Mode struct {
	Add    Side
	Remove Side
}

// removals returns the remove-side diff. With both sides active the
// references are the complete desired set, so members missing from them
// are removed. With the add side skipped the references name the members
// to remove, and members not named are kept.
func (m Mode) removals(current, desired []ir.IRValue) []ir.IRValue {
	if !m.Add.Active() {
		return intersection(current, desired)
	}
	return difference(current, desired)
}

// AddRemove is full reconciliation (replace).
func AddRemove() Mode {
	return Mode{Add: Always(), Remove: Always()}
}

// AddMissing only adds members (merge).
func AddMissing() Mode {
	return Mode{Add: Always(), Remove: Skip()}
}

// RemovePresent only removes members (subtract).
func RemovePresent() Mode {
	return Mode{Add: Skip(), Remove: Always()}
}
