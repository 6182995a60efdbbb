// Package reconcile converges the persisted membership of a to-many
// association to a client-proposed set of references.
//
// One reconciliation runs in one transaction:
//
//  1. lock the owner's row
//  2. read the current member keys in a single query
//  3. coerce the references into the desired key set
//  4. toAdd = desired - current, toRemove = current - desired
//     (current & desired when the add side is skipped: subtract)
//  5. resolve, filter and apply each key of every active side
//  6. reload the owner, then commit
//
// Any failure rolls the whole reconciliation back. When both sides are
// active, keys present in both sets are never touched. Keys are processed
// in sorted order, but callers must rely only on the resulting set.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/linkage/internal/apierr"
	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/model"
	"github.com/roach88/linkage/internal/schema"
)

// Result reports what a committed reconciliation changed.
type Result struct {
	// ID correlates the reconciliation's log lines.
	ID       string `json:"id"`
	Type     string `json:"type"`
	Owner    string `json:"owner"`
	Relation string `json:"relation"`

	Added   []ir.IRValue `json:"added"`
	Removed []ir.IRValue `json:"removed"`

	// Skipped holds keys whose side predicate returned false.
	Skipped []ir.IRValue `json:"skipped"`
}

// Changed reports whether any member was added or removed.
func (r *Result) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// Engine runs reconciliations against one model layer.
type Engine struct {
	models *model.Models
	ids    IDGenerator

	// onLocked runs right after the owner lock is taken (tests only).
	onLocked func(ctx context.Context)
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator sets the correlation id generator (default UUIDv7).
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// New creates an engine.
func New(models *model.Models, opts ...Option) *Engine {
	e := &Engine{
		models: models,
		ids:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile converges owner's to-many association relation to refs.
//
// coerce converts reference ids into member keys; nil uses the
// association's coercion. A key that does not resolve to a row of the
// associated type, or an id that cannot be coerced, fails with apierr
// NotFound. Errors raised by member operations propagate unchanged. On
// success the owner has been reloaded.
func (e *Engine) Reconcile(
	ctx context.Context,
	owner *model.Record,
	relation string,
	refs []schema.Reference,
	coerce schema.Coercion,
	mode Mode,
) (*Result, error) {
	a, ok := owner.Type().Association(relation)
	if !ok {
		return nil, fmt.Errorf("reconcile %s.%s: %w", owner.Type().Name, relation, model.ErrUnknownAssociation)
	}
	if a.Cardinality != schema.ToMany {
		return nil, fmt.Errorf("reconcile %s.%s: %w", owner.Type().Name, relation, model.ErrCardinality)
	}
	target, err := e.models.Registry().Target(a)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s.%s: %w", owner.Type().Name, relation, err)
	}
	if coerce == nil {
		coerce = e.models.Registry().Coercion(a)
	}

	res := &Result{
		ID:       e.ids.Generate(),
		Type:     owner.Type().Name,
		Owner:    ir.String(owner.Key()),
		Relation: relation,
		Added:    []ir.IRValue{},
		Removed:  []ir.IRValue{},
		Skipped:  []ir.IRValue{},
	}
	log := slog.With("reconcile", res.ID, "type", res.Type, "owner", res.Owner, "relation", relation)

	err = e.models.Tx(ctx, func(ctx context.Context) error {
		if err := owner.Lock(ctx); err != nil {
			return err
		}
		if e.onLocked != nil {
			e.onLocked(ctx)
		}

		members, err := owner.AssociationDataset(relation)
		if err != nil {
			return err
		}
		current, err := members.Keys(ctx)
		if err != nil {
			return err
		}

		desired, err := schema.CoerceAll(schema.IDs(refs), coerce)
		if err != nil {
			nf := apierr.NotFoundf(target.Name, "unresolvable reference: %v", err)
			nf.Err = err
			return nf
		}

		toAdd := difference(desired, current)
		toRemove := mode.removals(current, desired)
		log.Debug("reconcile diff",
			"current", len(current),
			"desired", len(desired),
			"to_add", len(toAdd),
			"to_remove", len(toRemove),
			"add", mode.Add.String(),
			"remove", mode.Remove.String())

		candidates := e.models.DatasetOf(target)
		if mode.Add.Active() {
			for _, key := range toAdd {
				applied, err := apply(ctx, candidates, key, mode.Add, func(m *model.Record) error {
					return owner.AddMember(ctx, relation, m)
				})
				if err != nil {
					return err
				}
				if applied {
					log.Debug("member added", "key", ir.String(key))
					res.Added = append(res.Added, key)
				} else {
					log.Debug("member add skipped", "key", ir.String(key))
					res.Skipped = append(res.Skipped, key)
				}
			}
		}
		if mode.Remove.Active() {
			for _, key := range toRemove {
				applied, err := apply(ctx, candidates, key, mode.Remove, func(m *model.Record) error {
					return owner.RemoveMember(ctx, relation, m)
				})
				if err != nil {
					return err
				}
				if applied {
					log.Debug("member removed", "key", ir.String(key))
					res.Removed = append(res.Removed, key)
				} else {
					log.Debug("member remove skipped", "key", ir.String(key))
					res.Skipped = append(res.Skipped, key)
				}
			}
		}

		return owner.Reload(ctx)
	})
	if err != nil {
		log.Warn("reconcile rolled back", "error", err)
		return nil, err
	}

	log.Info("reconcile committed",
		"added", len(res.Added),
		"removed", len(res.Removed),
		"skipped", len(res.Skipped))
	return res, nil
}

// apply resolves key to a full record, consults side and runs op.
// It reports whether op ran.
func apply(ctx context.Context, candidates *model.Dataset, key ir.IRValue, side Side, op func(*model.Record) error) (bool, error) {
	member, err := candidates.MustWithPK(ctx, key)
	if err != nil {
		return false, err
	}
	if !side.admits(ctx, member) {
		return false, nil
	}
	return true, op(member)
}

// difference returns the keys of a not in b, sorted.
func difference(a, b []ir.IRValue) []ir.IRValue {
	return filter(a, b, false)
}

// intersection returns the keys of a also in b, sorted.
func intersection(a, b []ir.IRValue) []ir.IRValue {
	return filter(a, b, true)
}

func filter(a, b []ir.IRValue, keepShared bool) []ir.IRValue {
	in := make(map[string]bool, len(b))
	for _, k := range b {
		in[ir.KeyString(k)] = true
	}
	out := []ir.IRValue{}
	for _, k := range a {
		if in[ir.KeyString(k)] == keepShared {
			out = append(out, k)
		}
	}
	slices.SortFunc(out, ir.Compare)
	return out
}
