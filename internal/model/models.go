// Package model is the domain model over store: datasets that filter,
// order and paginate rows of a resource type, and records with attribute
// assignment, save/reload/destroy and association member operations.
//
// Records are transient. A record holds its row values and a per-request
// association cache; nothing is shared between records of the same row.
package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/linkage/internal/apierr"
	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/schema"
	"github.com/roach88/linkage/internal/store"
)

var (
	// ErrUnknownField is returned by Set for a key that is not a settable
	// column of the record's type.
	ErrUnknownField = errors.New("unknown or read-only field")

	// ErrUnknownAssociation is returned for an undeclared association name.
	ErrUnknownAssociation = errors.New("unknown association")

	// ErrCardinality is returned when a to-one operation is applied to a
	// to-many association or the other way round.
	ErrCardinality = errors.New("wrong association cardinality")

	// ErrNotPersisted is returned for association operations on a record
	// that has not been saved.
	ErrNotPersisted = errors.New("record is not persisted")

	// ErrMissingKey is returned when inserting a record whose key cannot
	// be generated by the database.
	ErrMissingKey = errors.New("primary key required")

	// ErrNoTransaction is returned by Lock outside a transaction.
	ErrNoTransaction = errors.New("row lock requires a transaction")
)

// Models binds a registry of resource types to a store.
type Models struct {
	store    *store.Store
	registry *schema.Registry
}

// New creates the model layer for reg over st.
func New(st *store.Store, reg *schema.Registry) *Models {
	return &Models{store: st, registry: reg}
}

// Store returns the underlying store.
func (m *Models) Store() *store.Store {
	return m.store
}

// Registry returns the resource type registry.
func (m *Models) Registry() *schema.Registry {
	return m.registry
}

// Tx runs fn in a store transaction, joining one already open in ctx.
func (m *Models) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.store.Tx(ctx, fn)
}

// Dataset returns the unfiltered dataset of the named type.
func (m *Models) Dataset(typeName string) (*Dataset, error) {
	t, err := m.registry.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return m.DatasetOf(t), nil
}

// DatasetOf returns the unfiltered dataset of t.
func (m *Models) DatasetOf(t *schema.Type) *Dataset {
	return &Dataset{models: m, typ: t}
}

// NewRecord returns an unsaved record of t with no values.
func (m *Models) NewRecord(t *schema.Type) *Record {
	return &Record{
		models:  m,
		typ:     t,
		values:  ir.IRObject{},
		changed: map[string]bool{},
	}
}

// load builds a persisted record from a row, decoding stored bools and
// JSON text back into their attribute kinds.
func (m *Models) load(t *schema.Type, row ir.IRObject) (*Record, error) {
	values := make(ir.IRObject, len(row))
	for col, v := range row {
		dec, err := decode(t, col, v)
		if err != nil {
			return nil, fmt.Errorf("load %s.%s: %w", t.Name, col, err)
		}
		values[col] = dec
	}
	return &Record{
		models:    m,
		typ:       t,
		values:    values,
		changed:   map[string]bool{},
		persisted: true,
	}, nil
}

func decode(t *schema.Type, col string, v ir.IRValue) (ir.IRValue, error) {
	a, ok := t.Attribute(col)
	if !ok || ir.IsNull(v) {
		return v, nil
	}
	switch a.Kind {
	case schema.KindBool:
		if n, ok := v.(ir.IRInt); ok {
			return ir.IRBool(n != 0), nil
		}
	case schema.KindJSON:
		if s, ok := v.(ir.IRString); ok {
			return ir.UnmarshalIRValue([]byte(s))
		}
	}
	return v, nil
}

// storageError maps a constraint violation to apierr.Conflict on t and
// wraps anything else.
func storageError(t *schema.Type, op string, err error) error {
	if store.IsConstraint(err) {
		return apierr.Conflict(t.Name, err)
	}
	return fmt.Errorf("%s %s: %w", op, t.Name, err)
}
