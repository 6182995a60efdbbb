package model

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/linkage/internal/apierr"
	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/queryir"
	"github.com/roach88/linkage/internal/schema"
	"github.com/roach88/linkage/internal/validation"
)

// Record is one row of a resource type.
type Record struct {
	models    *Models
	typ       *schema.Type
	values    ir.IRObject
	changed   map[string]bool
	persisted bool

	// association cache, dropped by Reload and by member operations
	one  map[string]*Record
	many map[string][]*Record
}

var _ schema.Instance = (*Record)(nil)

// SaveOptions controls Save.
type SaveOptions struct {
	// Validate runs domain validation first and fails with
	// apierr ValidationFailed instead of writing.
	Validate bool
}

// Type returns the record's resource type.
func (r *Record) Type() *schema.Type {
	return r.typ
}

// Key returns the primary key, IRNull before the first save of a record
// with a database-generated key.
func (r *Record) Key() ir.IRValue {
	return r.Get(r.typ.PrimaryKey)
}

// Get returns the value of column, IRNull when unset.
func (r *Record) Get(column string) ir.IRValue {
	v, ok := r.values[column]
	if !ok || v == nil {
		return ir.IRNull{}
	}
	return v
}

// Values returns a copy of every column value.
func (r *Record) Values() ir.IRObject {
	return r.values.Clone()
}

// IsNew reports whether the record has not been saved.
func (r *Record) IsNew() bool {
	return !r.persisted
}

// Changed returns the columns assigned since the last save, sorted.
func (r *Record) Changed() []string {
	out := make([]string, 0, len(r.changed))
	for col := range r.changed {
		out = append(out, col)
	}
	slices.Sort(out)
	return out
}

// Set assigns attrs. Every key must be a settable column; the primary key
// is accepted only before the first save. Nothing is assigned when any
// key is rejected.
func (r *Record) Set(attrs ir.IRObject) error {
	for _, col := range attrs.SortedKeys() {
		if !r.assignable(col) {
			return fmt.Errorf("set %s.%s: %w", r.typ.Name, col, ErrUnknownField)
		}
	}
	for _, col := range attrs.SortedKeys() {
		r.assign(col, attrs[col])
	}
	return nil
}

// SetFields assigns the keys of attrs named in allow. Allowed keys
// missing from attrs are skipped; keys of attrs outside allow, or not
// settable, are ignored.
func (r *Record) SetFields(attrs ir.IRObject, allow []string) {
	for _, col := range allow {
		v, ok := attrs[col]
		if !ok || !r.assignable(col) {
			continue
		}
		r.assign(col, v)
	}
}

func (r *Record) assignable(col string) bool {
	return r.typ.Settable(col) || (col == r.typ.PrimaryKey && !r.persisted)
}

func (r *Record) assign(col string, v ir.IRValue) {
	if v == nil {
		v = ir.IRNull{}
	}
	if cur, ok := r.values[col]; ok && r.persisted && ir.Equal(cur, v) {
		return
	}
	r.values[col] = v
	r.changed[col] = true
	if name, ok := r.typ.AssociationForColumn(col); ok {
		delete(r.one, name)
	}
}

// Validate runs domain validation and returns the failures; the result
// is Empty when the record is valid. Attributes are checked in
// declaration order (presence, kind, then the attribute's Check), then
// the type's validators run.
func (r *Record) Validate() *validation.Errors {
	errs := &validation.Errors{}
	for _, a := range r.typ.Attributes {
		v := r.Get(a.Name)
		if ir.IsNull(v) {
			if a.NotNull {
				errs.Add(a.Name, "is not present")
			}
			continue
		}
		if msg := kindMismatch(a.Kind, v); msg != "" {
			errs.Add(a.Name, msg)
			continue
		}
		if a.Check != nil {
			for _, msg := range a.Check(v) {
				errs.Add(a.Name, msg)
			}
		}
	}
	for _, validate := range r.typ.Validators {
		validate(r, errs)
	}
	return errs
}

func kindMismatch(k schema.Kind, v ir.IRValue) string {
	switch k {
	case schema.KindString:
		if _, ok := v.(ir.IRString); !ok {
			return "is not a string"
		}
	case schema.KindInt:
		if _, ok := v.(ir.IRInt); !ok {
			return "is not an integer"
		}
	case schema.KindBool:
		if _, ok := v.(ir.IRBool); !ok {
			return "is not a boolean"
		}
	case schema.KindJSON:
		switch v.(type) {
		case ir.IRArray, ir.IRObject:
		default:
			return "is not an array or object"
		}
	}
	return ""
}

// Check is Validate as a result: nil, or apierr ValidationFailed carrying
// the translated entries.
func (r *Record) Check() error {
	errs := r.Validate()
	if errs.Empty() {
		return nil
	}
	return apierr.ValidationFailed(r.typ.Name, validation.Translate(errs, r.typ))
}

// Save inserts a new record, or writes every column of a persisted one.
// Constraint violations fail with apierr Conflict and write nothing.
func (r *Record) Save(ctx context.Context, opts SaveOptions) error {
	if opts.Validate {
		if err := r.Check(); err != nil {
			return err
		}
	}
	if !r.persisted {
		return r.insert(ctx)
	}
	var cols []string
	for _, col := range r.values.SortedKeys() {
		if col != r.typ.PrimaryKey && r.typ.HasColumn(col) {
			cols = append(cols, col)
		}
	}
	return r.update(ctx, cols)
}

// SaveChanges is Save writing only the columns assigned since the last
// save; a persisted record without changes is not written.
func (r *Record) SaveChanges(ctx context.Context, opts SaveOptions) error {
	if !r.persisted {
		return r.Save(ctx, opts)
	}
	if len(r.changed) == 0 {
		return nil
	}
	if opts.Validate {
		if err := r.Check(); err != nil {
			return err
		}
	}
	return r.update(ctx, r.Changed())
}

func (r *Record) insert(ctx context.Context) error {
	values := r.values.Clone()
	generated := ir.IsNull(r.Key())
	if generated {
		if r.typ.KeyKind != schema.KindInt {
			return fmt.Errorf("insert %s: %w", r.typ.Name, ErrMissingKey)
		}
		delete(values, r.typ.PrimaryKey)
	}

	id, err := r.models.store.Insert(ctx, queryir.Insert{Into: r.typ.Table, Values: values})
	if err != nil {
		return storageError(r.typ, "insert", err)
	}
	if generated {
		r.values[r.typ.PrimaryKey] = ir.IRInt(id)
	}
	r.persisted = true
	clear(r.changed)
	return nil
}

func (r *Record) update(ctx context.Context, cols []string) error {
	if len(cols) == 0 {
		return nil
	}
	set := make(ir.IRObject, len(cols))
	for _, col := range cols {
		set[col] = r.Get(col)
	}
	n, err := r.models.store.Exec(ctx, queryir.Update{
		Table:  r.typ.Table,
		Set:    set,
		Filter: r.keyFilter(),
	})
	if err != nil {
		return storageError(r.typ, "update", err)
	}
	if n == 0 {
		return apierr.NotFound(r.typ.Name, r.Key())
	}
	clear(r.changed)
	return nil
}

// Destroy deletes the record's row. A row still referenced by another
// row fails with apierr Conflict; join rows are removed with it.
func (r *Record) Destroy(ctx context.Context) error {
	if !r.persisted {
		return fmt.Errorf("destroy %s: %w", r.typ.Name, ErrNotPersisted)
	}
	n, err := r.models.store.Exec(ctx, queryir.Delete{From: r.typ.Table, Filter: r.keyFilter()})
	if err != nil {
		return storageError(r.typ, "delete", err)
	}
	if n == 0 {
		return apierr.NotFound(r.typ.Name, r.Key())
	}
	r.persisted = false
	r.one, r.many = nil, nil
	return nil
}

// Reload re-reads the row, discarding unsaved changes and the
// association cache.
func (r *Record) Reload(ctx context.Context) error {
	fresh, err := r.models.DatasetOf(r.typ).MustWithPK(ctx, r.Key())
	if err != nil {
		return err
	}
	r.values = fresh.values
	clear(r.changed)
	r.one, r.many = nil, nil
	return nil
}

// Lock takes the write lock on the record's row until the enclosing
// transaction ends. It fails with apierr NotFound when the row is gone.
func (r *Record) Lock(ctx context.Context) error {
	if !r.models.store.InTx(ctx) {
		return fmt.Errorf("lock %s: %w", r.typ.Name, ErrNoTransaction)
	}
	n, err := r.models.store.Exec(ctx, queryir.Lock{
		Table:     r.typ.Table,
		KeyColumn: r.typ.PrimaryKey,
		Key:       r.Key(),
	})
	if err != nil {
		return storageError(r.typ, "lock", err)
	}
	if n == 0 {
		return apierr.NotFound(r.typ.Name, r.Key())
	}
	return nil
}

func (r *Record) keyFilter() queryir.Predicate {
	return queryir.Equals{Field: r.typ.PrimaryKey, Value: r.Key()}
}
