package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/queryir"
	"github.com/roach88/linkage/internal/schema"
)

func (r *Record) association(name string, want schema.Cardinality) (*schema.Association, *schema.Type, error) {
	a, ok := r.typ.Association(name)
	if !ok {
		return nil, nil, fmt.Errorf("%s.%s: %w", r.typ.Name, name, ErrUnknownAssociation)
	}
	if a.Cardinality != want {
		return nil, nil, fmt.Errorf("%s.%s is %s: %w", r.typ.Name, name, a.Cardinality, ErrCardinality)
	}
	target, err := r.models.registry.Target(a)
	if err != nil {
		return nil, nil, err
	}
	return a, target, nil
}

// Associated returns the record referenced by a to-one association, or
// nil when the foreign key is NULL or dangling.
func (r *Record) Associated(ctx context.Context, name string) (*Record, error) {
	a, target, err := r.association(name, schema.ToOne)
	if err != nil {
		return nil, err
	}
	if rec, ok := r.one[name]; ok {
		return rec, nil
	}
	rec, err := r.models.DatasetOf(target).WithPK(ctx, r.Get(a.ForeignKey))
	if err != nil {
		return nil, err
	}
	if r.one == nil {
		r.one = make(map[string]*Record)
	}
	r.one[name] = rec
	return rec, nil
}

// SetAssociated assigns a to-one association; nil clears it. The change
// is written by the next Save or SaveChanges.
func (r *Record) SetAssociated(name string, target *Record) error {
	a, targetType, err := r.association(name, schema.ToOne)
	if err != nil {
		return err
	}
	var fk ir.IRValue = ir.IRNull{}
	if target != nil {
		if target.typ != targetType {
			return fmt.Errorf("set %s.%s: want %s, got %s", r.typ.Name, name, targetType.Name, target.typ.Name)
		}
		if target.IsNew() {
			return fmt.Errorf("set %s.%s: %w", r.typ.Name, name, ErrNotPersisted)
		}
		fk = target.Key()
	}
	r.assign(a.ForeignKey, fk)
	if r.one == nil {
		r.one = make(map[string]*Record)
	}
	r.one[name] = target
	return nil
}

// AssociationDataset returns the dataset of a to-many association's
// current members (the <relation>_dataset accessor). For a join table
// the membership test is a subquery, so Keys reads the member keys in a
// single statement.
func (r *Record) AssociationDataset(name string) (*Dataset, error) {
	a, target, err := r.association(name, schema.ToMany)
	if err != nil {
		return nil, err
	}
	if r.IsNew() {
		return nil, fmt.Errorf("%s.%s: %w", r.typ.Name, name, ErrNotPersisted)
	}
	ds := r.models.DatasetOf(target)
	if j := a.Through; j != nil {
		return ds.filtered(queryir.InQuery{Field: target.PrimaryKey, Query: queryir.Select{
			From:    j.Table,
			Columns: []string{j.MemberKey},
			Filter:  queryir.Equals{Field: j.OwnerKey, Value: r.Key()},
		}}), nil
	}
	return ds.Where(a.ForeignKey, r.Key()), nil
}

// Members returns the to-many members, cached until the next member
// operation or Reload.
func (r *Record) Members(ctx context.Context, name string) ([]*Record, error) {
	if recs, ok := r.many[name]; ok {
		return recs, nil
	}
	ds, err := r.AssociationDataset(name)
	if err != nil {
		return nil, err
	}
	recs, err := ds.All(ctx)
	if err != nil {
		return nil, err
	}
	if r.many == nil {
		r.many = make(map[string][]*Record)
	}
	r.many[name] = recs
	return recs, nil
}

// AddMember links member into a to-many association (add_<member>),
// through the association's Add override when it has one.
func (r *Record) AddMember(ctx context.Context, name string, member *Record) error {
	a, target, err := r.memberOp(name, member)
	if err != nil {
		return err
	}
	defer delete(r.many, name)
	if a.Add != nil {
		return a.Add(ctx, r, member)
	}

	if j := a.Through; j != nil {
		_, err := r.models.store.Insert(ctx, queryir.Insert{Into: j.Table, Values: ir.IRObject{
			j.OwnerKey:  r.Key(),
			j.MemberKey: member.Key(),
		}})
		if err != nil {
			return storageError(r.typ, a.AddOperation(), err)
		}
		return nil
	}

	_, err = r.models.store.Exec(ctx, queryir.Update{
		Table:  target.Table,
		Set:    ir.IRObject{a.ForeignKey: r.Key()},
		Filter: member.keyFilter(),
	})
	if err != nil {
		return storageError(target, a.AddOperation(), err)
	}
	member.values[a.ForeignKey] = r.Key()
	return nil
}

// RemoveMember unlinks member from a to-many association
// (remove_<member>), through the Remove override when it has one. For a
// foreign-key association the member's reference is set to NULL.
func (r *Record) RemoveMember(ctx context.Context, name string, member *Record) error {
	a, target, err := r.memberOp(name, member)
	if err != nil {
		return err
	}
	defer delete(r.many, name)
	if a.Remove != nil {
		return a.Remove(ctx, r, member)
	}

	if j := a.Through; j != nil {
		_, err := r.models.store.Exec(ctx, queryir.Delete{From: j.Table, Filter: queryir.Conj(
			queryir.Equals{Field: j.OwnerKey, Value: r.Key()},
			queryir.Equals{Field: j.MemberKey, Value: member.Key()},
		)})
		if err != nil {
			return storageError(r.typ, a.RemoveOperation(), err)
		}
		return nil
	}

	_, err = r.models.store.Exec(ctx, queryir.Update{
		Table: target.Table,
		Set:   ir.IRObject{a.ForeignKey: ir.IRNull{}},
		Filter: queryir.Conj(
			member.keyFilter(),
			queryir.Equals{Field: a.ForeignKey, Value: r.Key()},
		),
	})
	if err != nil {
		return storageError(target, a.RemoveOperation(), err)
	}
	member.values[a.ForeignKey] = ir.IRNull{}
	return nil
}

// RemoveAll unlinks every member of a to-many association
// (remove_all_<relation>). With a Remove override each member goes
// through it; otherwise one statement clears the links.
func (r *Record) RemoveAll(ctx context.Context, name string) error {
	a, target, err := r.association(name, schema.ToMany)
	if err != nil {
		return err
	}
	if r.IsNew() {
		return fmt.Errorf("%s.%s: %w", r.typ.Name, name, ErrNotPersisted)
	}
	defer delete(r.many, name)

	if a.Remove != nil {
		ds, err := r.AssociationDataset(name)
		if err != nil {
			return err
		}
		members, err := ds.All(ctx)
		if err != nil {
			return err
		}
		for _, m := range members {
			if err := a.Remove(ctx, r, m); err != nil {
				return err
			}
		}
		return nil
	}

	if j := a.Through; j != nil {
		_, err := r.models.store.Exec(ctx, queryir.Delete{
			From:   j.Table,
			Filter: queryir.Equals{Field: j.OwnerKey, Value: r.Key()},
		})
		if err != nil {
			return storageError(r.typ, a.RemoveAllOperation(), err)
		}
		return nil
	}

	_, err = r.models.store.Exec(ctx, queryir.Update{
		Table:  target.Table,
		Set:    ir.IRObject{a.ForeignKey: ir.IRNull{}},
		Filter: queryir.Equals{Field: a.ForeignKey, Value: r.Key()},
	})
	if err != nil {
		return storageError(target, a.RemoveAllOperation(), err)
	}
	return nil
}

func (r *Record) memberOp(name string, member *Record) (*schema.Association, *schema.Type, error) {
	a, target, err := r.association(name, schema.ToMany)
	if err != nil {
		return nil, nil, err
	}
	if member == nil {
		return nil, nil, fmt.Errorf("%s.%s: no member given", r.typ.Name, name)
	}
	if r.IsNew() || member.IsNew() {
		return nil, nil, fmt.Errorf("%s.%s: %w", r.typ.Name, name, ErrNotPersisted)
	}
	if member.typ != target {
		return nil, nil, fmt.Errorf("%s.%s: want %s member, got %s", r.typ.Name, name, target.Name, member.typ.Name)
	}
	return a, target, nil
}

// Invoke runs a generated member operation by name: add_<member>,
// remove_<member> (both need member) or remove_all_<relation>.
func (r *Record) Invoke(ctx context.Context, op string, member *Record) error {
	for i := range r.typ.Associations {
		a := &r.typ.Associations[i]
		if a.Cardinality != schema.ToMany {
			continue
		}
		switch op {
		case a.AddOperation():
			return r.AddMember(ctx, a.Name, member)
		case a.RemoveOperation():
			return r.RemoveMember(ctx, a.Name, member)
		case a.RemoveAllOperation():
			return r.RemoveAll(ctx, a.Name)
		}
	}
	if strings.HasPrefix(op, "add_") || strings.HasPrefix(op, "remove_") {
		return fmt.Errorf("%s has no operation %s: %w", r.typ.Name, op, ErrUnknownAssociation)
	}
	return fmt.Errorf("%s: unknown operation %q", r.typ.Name, op)
}
