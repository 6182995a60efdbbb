package resource

import (
	"context"
	"fmt"

	"github.com/roach88/linkage/internal/apierr"
	"github.com/roach88/linkage/internal/model"
	"github.com/roach88/linkage/internal/reconcile"
	"github.com/roach88/linkage/internal/schema"
)

// relation is the configuration shared by both relation kinds.
type relation struct {
	c      *Controller
	assoc  *schema.Association
	target *schema.Type
	coerce schema.Coercion
	add    reconcile.Predicate
	remove reconcile.Predicate
}

// RelationOption configures a relation.
type RelationOption func(*relation)

// WithRelationCoercion sets the coercion of reference ids (default: the
// association's coercion).
func WithRelationCoercion(coerce schema.Coercion) RelationOption {
	return func(r *relation) {
		r.coerce = coerce
	}
}

// KeepAdded admits a candidate to a to-many relation only when keep
// returns true. Rejected candidates are skipped, not errors.
func KeepAdded(keep reconcile.Predicate) RelationOption {
	return func(r *relation) {
		r.add = keep
	}
}

// KeepRemoved removes a member from a to-many relation only when keep
// returns true.
func KeepRemoved(keep reconcile.Predicate) RelationOption {
	return func(r *relation) {
		r.remove = keep
	}
}

func (c *Controller) relation(name string, want schema.Cardinality, opts []RelationOption) (*relation, error) {
	a, ok := c.typ.Association(name)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", c.typ.Name, name, model.ErrUnknownAssociation)
	}
	if a.Cardinality != want {
		return nil, fmt.Errorf("%s.%s is %s: %w", c.typ.Name, name, a.Cardinality, model.ErrCardinality)
	}
	target, err := c.models.Registry().Target(a)
	if err != nil {
		return nil, err
	}
	r := &relation{c: c, assoc: a, target: target}
	for _, opt := range opts {
		opt(r)
	}
	if r.coerce == nil {
		r.coerce = c.models.Registry().Coercion(a)
	}
	return r, nil
}

// ToOne holds the operations of a to-one relation.
type ToOne struct {
	*relation
}

// HasOne returns the operations of the to-one association name.
func (c *Controller) HasOne(name string, opts ...RelationOption) (*ToOne, error) {
	r, err := c.relation(name, schema.ToOne, opts)
	if err != nil {
		return nil, err
	}
	return &ToOne{r}, nil
}

// Pluck returns the associated record, or nil when there is none.
func (r *ToOne) Pluck(ctx context.Context, owner *model.Record) (*model.Record, error) {
	if err := r.c.owns(owner); err != nil {
		return nil, err
	}
	return owner.Associated(ctx, r.assoc.Name)
}

// Prune clears the association and writes the owner. Validation runs
// unless the prune is sideloaded.
func (r *ToOne) Prune(ctx context.Context, owner *model.Record, sideloaded bool) error {
	if err := r.c.owns(owner); err != nil {
		return err
	}
	if err := owner.SetAssociated(r.assoc.Name, nil); err != nil {
		return err
	}
	return owner.SaveChanges(ctx, model.SaveOptions{Validate: !sideloaded})
}

// Graft associates the record named by ref and writes the owner.
// Validation runs unless the graft is sideloaded. A reference that
// cannot be coerced or resolved fails with apierr NotFound before the
// owner is touched.
func (r *ToOne) Graft(ctx context.Context, owner *model.Record, ref schema.Reference, sideloaded bool) error {
	if err := r.c.owns(owner); err != nil {
		return err
	}
	if ref.Type != "" && ref.Type != r.target.Name {
		return apierr.Conflict(r.target.Name, fmt.Errorf("%s.%s: reference type %q", r.c.typ.Name, r.assoc.Name, ref.Type))
	}
	key, err := r.coerce(ref.ID)
	if err != nil {
		nf := apierr.NotFoundf(r.target.Name, "%v", err)
		nf.Err = err
		return nf
	}
	target, err := r.c.models.DatasetOf(r.target).MustWithPK(ctx, key)
	if err != nil {
		return err
	}
	if err := owner.SetAssociated(r.assoc.Name, target); err != nil {
		return err
	}
	return owner.SaveChanges(ctx, model.SaveOptions{Validate: !sideloaded})
}

// ToMany holds the operations of a to-many relation.
type ToMany struct {
	*relation
}

// HasMany returns the operations of the to-many association name.
func (c *Controller) HasMany(name string, opts ...RelationOption) (*ToMany, error) {
	r, err := c.relation(name, schema.ToMany, opts)
	if err != nil {
		return nil, err
	}
	return &ToMany{r}, nil
}

// Fetch returns the dataset of current members.
func (r *ToMany) Fetch(owner *model.Record) (*model.Dataset, error) {
	if err := r.c.owns(owner); err != nil {
		return nil, err
	}
	return owner.AssociationDataset(r.assoc.Name)
}

// Clear removes every member.
func (r *ToMany) Clear(ctx context.Context, owner *model.Record) error {
	if err := r.c.owns(owner); err != nil {
		return err
	}
	return r.c.models.Tx(ctx, func(ctx context.Context) error {
		return owner.RemoveAll(ctx, r.assoc.Name)
	})
}

// Replace makes the members exactly the records named by refs.
func (r *ToMany) Replace(ctx context.Context, owner *model.Record, refs []schema.Reference) (*reconcile.Result, error) {
	return r.reconcile(ctx, owner, refs, reconcile.Mode{
		Add:    reconcile.When(r.add),
		Remove: reconcile.When(r.remove),
	})
}

// Merge adds the records named by refs; no member is removed.
func (r *ToMany) Merge(ctx context.Context, owner *model.Record, refs []schema.Reference) (*reconcile.Result, error) {
	return r.reconcile(ctx, owner, refs, reconcile.Mode{Add: reconcile.When(r.add)})
}

// Subtract removes the members named by refs; members not named are
// kept and nothing is added.
func (r *ToMany) Subtract(ctx context.Context, owner *model.Record, refs []schema.Reference) (*reconcile.Result, error) {
	return r.reconcile(ctx, owner, refs, reconcile.Mode{Remove: reconcile.When(r.remove)})
}

func (r *ToMany) reconcile(ctx context.Context, owner *model.Record, refs []schema.Reference, mode reconcile.Mode) (*reconcile.Result, error) {
	if err := r.c.owns(owner); err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if ref.Type != "" && ref.Type != r.target.Name {
			return nil, apierr.Conflict(r.target.Name, fmt.Errorf("%s.%s: reference type %q", r.c.typ.Name, r.assoc.Name, ref.Type))
		}
	}
	return r.c.engine.Reconcile(ctx, owner, r.assoc.Name, refs, r.coerce, mode)
}
