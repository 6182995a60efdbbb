// Package resource builds the CRUD and relationship operations a
// resource-protocol layer dispatches to.
//
// A Controller is configured once per resource type and is safe for
// concurrent use; every operation receives the records it acts on
// explicitly. Controllers never validate implicitly: Create, Update and
// Destroy write without domain validation and callers run Validate when
// they want enforcement, typically once after a create or update and its
// sideloaded relationship calls.
//
// None of the resource operations open a transaction of their own. A
// caller that wants a sideloaded create to be atomic wraps the whole
// composite in model.Models.Tx; to-many reconciliations join it.
package resource

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/linkage/internal/apierr"
	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/model"
	"github.com/roach88/linkage/internal/reconcile"
	"github.com/roach88/linkage/internal/schema"
)

// Controller holds the resource operations of one type.
type Controller struct {
	typ    *schema.Type
	models *model.Models
	engine *reconcile.Engine

	// settable is the allow-list of assignable columns; nil allows every
	// settable column of the type.
	settable []string
	coerce   schema.Coercion
}

// Option configures a Controller.
type Option func(*Controller)

// WithSettableFields restricts Create and Update to the named columns.
func WithSettableFields(fields ...string) Option {
	return func(c *Controller) {
		c.settable = slices.Clone(fields)
	}
}

// WithCoercion sets the coercion of the type's own identifiers
// (default: the type's key coercion).
func WithCoercion(coerce schema.Coercion) Option {
	return func(c *Controller) {
		c.coerce = coerce
	}
}

// WithEngine sets the reconciliation engine used by to-many relations.
func WithEngine(e *reconcile.Engine) Option {
	return func(c *Controller) {
		c.engine = e
	}
}

// New creates the controller of type t.
func New(t *schema.Type, models *model.Models, opts ...Option) *Controller {
	c := &Controller{typ: t, models: models}
	for _, opt := range opts {
		opt(c)
	}
	if c.engine == nil {
		c.engine = reconcile.New(models)
	}
	if c.coerce == nil {
		c.coerce = t.Coerce
	}
	return c
}

// Type returns the controller's resource type.
func (c *Controller) Type() *schema.Type {
	return c.typ
}

// Models returns the model layer the controller writes through.
func (c *Controller) Models() *model.Models {
	return c.models
}

// Show returns the record with identifier id. An id that cannot be
// coerced, or names no row, fails with apierr NotFound.
func (c *Controller) Show(ctx context.Context, id string) (*model.Record, error) {
	key, err := c.coerce(id)
	if err != nil {
		nf := apierr.NotFoundf(c.typ.Name, "%v", err)
		nf.Err = err
		return nil, nf
	}
	return c.Index().MustWithPK(ctx, key)
}

// ShowMany returns the records named by ids in primary-key order. Ids
// that match no row, including ids that cannot be coerced, are dropped;
// callers needing every id to resolve compare lengths.
func (c *Controller) ShowMany(ctx context.Context, ids []string) ([]*model.Record, error) {
	keys := make([]ir.IRValue, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		key, err := c.coerce(id)
		if err != nil {
			continue
		}
		if ks := ir.KeyString(key); !seen[ks] {
			seen[ks] = true
			keys = append(keys, key)
		}
	}
	return c.Index().Where(c.typ.PrimaryKey, keys...).All(ctx)
}

// Index returns the unfiltered dataset of the type. Callers narrow it
// with Filter and Sort, page it, then Finalize it.
func (c *Controller) Index() *model.Dataset {
	return c.models.DatasetOf(c.typ)
}

// Create inserts a record built from attrs and returns its key. With an
// allow-list, attributes outside it are ignored; without one an unknown
// attribute fails with model.ErrUnknownField. A constraint violation
// fails with apierr Conflict and persists nothing.
func (c *Controller) Create(ctx context.Context, attrs ir.IRObject) (ir.IRValue, *model.Record, error) {
	rec := c.models.NewRecord(c.typ)
	if c.settable != nil {
		rec.SetFields(attrs, c.settable)
	} else if err := rec.Set(attrs); err != nil {
		return nil, nil, err
	}
	if err := rec.Save(ctx, model.SaveOptions{}); err != nil {
		return nil, nil, err
	}
	return rec.Key(), rec, nil
}

// Update assigns attrs to rec and writes the changed columns. Unknown
// attributes, and attributes outside the allow-list, are ignored.
func (c *Controller) Update(ctx context.Context, rec *model.Record, attrs ir.IRObject) error {
	if err := c.owns(rec); err != nil {
		return err
	}
	allow := c.settable
	if allow == nil {
		allow = c.typ.Columns()
	}
	rec.SetFields(attrs, allow)
	return rec.SaveChanges(ctx, model.SaveOptions{})
}

// Destroy deletes rec.
func (c *Controller) Destroy(ctx context.Context, rec *model.Record) error {
	if err := c.owns(rec); err != nil {
		return err
	}
	return rec.Destroy(ctx)
}

// Validate runs domain validation on rec. It returns nil when rec is
// valid and an apierr ValidationFailed carrying the translated entries
// otherwise.
func (c *Controller) Validate(rec *model.Record) error {
	if err := c.owns(rec); err != nil {
		return err
	}
	return rec.Check()
}

func (c *Controller) owns(rec *model.Record) error {
	if rec == nil {
		return fmt.Errorf("%s: no record given", c.typ.Name)
	}
	if rec.Type() != c.typ {
		return fmt.Errorf("%s: got %s record", c.typ.Name, rec.Type().Name)
	}
	return nil
}
