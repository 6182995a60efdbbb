package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/linkage/internal/apierr"
	"github.com/roach88/linkage/internal/compiler"
	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/model"
	"github.com/roach88/linkage/internal/pagination"
	"github.com/roach88/linkage/internal/queryir"
	"github.com/roach88/linkage/internal/reconcile"
	"github.com/roach88/linkage/internal/resource"
	"github.com/roach88/linkage/internal/schema"
	"github.com/roach88/linkage/internal/store"
	"github.com/roach88/linkage/internal/testutil"
)

// ErrNotSideloadable is returned when a step sideloads a relationship
// operation its enclosing action does not allow.
var ErrNotSideloadable = errors.New("relationship cannot be sideloaded")

// Harness is the scenario execution engine.
// It runs every step against real controllers over a fresh database.
type Harness struct {
	models      *model.Models
	engine      *reconcile.Engine
	paginator   *pagination.Paginator
	logger      *slog.Logger
	controllers map[string]*resource.Controller
}

// Option configures Run.
type Option func(*options)

type options struct {
	driver store.Driver
	logger *slog.Logger
}

// WithDriver selects the SQLite driver of the scenario database.
func WithDriver(d store.Driver) Option {
	return func(o *options) {
		o.driver = d
	}
}

// WithLogger sets the logger (default: discard).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh database under a temporary directory.
// Reconciliations carry a fixed correlation id so traces and logs are
// reproducible.
//
// Execution flow:
// 1. Load the CUE schema and migrate a fresh database
// 2. Insert seed rows
// 3. Execute steps, checking each against its expect clause
// 4. Evaluate assertions
//
// A step failing with an apierr is recorded in the trace; any other
// failure aborts the run.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{
		driver: store.DriverCGO,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}

	loaded, errs := compiler.LoadDir(scenario.Schema, compiler.LoadModeCollectAll)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load schema %s: %w", scenario.Schema, errors.Join(errs...))
	}

	dir, err := os.MkdirTemp("", "linkage-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"), store.WithDriver(o.driver))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx, loaded.Registry); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	models := model.New(st, loaded.Registry)
	h := &Harness{
		models:      models,
		engine:      reconcile.New(models, reconcile.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.Name))),
		paginator:   newPaginator(scenario.Pagination),
		logger:      o.logger,
		controllers: make(map[string]*resource.Controller),
	}

	if err := h.seed(ctx, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s %s): %w", i, step.Op, step.Type, err)
		}
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newPaginator(p *PaginationDefaults) *pagination.Paginator {
	if p == nil {
		return pagination.New(pagination.Options{}, 0)
	}
	return pagination.New(pagination.Options{Number: p.Number, Size: p.Size}, p.MaxSize)
}

// seed inserts raw rows, in order.
func (h *Harness) seed(ctx context.Context, tables []SeedTable) error {
	for _, t := range tables {
		for i, row := range t.Rows {
			values, err := toIRObject(row)
			if err != nil {
				return fmt.Errorf("%s[%d]: %w", t.Table, i, err)
			}
			if _, err := h.models.Store().Insert(ctx, queryir.Insert{Into: t.Table, Values: values}); err != nil {
				return fmt.Errorf("%s[%d]: %w", t.Table, i, err)
			}
		}
		h.logger.Debug("seeded table", "table", t.Table, "rows", len(t.Rows))
	}
	return nil
}

func (h *Harness) controller(typeName string) (*resource.Controller, error) {
	if c, ok := h.controllers[typeName]; ok {
		return c, nil
	}
	t, err := h.models.Registry().Lookup(typeName)
	if err != nil {
		return nil, err
	}
	c := resource.New(t, h.models, resource.WithEngine(h.engine))
	h.controllers[typeName] = c
	return c, nil
}

// executeStep runs one step, records it in the trace and checks it
// against its expect clause.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	out, err := h.run(ctx, step)

	outcome := OutcomeOK
	if err != nil {
		code := apierr.CodeOf(err)
		if code == "" {
			return err
		}
		outcome = string(code)
		out = nil
	}

	result.AddTrace(TraceEvent{
		Op:       step.Op,
		Type:     step.Type,
		ID:       step.ID,
		Relation: step.Relation,
		Outcome:  outcome,
		Result:   out,
	})

	want := OutcomeOK
	if step.Expect != nil && step.Expect.Error != "" {
		want = step.Expect.Error
	}
	if outcome != want {
		msg := fmt.Sprintf("steps[%d] %s %s: expected %s, got %s", index, step.Op, step.Type, want, outcome)
		if err != nil {
			msg += ": " + err.Error()
		}
		result.AddError(msg)
	} else if step.Expect != nil && step.Expect.Result != nil {
		expected, cerr := toIRObject(step.Expect.Result)
		if cerr != nil {
			return fmt.Errorf("expected result: %w", cerr)
		}
		for _, key := range expected.SortedKeys() {
			if !ir.Equal(expected[key], out[key]) {
				result.AddError(fmt.Sprintf("steps[%d] %s %s: result %q = %s, expected %s",
					index, step.Op, step.Type, key, ir.String(out[key]), ir.String(expected[key])))
			}
		}
	}

	h.logger.Info("step completed",
		"step", index,
		"op", step.Op,
		"type", step.Type,
		"id", step.ID,
		"relation", step.Relation,
		"outcome", outcome,
	)
	return nil
}

func (h *Harness) run(ctx context.Context, step Step) (ir.IRObject, error) {
	c, err := h.controller(step.Type)
	if err != nil {
		return nil, err
	}

	switch step.Op {
	case OpCreate:
		return h.create(ctx, c, step)
	case OpPage:
		return h.page(ctx, c, step)
	}

	owner, err := c.Show(ctx, step.ID)
	if err != nil {
		return nil, err
	}

	switch step.Op {
	case OpShow:
		return ir.IRObject{"attributes": owner.Values()}, nil
	case OpUpdate:
		return h.update(ctx, c, owner, step)
	case OpDestroy:
		return nil, c.Destroy(ctx, owner)
	case resource.OpPluck, resource.OpGraft, resource.OpPrune:
		return h.toOne(ctx, c, owner, step)
	default:
		return h.toMany(ctx, c, owner, step)
	}
}

func (h *Harness) create(ctx context.Context, c *resource.Controller, step Step) (ir.IRObject, error) {
	attrs, err := toIRObject(step.Attributes)
	if err != nil {
		return nil, err
	}
	var key ir.IRValue
	err = h.models.Tx(ctx, func(ctx context.Context) error {
		k, rec, err := c.Create(ctx, attrs)
		if err != nil {
			return err
		}
		if err := h.sideload(ctx, c, rec, step.Relationships, resource.ActionCreate); err != nil {
			return err
		}
		key = k
		return c.Validate(rec)
	})
	if err != nil {
		return nil, err
	}
	return ir.IRObject{"id": key}, nil
}

func (h *Harness) update(ctx context.Context, c *resource.Controller, rec *model.Record, step Step) (ir.IRObject, error) {
	attrs, err := toIRObject(step.Attributes)
	if err != nil {
		return nil, err
	}
	err = h.models.Tx(ctx, func(ctx context.Context) error {
		if err := c.Update(ctx, rec, attrs); err != nil {
			return err
		}
		if err := h.sideload(ctx, c, rec, step.Relationships, resource.ActionUpdate); err != nil {
			return err
		}
		return c.Validate(rec)
	})
	if err != nil {
		return nil, err
	}
	return ir.IRObject{"attributes": rec.Values()}, nil
}

// sideload applies the relationships of a resource write, in name order.
// A to-one value grafts (null prunes); a to-many list merges on create
// and replaces on update.
func (h *Harness) sideload(ctx context.Context, c *resource.Controller, rec *model.Record, rels map[string]yaml.Node, action resource.Action) error {
	names := make([]string, 0, len(rels))
	for name := range rels {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		node := rels[name]
		a, ok := c.Type().Association(name)
		if !ok {
			return fmt.Errorf("%s.%s: %w", c.Type().Name, name, model.ErrUnknownAssociation)
		}

		if a.Cardinality == schema.ToOne {
			rel, err := c.HasOne(name)
			if err != nil {
				return err
			}
			if node.Tag == "!!null" {
				if action == resource.ActionCreate {
					continue
				}
				if err := allowed(resource.OpPrune, action); err != nil {
					return err
				}
				if err := rel.Prune(ctx, rec, true); err != nil {
					return err
				}
				continue
			}
			var ref schema.Reference
			if err := node.Decode(&ref); err != nil {
				return fmt.Errorf("relationship %s: %w", name, err)
			}
			if err := allowed(resource.OpGraft, action); err != nil {
				return err
			}
			if err := rel.Graft(ctx, rec, ref, true); err != nil {
				return err
			}
			continue
		}

		rel, err := c.HasMany(name)
		if err != nil {
			return err
		}
		var refs []schema.Reference
		if err := node.Decode(&refs); err != nil {
			return fmt.Errorf("relationship %s: %w", name, err)
		}
		op := resource.OpReplace
		if action == resource.ActionCreate {
			op = resource.OpMerge
		}
		if err := allowed(op, action); err != nil {
			return err
		}
		if op == resource.OpMerge {
			_, err = rel.Merge(ctx, rec, refs)
		} else {
			_, err = rel.Replace(ctx, rec, refs)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func allowed(op string, action resource.Action) error {
	if !resource.SideloadedOn(op, action) {
		return fmt.Errorf("%w: %s on %s", ErrNotSideloadable, op, action)
	}
	return nil
}

func (h *Harness) toOne(ctx context.Context, c *resource.Controller, owner *model.Record, step Step) (ir.IRObject, error) {
	rel, err := c.HasOne(step.Relation)
	if err != nil {
		return nil, err
	}

	switch step.Op {
	case resource.OpGraft:
		err = rel.Graft(ctx, owner, *step.Ref, step.Sideloaded)
	case resource.OpPrune:
		err = rel.Prune(ctx, owner, step.Sideloaded)
	}
	if err != nil {
		return nil, err
	}

	target, err := rel.Pluck(ctx, owner)
	if err != nil {
		return nil, err
	}
	var id ir.IRValue = ir.IRNull{}
	if target != nil {
		id = target.Key()
	}
	return ir.IRObject{"id": id}, nil
}

func (h *Harness) toMany(ctx context.Context, c *resource.Controller, owner *model.Record, step Step) (ir.IRObject, error) {
	var opts []resource.RelationOption
	if step.KeepAdded != nil {
		keep, err := columnsEqual(step.KeepAdded)
		if err != nil {
			return nil, err
		}
		opts = append(opts, resource.KeepAdded(keep))
	}
	if step.KeepRemoved != nil {
		keep, err := columnsEqual(step.KeepRemoved)
		if err != nil {
			return nil, err
		}
		opts = append(opts, resource.KeepRemoved(keep))
	}
	rel, err := c.HasMany(step.Relation, opts...)
	if err != nil {
		return nil, err
	}

	var res *reconcile.Result
	switch step.Op {
	case resource.OpFetch:
		return h.fetch(ctx, rel, owner)
	case resource.OpClear:
		if err := rel.Clear(ctx, owner); err != nil {
			return nil, err
		}
		return h.fetch(ctx, rel, owner)
	case resource.OpReplace:
		res, err = rel.Replace(ctx, owner, step.Refs)
	case resource.OpMerge:
		res, err = rel.Merge(ctx, owner, step.Refs)
	case resource.OpSubtract:
		res, err = rel.Subtract(ctx, owner, step.Refs)
	}
	if err != nil {
		return nil, err
	}
	return ir.IRObject{
		"added":   ir.IRArray(res.Added),
		"removed": ir.IRArray(res.Removed),
		"skipped": ir.IRArray(res.Skipped),
	}, nil
}

func (h *Harness) fetch(ctx context.Context, rel *resource.ToMany, owner *model.Record) (ir.IRObject, error) {
	ds, err := rel.Fetch(owner)
	if err != nil {
		return nil, err
	}
	keys, err := ds.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{"ids": ir.IRArray(keys)}, nil
}

func (h *Harness) page(ctx context.Context, c *resource.Controller, step Step) (ir.IRObject, error) {
	filter, err := toIRObject(step.Filter)
	if err != nil {
		return nil, err
	}
	ds, err := resource.Filter(c.Index(), filter)
	if err != nil {
		return nil, err
	}
	if ds, err = resource.Sort(ds, resource.ParseSort(step.Sort)); err != nil {
		return nil, err
	}

	page, links, err := h.paginator.PageOf(ctx, ds, pagination.Options{Number: step.Number, Size: step.Size})
	if err != nil {
		return nil, err
	}

	ids := make(ir.IRArray, len(page.Records))
	for i, rec := range page.Records {
		ids[i] = rec.Key()
	}
	linkObj := ir.IRObject{}
	for name, l := range links {
		linkObj[name] = ir.IRObject{
			"number":       ir.IRInt(l.Number),
			"record_count": ir.IRInt(l.RecordCount),
			"size":         ir.IRInt(l.Size),
		}
	}
	return ir.IRObject{
		"ids":        ids,
		"links":      linkObj,
		"page_count": ir.IRInt(page.PageCount),
	}, nil
}

// columnsEqual builds a predicate admitting candidates whose columns
// equal every value of want.
func columnsEqual(want map[string]any) (reconcile.Predicate, error) {
	values, err := toIRObject(want)
	if err != nil {
		return nil, err
	}
	return func(_ context.Context, candidate *model.Record) bool {
		for col, v := range values {
			if !ir.Equal(candidate.Get(col), v) {
				return false
			}
		}
		return true
	}, nil
}

// toIRObject converts YAML-parsed values to an IRObject.
func toIRObject(m map[string]any) (ir.IRObject, error) {
	if m == nil {
		return ir.IRObject{}, nil
	}
	v, err := ir.FromAny(m)
	if err != nil {
		return nil, err
	}
	return v.(ir.IRObject), nil
}
