package model

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/linkage/internal/apierr"
	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/queryir"
	"github.com/roach88/linkage/internal/schema"
)

// Dataset is a lazily evaluated, filtered and ordered view of the rows of
// one resource type. Datasets are immutable: Where and Order return new
// datasets and leave the receiver unchanged.
type Dataset struct {
	models *Models
	typ    *schema.Type
	filter queryir.Predicate
	order  []queryir.OrderTerm
}

// Type returns the dataset's resource type.
func (d *Dataset) Type() *schema.Type {
	return d.typ
}

// Where narrows the dataset to rows whose column equals one of values.
// A single value is an equality test (IS NULL for IRNull), several form
// an IN list, and none matches nothing.
func (d *Dataset) Where(column string, values ...ir.IRValue) *Dataset {
	if len(values) == 1 {
		if ir.IsNull(values[0]) {
			return d.filtered(queryir.IsNull{Field: column})
		}
		return d.filtered(queryir.Equals{Field: column, Value: values[0]})
	}
	return d.filtered(queryir.In{Field: column, Values: values})
}

// Order appends ordering terms. The primary key is always the final
// tiebreak.
func (d *Dataset) Order(terms ...queryir.OrderTerm) *Dataset {
	next := *d
	next.order = append(slices.Clone(d.order), terms...)
	return &next
}

func (d *Dataset) filtered(p queryir.Predicate) *Dataset {
	next := *d
	next.filter = queryir.Conj(d.filter, p)
	return &next
}

func (d *Dataset) query() queryir.Select {
	return queryir.Select{
		From:   d.typ.Table,
		Key:    d.typ.PrimaryKey,
		Filter: d.filter,
		Order:  d.order,
	}
}

// All materializes every row of the dataset.
func (d *Dataset) All(ctx context.Context) ([]*Record, error) {
	return d.fetch(ctx, d.query())
}

func (d *Dataset) fetch(ctx context.Context, q queryir.Select) ([]*Record, error) {
	rows, err := d.models.store.Select(ctx, q)
	if err != nil {
		return nil, storageError(d.typ, "select", err)
	}
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec, err := d.models.load(d.typ, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// WithPK returns the row of the dataset with primary key key, or nil when
// there is none.
func (d *Dataset) WithPK(ctx context.Context, key ir.IRValue) (*Record, error) {
	if ir.IsNull(key) {
		return nil, nil
	}
	q := d.Where(d.typ.PrimaryKey, key).query()
	q.Limit = 1
	recs, err := d.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// MustWithPK is WithPK failing with apierr NotFound when the key does not
// resolve.
func (d *Dataset) MustWithPK(ctx context.Context, key ir.IRValue) (*Record, error) {
	rec, err := d.WithPK(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apierr.NotFound(d.typ.Name, key)
	}
	return rec, nil
}

// Keys returns the primary keys of the dataset in one query, without
// materializing records.
func (d *Dataset) Keys(ctx context.Context) ([]ir.IRValue, error) {
	q := d.query()
	q.Columns = []string{d.typ.PrimaryKey}
	keys, err := d.models.store.Column(ctx, q)
	if err != nil {
		return nil, storageError(d.typ, "select keys", err)
	}
	return keys, nil
}

// Count returns the number of rows in the dataset.
func (d *Dataset) Count(ctx context.Context) (int64, error) {
	n, err := d.models.store.Count(ctx, queryir.Count{From: d.typ.Table, Filter: d.filter})
	if err != nil {
		return 0, storageError(d.typ, "count", err)
	}
	return n, nil
}

// Page is one slice of a paginated dataset.
type Page struct {
	Records               []*Record
	PageSize              int64
	PaginationRecordCount int64
	CurrentPage           int64
	PageCount             int64
	NextPage              *int64 // nil on the last page
	PrevPage              *int64 // nil on the first page
}

// Paginate returns page number of the dataset, size rows per page.
//
// The record count comes from recordCount when given, otherwise from one
// COUNT query. PageCount is at least 1, and number is clamped into
// [1, PageCount].
func (d *Dataset) Paginate(ctx context.Context, number, size int64, recordCount *int64) (*Page, error) {
	if size < 1 {
		return nil, fmt.Errorf("paginate %s: page size %d is not positive", d.typ.Name, size)
	}

	var count int64
	if recordCount != nil {
		if *recordCount < 0 {
			return nil, fmt.Errorf("paginate %s: record count %d is negative", d.typ.Name, *recordCount)
		}
		count = *recordCount
	} else {
		n, err := d.Count(ctx)
		if err != nil {
			return nil, err
		}
		count = n
	}

	pageCount := max(1, (count+size-1)/size)
	current := min(max(number, 1), pageCount)

	q := d.query()
	q.Limit = size
	q.Offset = (current - 1) * size
	recs, err := d.fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	p := &Page{
		Records:               recs,
		PageSize:              size,
		PaginationRecordCount: count,
		CurrentPage:           current,
		PageCount:             pageCount,
	}
	if current < pageCount {
		next := current + 1
		p.NextPage = &next
	}
	if current > 1 {
		prev := current - 1
		p.PrevPage = &prev
	}
	return p, nil
}
