package resource

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/linkage/internal/ir"
	"github.com/roach88/linkage/internal/model"
	"github.com/roach88/linkage/internal/queryir"
)

// Filter narrows ds by equality on each field of fields. An IRArray
// value matches any of its elements.
func Filter(ds *model.Dataset, fields ir.IRObject) (*model.Dataset, error) {
	for _, col := range fields.SortedKeys() {
		if !ds.Type().HasColumn(col) {
			return nil, fmt.Errorf("filter %s.%s: %w", ds.Type().Name, col, model.ErrUnknownField)
		}
		if arr, ok := fields[col].(ir.IRArray); ok {
			ds = ds.Where(col, arr...)
			continue
		}
		ds = ds.Where(col, fields[col])
	}
	return ds, nil
}

// Sort orders ds by terms, in order.
func Sort(ds *model.Dataset, terms []queryir.OrderTerm) (*model.Dataset, error) {
	for _, term := range terms {
		if !ds.Type().HasColumn(term.Field) {
			return nil, fmt.Errorf("sort %s.%s: %w", ds.Type().Name, term.Field, model.ErrUnknownField)
		}
	}
	return ds.Order(terms...), nil
}

// ParseSort parses a comma-separated field list; a leading '-' sorts
// that field descending.
func ParseSort(s string) []queryir.OrderTerm {
	var terms []queryir.OrderTerm
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if name, ok := strings.CutPrefix(f, "-"); ok {
			terms = append(terms, queryir.OrderTerm{Field: name, Desc: true})
			continue
		}
		terms = append(terms, queryir.OrderTerm{Field: f})
	}
	return terms
}

// Finalize materializes ds.
func Finalize(ctx context.Context, ds *model.Dataset) ([]*model.Record, error) {
	return ds.All(ctx)
}
