// Package pagination slices ordered collections into pages and derives
// the link metadata (first, self, last, next, prev) a protocol layer needs
// to build pagination URLs.
package pagination

import (
	"context"
	"fmt"

	"github.com/roach88/linkage/internal/model"
)

// Link names.
const (
	First = "first"
	Self  = "self"
	Last  = "last"
	Next  = "next"
	Prev  = "prev"
)

// Options is a page request. Zero Number and Size take the paginator's
// defaults; a nil RecordCount is counted with one query.
type Options struct {
	Number      int64  `json:"number,omitempty" yaml:"number,omitempty"`
	Size        int64  `json:"size,omitempty" yaml:"size,omitempty"`
	RecordCount *int64 `json:"record_count,omitempty" yaml:"record_count,omitempty"`
}

// Link is the data needed to build one pagination URL.
type Link struct {
	Size        int64 `json:"size"`
	RecordCount int64 `json:"record_count"`
	Number      int64 `json:"number"`
}

// Links maps link names to links. Next and Prev are present only when
// that page exists.
type Links map[string]Link

// Pageable is a collection that supports counted, sliced queries.
// *model.Dataset implements it.
type Pageable interface {
	Paginate(ctx context.Context, number, size int64, recordCount *int64) (*model.Page, error)
}

var _ Pageable = (*model.Dataset)(nil)

// Paginator pages collections with process-wide defaults. It is
// read-only after construction and safe for concurrent use.
type Paginator struct {
	defaults Options
	maxSize  int64
}

// New creates a paginator. Zero fields of defaults fall back to number 1
// and size 10. A positive maxSize caps every requested size.
func New(defaults Options, maxSize int64) *Paginator {
	if defaults.Number < 1 {
		defaults.Number = 1
	}
	if defaults.Size < 1 {
		defaults.Size = 10
	}
	return &Paginator{defaults: defaults, maxSize: maxSize}
}

// Defaults returns the options requests are merged over.
func (p *Paginator) Defaults() Options {
	return p.defaults
}

// Page pages collection. A collection that is not Pageable is returned
// unchanged with empty links. Otherwise the page's records are returned.
func (p *Paginator) Page(ctx context.Context, collection any, opts Options) (any, Links, error) {
	pc, ok := collection.(Pageable)
	if !ok {
		return collection, Links{}, nil
	}
	page, links, err := p.PageOf(ctx, pc, opts)
	if err != nil {
		return nil, nil, err
	}
	return page.Records, links, nil
}

// PageOf is Page for a known Pageable, returning the full page.
func (p *Paginator) PageOf(ctx context.Context, pc Pageable, opts Options) (*model.Page, Links, error) {
	o := p.merge(opts)
	page, err := pc.Paginate(ctx, o.Number, o.Size, o.RecordCount)
	if err != nil {
		return nil, nil, fmt.Errorf("page %d size %d: %w", o.Number, o.Size, err)
	}
	return page, LinksFor(page), nil
}

func (p *Paginator) merge(opts Options) Options {
	o := p.defaults
	if opts.Number > 0 {
		o.Number = opts.Number
	}
	if opts.Size > 0 {
		o.Size = opts.Size
	}
	if p.maxSize > 0 && o.Size > p.maxSize {
		o.Size = p.maxSize
	}
	if opts.RecordCount != nil {
		o.RecordCount = opts.RecordCount
	}
	return o
}

// LinksFor derives the link metadata of page.
func LinksFor(page *model.Page) Links {
	at := func(number int64) Link {
		return Link{Size: page.PageSize, RecordCount: page.PaginationRecordCount, Number: number}
	}
	links := Links{
		First: at(1),
		Self:  at(page.CurrentPage),
		Last:  at(page.PageCount),
	}
	if page.NextPage != nil {
		links[Next] = at(*page.NextPage)
	}
	if page.PrevPage != nil {
		links[Prev] = at(*page.PrevPage)
	}
	return links
}
