// Package paging provides paging requests, page and slice envelopes and the
// window arithmetic shared by the executor and providers.
package paging

import (
	"fmt"

	"github.com/roach88/repokit/internal/queryir"
)

// Request asks for one page of results: a zero-based index, a positive size
// and an optional sort. Requests are immutable; build them with NewRequest.
type Request struct {
	index int
	size  int
	sort  queryir.Sort
}

// NewRequest validates and builds a paging request.
func NewRequest(index, size int, sort ...queryir.Order) (Request, error) {
	if index < 0 {
		return Request{}, fmt.Errorf("page index must be >= 0, got %d", index)
	}
	if size <= 0 {
		return Request{}, fmt.Errorf("page size must be > 0, got %d", size)
	}
	return Request{index: index, size: size, sort: append(queryir.Sort(nil), sort...)}, nil
}

// MustRequest is NewRequest for constant arguments. It panics on invalid input.
func MustRequest(index, size int, sort ...queryir.Order) Request {
	r, err := NewRequest(index, size, sort...)
	if err != nil {
		panic(err)
	}
	return r
}

// Index returns the zero-based page index.
func (r Request) Index() int { return r.index }

// Size returns the page size.
func (r Request) Size() int { return r.size }

// Sort returns a copy of the request's sort.
func (r Request) Sort() queryir.Sort { return append(queryir.Sort(nil), r.sort...) }

// Offset returns the number of rows skipped before this page.
func (r Request) Offset() int { return r.index * r.size }

// Next returns the request for the following page.
func (r Request) Next() Request {
	return Request{index: r.index + 1, size: r.size, sort: r.sort}
}

// Previous returns the request for the preceding page, or the first page.
func (r Request) Previous() Request {
	if r.index == 0 {
		return r
	}
	return Request{index: r.index - 1, size: r.size, sort: r.sort}
}

// WithSort returns a copy of r with a different sort.
func (r Request) WithSort(s queryir.Sort) Request {
	return Request{index: r.index, size: r.size, sort: append(queryir.Sort(nil), s...)}
}

func (r Request) String() string {
	if r.sort.IsUnsorted() {
		return fmt.Sprintf("page %d size %d", r.index, r.size)
	}
	return fmt.Sprintf("page %d size %d sort %s", r.index, r.size, r.sort)
}

// ResolveSort applies sort precedence: an explicit sort argument wins over
// the paging request's sort, which wins over the method name's OrderBy.
func ResolveSort(explicit, fromRequest, named queryir.Sort) queryir.Sort {
	switch {
	case !explicit.IsUnsorted():
		return explicit
	case !fromRequest.IsUnsorted():
		return fromRequest
	default:
		return named
	}
}
