package engine

import (
	"github.com/roach88/repokit/internal/paging"
	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/projection"
)

// Result is the envelope of one method invocation. Which fields are set
// depends on Kind:
//
//	list       Items
//	page       Items, Request, Total
//	slice      Items, Request, HasNext
//	single     Items (exactly one)
//	optional   Items (zero or one)
//	count      Count
//	exists     Exists
//	modifying  Affected
type Result struct {
	Kind     plan.ResultKind
	Items    []any
	Request  paging.Request
	Total    int64
	HasNext  bool
	Count    int64
	Exists   bool
	Affected int64
}

// Page returns the page envelope of a page result.
func (r *Result) Page() paging.Page[any] {
	return paging.NewPage(r.Items, r.Request, r.Total)
}

// Slice returns the slice envelope of a slice result.
func (r *Result) Slice() paging.Slice[any] {
	return paging.NewSlice(r.Items, r.Request, r.HasNext)
}

// Value returns the element of a single or optional result.
func (r *Result) Value() (any, bool) {
	if len(r.Items) == 0 {
		return nil, false
	}
	return r.Items[0], true
}

// Summary renders the result as plain values for canonical JSON and CLI
// output. Only the fields meaningful for Kind are included.
func (r *Result) Summary() map[string]any {
	out := map[string]any{"kind": string(r.Kind)}
	switch r.Kind {
	case plan.ResultCount:
		out["count"] = r.Count
		return out
	case plan.ResultExists:
		out["exists"] = r.Exists
		return out
	case plan.ResultModifying:
		out["affected"] = r.Affected
		return out
	}

	items := make([]any, len(r.Items))
	for i, item := range r.Items {
		items[i] = projection.Plain(item)
	}
	out["items"] = items
	switch r.Kind {
	case plan.ResultPage:
		meta := r.Page().Meta()
		out["page"] = int64(meta.Page)
		out["size"] = int64(meta.Size)
		out["total"] = meta.TotalElements
		out["total_pages"] = int64(meta.TotalPages)
		out["has_next"] = meta.HasNext
	case plan.ResultSlice:
		meta := r.Slice().Meta()
		out["page"] = int64(meta.Page)
		out["size"] = int64(meta.Size)
		out["has_next"] = meta.HasNext
	}
	return out
}
