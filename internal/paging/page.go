package paging

// Page is a page of content plus the total row count of the underlying query.
type Page[T any] struct {
	Content []T
	total   int64
	req     Request
}

// NewPage builds a page. A nil content slice is replaced by an empty one.
func NewPage[T any](content []T, req Request, total int64) Page[T] {
	if content == nil {
		content = []T{}
	}
	return Page[T]{Content: content, total: total, req: req}
}

// Request returns the request that produced the page.
func (p Page[T]) Request() Request { return p.req }

// TotalElements returns the number of rows matching the query.
func (p Page[T]) TotalElements() int64 { return p.total }

// Number returns the zero-based page index.
func (p Page[T]) Number() int { return p.req.index }

// Size returns the requested page size.
func (p Page[T]) Size() int { return p.req.size }

// NumberOfElements returns len(Content).
func (p Page[T]) NumberOfElements() int { return len(p.Content) }

// TotalPages returns ceil(total / size).
func (p Page[T]) TotalPages() int {
	if p.req.size <= 0 {
		return 0
	}
	size := int64(p.req.size)
	return int((p.total + size - 1) / size)
}

func (p Page[T]) IsFirst() bool     { return p.req.index == 0 }
func (p Page[T]) HasNext() bool     { return p.req.index+1 < p.TotalPages() }
func (p Page[T]) IsLast() bool      { return !p.HasNext() }
func (p Page[T]) HasPrevious() bool { return p.req.index > 0 }

// Meta returns the page metadata in a serializable form.
func (p Page[T]) Meta() Meta {
	return Meta{
		Page:          p.req.index,
		Size:          p.req.size,
		TotalElements: p.total,
		TotalPages:    p.TotalPages(),
		HasNext:       p.HasNext(),
	}
}

// Slice is a window of content that knows only whether more rows follow.
type Slice[T any] struct {
	Content []T
	hasNext bool
	req     Request
}

// NewSlice builds a slice. A nil content slice is replaced by an empty one.
func NewSlice[T any](content []T, req Request, hasNext bool) Slice[T] {
	if content == nil {
		content = []T{}
	}
	return Slice[T]{Content: content, hasNext: hasNext, req: req}
}

func (s Slice[T]) Request() Request  { return s.req }
func (s Slice[T]) Number() int       { return s.req.index }
func (s Slice[T]) Size() int         { return s.req.size }
func (s Slice[T]) HasNext() bool     { return s.hasNext }
func (s Slice[T]) IsFirst() bool     { return s.req.index == 0 }
func (s Slice[T]) IsLast() bool      { return !s.hasNext }
func (s Slice[T]) HasPrevious() bool { return s.req.index > 0 }

// Meta returns the slice metadata. TotalElements and TotalPages are -1: a
// slice never counts.
func (s Slice[T]) Meta() Meta {
	return Meta{Page: s.req.index, Size: s.req.size, TotalElements: -1, TotalPages: -1, HasNext: s.hasNext}
}

// Meta is paging metadata for output envelopes.
type Meta struct {
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalElements int64 `json:"total_elements"`
	TotalPages    int   `json:"total_pages"`
	HasNext       bool  `json:"has_next"`
}

// MapPage re-projects page content without re-running the query.
func MapPage[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, len(p.Content))
	for i, v := range p.Content {
		out[i] = fn(v)
	}
	return Page[U]{Content: out, total: p.total, req: p.req}
}

// MapSlice re-projects slice content without re-running the query.
func MapSlice[T, U any](s Slice[T], fn func(T) U) Slice[U] {
	out := make([]U, len(s.Content))
	for i, v := range s.Content {
		out[i] = fn(v)
	}
	return Slice[U]{Content: out, hasNext: s.hasNext, req: s.req}
}
