package plan

import (
	"github.com/roach88/repokit/internal/queryir"
)

// ResultKind is the envelope a method returns.
type ResultKind string

const (
	ResultList      ResultKind = "list"
	ResultPage      ResultKind = "page"
	ResultSlice     ResultKind = "slice"
	ResultSingle    ResultKind = "single"
	ResultOptional  ResultKind = "optional"
	ResultCount     ResultKind = "count"
	ResultExists    ResultKind = "exists"
	ResultModifying ResultKind = "modifying"
)

// Valid reports whether k is a known result kind.
func (k ResultKind) Valid() bool {
	switch k {
	case ResultList, ResultPage, ResultSlice, ResultSingle, ResultOptional,
		ResultCount, ResultExists, ResultModifying:
		return true
	}
	return false
}

// Paged reports whether the kind requires a paging parameter.
func (k ResultKind) Paged() bool {
	return k == ResultPage || k == ResultSlice
}

// Invalidation selects which identity-cache entries a bulk mutation evicts.
type Invalidation string

const (
	InvalidateNone Invalidation = "none"
	InvalidateType Invalidation = "type"
	InvalidateAll  Invalidation = "all"
)

// Returns declares the return shape of a method.
//
// Of names the element type: the repository entity (or empty), a registered
// DTO, or a scalar kind (string, int, bool) for single-column projections.
type Returns struct {
	Kind ResultKind
	Of   string
}

// Fetch declares associations to load eagerly.
// Graph names an entity graph ("Member.all"); Paths lists dotted association paths.
type Fetch struct {
	Graph string
	Paths []string
}

// MethodDecl is the declaration of one repository method.
type MethodDecl struct {
	Name    string
	Params  []queryir.Param
	Returns Returns

	// Query replaces name derivation with provider-native text using :name placeholders.
	Query string
	// CountQuery replaces the generated count query of a page result.
	CountQuery string

	// Modifying marks Query as a bulk UPDATE/DELETE/INSERT.
	Modifying  bool
	Invalidate Invalidation

	Fetch Fetch
	Lock  string
	// Hints are passed to the provider verbatim. Recognised: readOnly, timeout (ms).
	Hints            map[string]string
	HintsForCounting bool

	// Limit caps the result count; combined with First/Top by minimum.
	Limit int
	// InMemoryPaging accepts windowing after hydration when a to-many fetch
	// makes provider-side limits unsafe.
	InMemoryPaging bool
}
