package plan

import (
	"github.com/roach88/repokit/internal/derive"
	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/schema"
)

// Spec is a bound method plan.
//
// This is a sealed interface - only QuerySpec and BulkMutationSpec
// implement it. Specs are immutable after Bind and shared read-only by
// every invocation.
type Spec interface {
	MethodName() string
	specNode() // Marker method - seals interface to this package
}

// FetchSource records where a spec's fetch paths came from.
type FetchSource string

const (
	FetchNone     FetchSource = "none"
	FetchOverride FetchSource = "override"
	FetchGraph    FetchSource = "graph"
)

// ProjectionKind selects how result tuples are materialized.
type ProjectionKind string

const (
	ProjectEntity ProjectionKind = "entity"
	ProjectDTO    ProjectionKind = "dto"
	ProjectScalar ProjectionKind = "scalar"
	// ProjectNone is used by count and exists results.
	ProjectNone ProjectionKind = "none"
)

// Projection describes the result element type of a query.
type Projection struct {
	Kind   ProjectionKind
	Entity string
	DTO    *DTO
	// Columns are the property paths selected for a derived DTO projection,
	// one per DTO parameter.
	Columns []schema.Path
	// Scalar is the kind of a single-column projection.
	Scalar schema.Kind
}

// NoParam marks an absent paging or sort parameter.
const NoParam = -1

// QuerySpec is the immutable plan of a read method.
type QuerySpec struct {
	Method    string
	Entity    string
	Operation derive.Operation
	Params    []queryir.Param

	// Predicate is the derived filter; nil for override queries and
	// unfiltered derived queries.
	Predicate queryir.Predicate

	OverrideText      string
	CountOverrideText string
	// Placeholders are the distinct :name placeholders of OverrideText in order.
	Placeholders      []string
	CountPlaceholders []string

	// Sort is the method-name OrderBy clause.
	Sort     queryir.Sort
	Distinct bool
	// Limit caps the result count; 0 means none.
	Limit int

	FetchPaths  []schema.Path
	FetchSource FetchSource
	// FetchToMany is set when a fetch path traverses a to-many association.
	FetchToMany bool

	Lock       queryir.LockMode
	Hints      map[string]string
	CountHints map[string]string

	Projection Projection
	Result     ResultKind

	PagingParam    int
	SortParam      int
	InMemoryPaging bool
}

func (s *QuerySpec) MethodName() string { return s.Method }
func (*QuerySpec) specNode()            {}

// IsOverride reports whether the spec runs caller-supplied text.
func (s *QuerySpec) IsOverride() bool { return s.OverrideText != "" }

// BulkMutationSpec is the immutable plan of a modifying method.
type BulkMutationSpec struct {
	Method string
	Params []queryir.Param

	// StatementText is the override UPDATE/DELETE/INSERT text; empty for
	// derived deletes, which use Predicate.
	StatementText string
	Placeholders  []string
	Predicate     queryir.Predicate

	AffectedType             string
	InvalidatesIdentityCache bool
	Invalidation             Invalidation
}

func (s *BulkMutationSpec) MethodName() string { return s.Method }
func (*BulkMutationSpec) specNode()            {}

// IsDerivedDelete reports whether the mutation was derived from a deleteBy name.
func (s *BulkMutationSpec) IsDerivedDelete() bool { return s.StatementText == "" }
