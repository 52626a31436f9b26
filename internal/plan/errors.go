package plan

import (
	"fmt"
	"strings"

	"github.com/roach88/repokit/internal/schema"
)

// Error codes reported by ErrorCode.
const (
	CodeMissingParameterBinding = "MISSING_PARAMETER_BINDING"
	CodeConflictingQueryOptions = "CONFLICTING_QUERY_OPTIONS"
	CodeProjection              = "PROJECTION"
	CodeInMemoryPaginationRisk  = "IN_MEMORY_PAGINATION_RISK"
	CodeInvalidPath             = "INVALID_PATH"
	CodeResultShape             = "RESULT_SHAPE"
	CodeInvalidDeclaration      = "INVALID_DECLARATION"
)

// MissingParameterBindingError indicates an override placeholder with no
// matching declared parameter.
type MissingParameterBindingError struct {
	Method      string
	Placeholder string
}

func (e *MissingParameterBindingError) Error() string {
	return fmt.Sprintf("%s: placeholder :%s has no matching parameter", e.Method, e.Placeholder)
}

func (e *MissingParameterBindingError) ErrorCode() string { return CodeMissingParameterBinding }

// ConflictingQueryOptionsError indicates lock, hint or fetch options that
// cannot be combined.
type ConflictingQueryOptionsError struct {
	Method string
	Reason string
}

func (e *ConflictingQueryOptionsError) Error() string {
	return fmt.Sprintf("%s: conflicting query options: %s", e.Method, e.Reason)
}

func (e *ConflictingQueryOptionsError) ErrorCode() string { return CodeConflictingQueryOptions }

// ProjectionError indicates a DTO or scalar projection that does not fit the query.
type ProjectionError struct {
	Method string
	Target string
	Reason string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("%s: cannot project to %s: %s", e.Method, e.Target, e.Reason)
}

func (e *ProjectionError) ErrorCode() string { return CodeProjection }

// InMemoryPaginationRiskError indicates a to-many fetch combined with a
// result window. The provider cannot limit joined rows correctly.
type InMemoryPaginationRiskError struct {
	Method string
	Path   schema.Path
}

func (e *InMemoryPaginationRiskError) Error() string {
	return fmt.Sprintf("%s: fetching to-many path %s with paging or a result cap would page in memory; declare paging: in_memory to accept",
		e.Method, e.Path)
}

func (e *InMemoryPaginationRiskError) ErrorCode() string { return CodeInMemoryPaginationRisk }

// InvalidPathError indicates a fetch or projection path that does not
// resolve, or resolves to the wrong kind of property.
type InvalidPathError struct {
	Method string
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("%s: invalid path %q: %s", e.Method, e.Path, e.Reason)
}

func (e *InvalidPathError) ErrorCode() string { return CodeInvalidPath }

// ResultShapeError indicates a return declaration that is inconsistent with
// the method's parameters or operation.
type ResultShapeError struct {
	Method string
	Kind   ResultKind
	Reason string
}

func (e *ResultShapeError) Error() string {
	return fmt.Sprintf("%s: invalid %s result: %s", e.Method, e.Kind, e.Reason)
}

func (e *ResultShapeError) ErrorCode() string { return CodeResultShape }

// InvalidDeclarationError reports malformed declarations: bad parameter
// names or types, override text of the wrong statement type, bad hints.
type InvalidDeclarationError struct {
	Method string
	Field  string
	Reason string
}

func (e *InvalidDeclarationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Method, e.Field, e.Reason)
}

func (e *InvalidDeclarationError) ErrorCode() string { return CodeInvalidDeclaration }

func quoteAll(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(q, ", ")
}
