package derive

import (
	"fmt"

	"github.com/roach88/repokit/internal/queryir"
	"github.com/roach88/repokit/internal/schema"
)

// Error codes reported by ErrorCode. They are stable and surface in CLI JSON output.
const (
	CodeUnresolvableMethodName = "UNRESOLVABLE_METHOD_NAME"
	CodeArityMismatch          = "ARITY_MISMATCH"
	CodeParamType              = "PARAM_TYPE"
)

// UnresolvableMethodNameError indicates a method name that cannot be turned
// into a query: unknown prefix, unresolvable property path or malformed clause.
type UnresolvableMethodNameError struct {
	Method  string
	Segment string
	Reason  string
}

func (e *UnresolvableMethodNameError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("%s: cannot derive query: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("%s: cannot derive query from %q: %s", e.Method, e.Segment, e.Reason)
}

// ErrorCode returns the stable error code.
func (e *UnresolvableMethodNameError) ErrorCode() string { return CodeUnresolvableMethodName }

// ArityMismatchError indicates that the operands implied by a method do not
// match its declared (non-special) parameters.
type ArityMismatchError struct {
	Method   string
	Expected int
	Got      int
	Detail   string
}

func (e *ArityMismatchError) Error() string {
	msg := fmt.Sprintf("%s: expects %d parameter(s), declared %d", e.Method, e.Expected, e.Got)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// ErrorCode returns the stable error code.
func (e *ArityMismatchError) ErrorCode() string { return CodeArityMismatch }

// ParamTypeError indicates a parameter whose declared type cannot be compared
// with the property it is bound to.
type ParamTypeError struct {
	Method string
	Param  string
	Type   queryir.ParamType
	Path   schema.Path
	Want   string
}

func (e *ParamTypeError) Error() string {
	return fmt.Sprintf("%s: parameter %q of type %s cannot bind %s (want %s)",
		e.Method, e.Param, e.Type, e.Path, e.Want)
}

// ErrorCode returns the stable error code.
func (e *ParamTypeError) ErrorCode() string { return CodeParamType }
