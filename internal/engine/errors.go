package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/repokit/internal/plan"
	"github.com/roach88/repokit/internal/schema"
)

// Error codes reported by ErrorCode.
const (
	CodeNoResult            = "NO_RESULT"
	CodeNonUniqueResult     = "NON_UNIQUE_RESULT"
	CodeNoActiveTransaction = "NO_ACTIVE_TRANSACTION"
	CodeInvalidSort         = "INVALID_SORT"
	CodeArgument            = "ARGUMENT"
)

// NoResultError is returned by a single-result method that matched no rows.
type NoResultError struct {
	Method string
}

func (e *NoResultError) Error() string {
	return fmt.Sprintf("%s: no result", e.Method)
}

// ErrorCode returns CodeNoResult.
func (e *NoResultError) ErrorCode() string { return CodeNoResult }

// NonUniqueResultError is returned by a single or optional method that
// matched more than one row. Count is a lower bound: the query stops at two.
type NonUniqueResultError struct {
	Method string
	Count  int
}

func (e *NonUniqueResultError) Error() string {
	return fmt.Sprintf("%s: expected at most one result, got %d or more", e.Method, e.Count)
}

// ErrorCode returns CodeNonUniqueResult.
func (e *NonUniqueResultError) ErrorCode() string { return CodeNonUniqueResult }

// NoActiveTransactionError is returned when a bulk mutation runs without a
// transactional unit of work in its context.
type NoActiveTransactionError struct {
	Method string
}

func (e *NoActiveTransactionError) Error() string {
	return fmt.Sprintf("%s: modifying methods require an active transactional unit of work", e.Method)
}

// ErrorCode returns CodeNoActiveTransaction.
func (e *NoActiveTransactionError) ErrorCode() string { return CodeNoActiveTransaction }

// InvalidSortError reports a sort argument naming a path that cannot be
// sorted on.
type InvalidSortError struct {
	Method string
	Path   schema.Path
	Reason string
}

func (e *InvalidSortError) Error() string {
	return fmt.Sprintf("%s: invalid sort %q: %s", e.Method, e.Path, e.Reason)
}

// ErrorCode returns CodeInvalidSort.
func (e *InvalidSortError) ErrorCode() string { return CodeInvalidSort }

// ArgumentError reports an invocation argument that does not match the
// declared parameters.
type ArgumentError struct {
	Method string
	// Param is empty for count mismatches.
	Param  string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("%s: argument %q: %s", e.Method, e.Param, e.Reason)
}

// ErrorCode returns CodeArgument.
func (e *ArgumentError) ErrorCode() string { return CodeArgument }

// IsNoResult returns true if err is, or wraps, a NoResultError.
func IsNoResult(err error) bool {
	var e *NoResultError
	return errors.As(err, &e)
}

// IsNonUnique returns true if err is, or wraps, a NonUniqueResultError.
func IsNonUnique(err error) bool {
	var e *NonUniqueResultError
	return errors.As(err, &e)
}

// Code returns the code of the first error in err's chain that reports one,
// or "" when none does.
func Code(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}

// unsupportedSpec reports a spec type outside the plan package's two kinds.
func unsupportedSpec(s plan.Spec) error {
	return fmt.Errorf("unsupported spec type %T", s)
}
