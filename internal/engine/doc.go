// Package engine executes bound repository specs.
//
// The Executor is the runtime half of the repository: plan.Bind resolves
// every declaration once, and the Executor runs the resulting immutable
// specs with per-call arguments.
//
// Query execution:
//  1. Arguments are checked against the declared parameters
//  2. The sort is resolved: sort argument, then paging request, then the
//     method name's OrderBy
//  3. Page results run their count query first; a zero total skips the main
//     query
//  4. The main query runs with the row window of the result kind
//  5. Tuples are projected to records, DTOs or scalars
//
// Units of work come from the context (provider.WithUnitOfWork). Reads
// without one run in an implicit non-transactional unit that is released on
// every exit path. Bulk mutations require a transactional unit.
//
// Errors are typed (NoResultError, NonUniqueResultError,
// NoActiveTransactionError, InvalidSortError, ArgumentError) and carry
// stable codes. Provider errors are wrapped with %w. Nothing is retried.
package engine
