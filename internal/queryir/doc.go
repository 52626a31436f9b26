// Package queryir provides the query intermediate representation (IR)
// shared by the method-name parser, the override registry and the
// persistence provider.
//
// ARCHITECTURE:
//
// The IR sits between method declarations and the provider compiler:
//
//	[method name] → derive → [Predicate + Sort] → plan → [QuerySpec] → provider
//	[override text] ─────────────────────────────────┘
//
// Nothing in this package knows about SQL. The SQLite provider compiles the
// IR in internal/querysql.
//
// SEALED INTERFACES:
//
// Predicate is a sealed interface using the marker method pattern.
// Only Comparison and Composite implement it, so compilers can switch
// exhaustively:
//
//	switch p := pred.(type) {
//	case queryir.Comparison:
//	    // leaf
//	case queryir.Composite:
//	    // AND / OR
//	}
//
// PARAMETERS:
//
// Comparison leaves reference parameters by position in the declared
// parameter list rather than carrying values. A tree is therefore built once
// per method and shared read-only by every invocation; values are bound by
// the executor.
//
// Operator arity:
//   - 0: IsNull, IsNotNull, True, False
//   - 1: Equals, Not, GreaterThan(Equal), LessThan(Equal), Like
//   - N: In, NotIn (one list parameter)
package queryir
