// Package plan binds method declarations to immutable query plans.
//
// Bind is the single entry point. It runs once per declared method when a
// repository is assembled and produces either a *QuerySpec (reads, counts,
// existence checks) or a *BulkMutationSpec (modifying statements and derived
// deletes). The stages run in a fixed order:
//
//	parameters   → names, types, at most one paging and one sort parameter
//	predicate    → derive.Parse on the method name, or override text
//	result shape → declared or inferred ResultKind, paging compatibility
//	projection   → entity, DTO (derived columns or select width) or scalar
//	fetch        → JOIN FETCH in override text > graph + paths > none
//	options      → lock mode and provider hints
//
// Every declaration problem surfaces as a typed error from Bind. Nothing in
// a bound spec is re-validated at invocation time.
//
// Specs are shared read-only across concurrent callers. Fingerprint gives a
// canonical SHA-256 identity for caching and compile output.
package plan
