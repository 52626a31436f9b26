// Package schema describes entity types and their property graph.
//
// The schema is the static table every method declaration is resolved
// against. It is built once, validated once, and read concurrently afterwards.
// Nothing in this package touches a database.
//
// Key design constraints:
//   - Property kinds are string, int and bool only (no floats)
//   - Every entity has an int id property
//   - Associations are either to_one (owner holds the foreign key column)
//     or to_many (inverse of a to_one on the target, named by MappedBy)
//   - Unresolvable property paths are definition errors, never runtime errors
package schema
