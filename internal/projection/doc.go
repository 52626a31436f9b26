// Package projection turns provider tuples into result elements: hydrated
// entity records, DTOs built positionally from selected columns, or single
// scalar values.
package projection
