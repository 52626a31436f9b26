// Package provider defines the persistence contract the query engine runs
// against.
//
// A Provider opens units of work. A UnitOfWork executes Statements, owns an
// identity map and, when transactional, a transaction with any pessimistic
// locks taken inside it. Units of work are not safe for concurrent use.
//
// The engine never builds provider-native text for derived queries: it hands
// the provider a Statement and receives Tuples back. internal/store is the
// SQLite implementation.
package provider
