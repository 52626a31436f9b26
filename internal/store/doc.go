// Package store is the SQLite persistence provider.
//
// A Store opens units of work over one database file. Each transactional
// unit owns a BEGIN IMMEDIATE transaction and an identity map; statements are
// compiled by internal/querysql and their rows hydrated into managed
// schema.Records.
//
// # Critical Patterns
//
// Deterministic Query Results
//   - Every entity select ends its ORDER BY with the root id
//   - Identical statements return identical row order
//
// Identity
//   - One record instance per entity id per unit of work
//   - A row for an already managed id returns the managed instance unchanged;
//     bulk mutations must invalidate the map to observe their own writes
//
// Dirty Tracking
//   - Hydrated and persisted records carry a column snapshot
//   - Flush (before every statement and on commit) writes changed columns
//   - readOnly units and readOnly-hinted statements skip snapshots
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout: lock-wait policy (block with timeout, or fail fast)
//   - foreign_keys=ON: Enforce referential integrity
//   - _txlock=immediate: units of work take the write lock at begin
package store
