// Package store provides SQLite-backed storage for resources and their
// associations.
//
// Statements are built as queryir values and compiled by querysql, so
// every read has a deterministic ORDER BY and every parameter is bound.
// Rows come back as ir.IRObject keyed by column name.
//
// # Transactions
//
// Tx carries the open *sql.Tx in the context. Nested calls join the
// outer transaction, so a reconciliation made of many member operations
// commits or rolls back as one unit.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - foreign_keys=ON: References are enforced
//   - _txlock=immediate: Writers take the lock at BEGIN
//
// Two drivers are registered: mattn/go-sqlite3 (cgo, the default) and
// modernc.org/sqlite (pure Go). Constraint failures from either are
// tagged with ErrConstraint.
package store
