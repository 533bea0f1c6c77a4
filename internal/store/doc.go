// Package store provides SQLite-backed storage for reconciliation run
// results.
//
// The experiment runner records one row per finished session: key size,
// error configuration, outcome, leaked-bit count, corrections and pass
// count. The report command aggregates these rows per experiment.
//
// Key material is deliberately never persisted; only statistics about
// a run are. The sifted and reconciled keys live and die with their
// session.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
