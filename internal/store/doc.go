// Package store keeps a SQLite history of compilations.
//
// Each compilation is one row in runs, identified by a UUIDv7 and ordered
// by a monotonically increasing seq. The timing tree of the run is
// flattened into pass_timings in pre-order, with the depth of every node,
// so that it can be rebuilt exactly.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// All queries order by seq (then id) so listings are deterministic.
package store
