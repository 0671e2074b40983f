// Package store provides SQLite-backed side tables for plent.
//
// Two tables are kept:
//   - thread_links: forum thread → origin message of the artifact stored
//     from it, so a thread delete can find what to remove
//   - actions: append-only journal of add/update/remove changes
//
// Journal reads are ordered by seq, never by wall time, so history output
// is stable across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
