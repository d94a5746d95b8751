// Package store persists plan history in SQLite.
//
// Entries live in history_entries keyed by (write_type, hash), where the
// hash is the structural hash of the operation that produced the value and
// the value is encoded by its resource codec. Saves are append-only: an
// entry already stored is never overwritten, matching the insert-or-fetch
// rule of the in-memory history.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Each SaveHistory call is recorded in history_saves with a UUIDv7 id and a
// sequence number; ordering never depends on wall time.
//
// history_meta records the hash layout version. Opening a database written
// under another layout clears history_entries.
package store
