// Package store provides the SQLite-backed operation journal.
//
// The journal is append-only:
//   - operations: every executed operation, accepted or rejected, keyed by seq
//   - events: the events an accepted operation committed, keyed by (seq, index)
//   - meta: small key/value settings such as the registrar the journal was
//     started with
//
// Ordering uses the engine's seq, never wall time, so reading the journal
// back and replaying it yields the same history. Operation arguments and
// event bodies are stored as canonical JSON (see internal/canon).
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: events reference their operation
//
// A journal is written by one process at a time. FileLock guards the
// replay-then-append window across processes.
package store
