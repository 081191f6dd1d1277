// Package store owns one study's in-memory dataset and its persistence.
//
// A Store is an explicitly owned instance: one per concurrently running
// session, never process-wide. Its lifecycle is
//
//	New -> Initialize -> Add / Update ... -> Finalize (or Close / Abandon)
//
// Add appends a record and makes it current. Update mutates the current
// record only. Every public operation is fail-soft: internal failures are
// converted into an event on the audit log and a zero or false return, and
// never reach the caller as an error or a panic.
//
// # Persistence
//
// Each Save writes the whole dataset to two snapshots, a CSV file and a
// SQLite database, both replaced atomically (see package snapshot). Saves
// happen inline:
//   - on every Add when backup is enabled
//   - on the Update that brings the batch counter to the batch size
//   - on Finalize, regardless of the batch counter
//   - whenever Save is called explicitly
//
// The batch counter is reset after every successful save.
//
// # Recovery
//
// Recover reads a snapshot back without touching the store. Restore swaps a
// recovered dataset into an active store so a session can continue.
package store
