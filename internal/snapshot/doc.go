// Package snapshot reads and writes full-table dataset snapshots.
//
// Two complementary formats are supported:
//   - Tabular (.csv): human-readable, one row per record, schema columns
//     as header. Two leading comment lines carry the format marker and the
//     dataset metadata as canonical JSON.
//   - Binary (.db): a SQLite database with a meta table and a sessions
//     table (see schema.sql).
//
// Every write is a full overwrite made atomic by building the new file at a
// temporary path in the destination directory and renaming it into place.
// Readers therefore observe either the previous snapshot or the new one,
// never a partial file.
//
// # Database Configuration
//
//   - journal_mode=DELETE: a snapshot is a single self-contained file, no
//     -wal sidecar to lose during the rename
//   - synchronous=FULL: the file is durable before it is renamed
//   - busy_timeout=5000
//   - foreign_keys=ON
package snapshot
