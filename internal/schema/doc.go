// Package schema derives the column layout of a study dataset.
//
// A Schema is a pure function of a StudyConfig and an ItemBank: the same
// inputs always produce the same ordered column list. Snapshots persist the
// inputs rather than the columns, so recovery rebuilds an identical Schema
// with Build.
//
// Column order:
//   - canonical session columns (identity, timing, status, counts, outcome,
//     context, canonical demographics, demographics_extra)
//   - one response column per item identifier, in bank order
//   - custom-flow columns, only when the config declares a custom flow
//
// This package imports nothing internal; record, snapshot and store build on
// top of it.
package schema
