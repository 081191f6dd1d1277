// Package harness runs conformance scenarios against a session store.
//
// A scenario drives one store through a sequence of operations with a
// deterministic clock and session id generator, records every event the
// store emits, and evaluates assertions against the event trace, the final
// dataset and the snapshots on disk.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	study:
//	  name: hilfo
//	  study_key: study_test
//	  item_bank: { ids: [q1, q2] }
//	  batch_size: 2
//	steps:
//	  - op: initialize
//	  - op: add
//	    input: { session_id: s-1, responses: [3, 4] }
//	    expect: { id: s-1 }
//	  - op: update
//	    fields: { q1: 5 }
//	  - op: finalize
//	assertions:
//	  - type: event_count
//	    event: DATA_SAVED
//	    count: 1
//	  - type: final_state
//	    session: s-1
//	    expect: { status: completed, q1: 5 }
//
// # Operations
//
//   - initialize, add, update, update_session, save, finalize, close,
//     abandon: the store operations of the same name
//   - recover: loads a snapshot ("tabular", "binary", a file name inside
//     the output directory, or empty for the store's own fallback order)
//   - restore: restores the dataset loaded by the last recover step
//   - stats: checks the store's summary against expect.stats
//   - block_output, unblock_output: replace the output directory with a
//     regular file so saves fail, and undo it
//
// # Assertion Types
//
//   - event_contains: an event of the given type with matching detail
//   - event_order: event types appear in the given order
//   - event_count: an event type appears exactly N times
//   - final_state: a record's cells hold the expected values
//   - snapshot: a snapshot on disk loads with the expected record count
//
// # Deterministic Testing
//
// The clock starts at the scenario's start time (default
// 2024-01-01T00:00:00Z) and advances one second per reading. Generated
// session ids are session-1, session-2, and so on. Snapshot paths in event
// details are rewritten relative to the output directory so traces can be
// compared against golden files.
package harness
