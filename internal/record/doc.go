// Package record holds the session data model: one Record per participant
// session and the Dataset that collects them.
//
// Records are plain values. The Store owns the only mutable Dataset; every
// accessor hands out deep copies (Clone) so callers cannot reach into the
// store's state.
//
// Key design constraints:
//   - Responses and demographic extras are maps, never dynamic struct fields
//   - Strings are NFC-normalized on entry so that snapshots are byte-stable
//   - Timestamps are UTC with no monotonic reading
//   - Extension maps are serialized as RFC 8785 canonical JSON blobs
//   - StatusCompleted is terminal
package record
