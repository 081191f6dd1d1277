package store

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/sessionstore/internal/audit"
	"github.com/roach88/sessionstore/internal/record"
)

var errNoCurrent = errors.New("no current session")

// Add builds a record from in, appends it and makes it current. It returns
// the new session id, or "" when nothing was added. With backup enabled the
// dataset is saved immediately.
func (s *Store) Add(in record.Input) (id string) {
	defer s.recoverPanic("add", audit.EventMutationError)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkActive("add") {
		return ""
	}

	r := record.Build(s.data.Schema, in, s.clock.Now(), s.ids.Generate)
	if err := r.Validate(); err != nil {
		s.mutationFailed("add", r.SessionID, err)
		return ""
	}
	if _, dup := s.index[r.SessionID]; dup {
		s.mutationFailed("add", r.SessionID, fmt.Errorf("duplicate session id %q", r.SessionID))
		return ""
	}

	s.data.Records = append(s.data.Records, r)
	s.index[r.SessionID] = len(s.data.Records) - 1
	s.current = r.SessionID
	s.metrics.observeMutation("add", nil)
	s.metrics.setRecords(len(s.data.Records))

	s.events.Log(audit.EventSessionAdded, "session added", map[string]any{
		"session_id": r.SessionID,
		"records":    len(s.data.Records),
	})

	if s.backup {
		s.save(false)
	}
	return r.SessionID
}

// Update applies f to the current record. It reports whether the update
// was applied; on failure the record is unchanged.
func (s *Store) Update(f record.Fields) (ok bool) {
	defer s.recoverPanic("update", audit.EventMutationError)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkActive("update") {
		return false
	}
	if s.current == "" {
		s.mutationFailed("update", "", errNoCurrent)
		return false
	}
	return s.update("update", s.current, f)
}

// UpdateSession applies f to the record with the given session id.
func (s *Store) UpdateSession(id string, f record.Fields) (ok bool) {
	defer s.recoverPanic("update", audit.EventMutationError)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkActive("update") {
		return false
	}
	return s.update("update", id, f)
}

// update applies f to record id and runs the batch policy.
// Must be called with s.mu held.
func (s *Store) update(op, id string, f record.Fields) bool {
	i, ok := s.index[id]
	if !ok {
		s.mutationFailed(op, id, fmt.Errorf("unknown session id %q", id))
		return false
	}
	if len(f) == 0 {
		return true
	}

	r, err := record.Apply(s.data.Schema, s.data.Records[i], f)
	if err != nil {
		s.mutationFailed(op, id, err)
		return false
	}
	s.data.Records[i] = r
	s.metrics.observeMutation(op, nil)

	s.events.Log(audit.EventSessionUpdated, "session updated", map[string]any{
		"session_id": id,
		"fields":     slices.Sorted(maps.Keys(f)),
		"batch":      s.batch.count + 1,
	})

	if s.batch.increment() {
		s.save(false)
	}
	return true
}

// mutationFailed must be called with s.mu held.
func (s *Store) mutationFailed(op, id string, err error) {
	s.metrics.observeMutation(op, err)
	s.fail(audit.EventMutationError, &OpError{
		Op:        op,
		SessionID: id,
		Kind:      ErrMutation,
		Err:       err,
	})
}
