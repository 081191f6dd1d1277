package store

import (
	"fmt"

	"github.com/roach88/sessionstore/internal/audit"
	"github.com/roach88/sessionstore/internal/record"
	"github.com/roach88/sessionstore/internal/schema"
)

// Finalize applies final to the current record, marks it completed, forces
// a save and deactivates the store for good. It returns a copy of the
// dataset.
func (s *Store) Finalize(final record.Fields) (d record.Dataset) {
	defer s.recoverPanic("finalize", audit.EventFinalizeError)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkActive("finalize") {
		return s.data.Clone()
	}
	return s.finalize(final)
}

// Close finalizes an active store and returns its dataset. On a store that
// is already inactive it only returns the dataset.
func (s *Store) Close() (d record.Dataset) {
	defer s.recoverPanic("close", audit.EventFinalizeError)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return s.data.Clone()
	}
	return s.finalize(nil)
}

// Abandon deactivates the store without sealing the current record or
// saving. Snapshots on disk keep their last saved state.
func (s *Store) Abandon() (ok bool) {
	defer s.recoverPanic("abandon", audit.EventMutationError)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkActive("abandon") {
		return false
	}
	s.active = false
	s.events.Log(audit.EventAbandoned, "session abandoned", map[string]any{
		"study_key":       s.data.Meta.StudyKey,
		"session_id":      s.current,
		"records":         s.data.Len(),
		"unsaved_updates": s.batch.count,
	})
	return true
}

// finalize must be called with s.mu held on an active store.
func (s *Store) finalize(final record.Fields) record.Dataset {
	if len(final) > 0 {
		if s.current == "" {
			s.mutationFailed("finalize", "", errNoCurrent)
		} else {
			s.update("finalize", s.current, final)
		}
	}

	var sealErr error
	if s.current != "" {
		sealErr = s.seal(s.current)
	}

	saved := s.save(true)
	s.active = false

	switch {
	case sealErr != nil:
		s.fail(audit.EventFinalizeError, &OpError{
			Op:        "finalize",
			SessionID: s.current,
			Kind:      ErrMutation,
			Err:       sealErr,
		})
	case !saved && s.data.Len() > 0:
		s.fail(audit.EventFinalizeError, &OpError{
			Op:   "finalize",
			Kind: ErrPersistence,
			Err:  fmt.Errorf("final save failed: %w", s.lastErr),
		})
	default:
		s.events.Log(audit.EventFinalized, "data finalized", map[string]any{
			"study_key":  s.data.Meta.StudyKey,
			"session_id": s.current,
			"records":    s.data.Len(),
			"path":       s.target.Primary(),
		})
	}
	return s.data.Clone()
}

// seal marks record id completed. An unset end time becomes now, clamped
// so it never precedes the start time.
func (s *Store) seal(id string) error {
	i := s.index[id]
	r := s.data.Records[i]

	f := record.Fields{schema.ColStatus: record.StatusCompleted}
	if r.EndTime.IsZero() {
		end := s.clock.Now()
		if end.Before(r.StartTime) {
			end = r.StartTime
		}
		f[schema.ColEndTime] = end
	}
	sealed, err := record.Apply(s.data.Schema, r, f)
	if err != nil {
		return err
	}
	s.data.Records[i] = sealed
	return nil
}
