package store

import (
	"errors"
	"time"

	"github.com/roach88/sessionstore/internal/audit"
	"github.com/roach88/sessionstore/internal/snapshot"
)

// Save writes the dataset to both snapshots. An inactive store saves only
// when force is set; an empty dataset is never written. It reports whether
// both snapshots were written.
func (s *Store) Save(force bool) (ok bool) {
	defer s.recoverPanic("save", audit.EventSaveError)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(force)
}

// save must be called with s.mu held.
func (s *Store) save(force bool) bool {
	if !s.initialized || (!s.active && !force) {
		return s.checkActive("save")
	}
	if s.data.Len() == 0 {
		s.events.Log(audit.EventSaveSkipped, "save skipped: dataset is empty", map[string]any{
			"study_key": s.data.Meta.StudyKey,
		})
		return false
	}

	start := time.Now()
	err := s.writeSnapshots()
	s.metrics.observeSave(err, time.Since(start))
	if err != nil {
		s.fail(audit.EventSaveError, &OpError{Op: "save", Kind: ErrPersistence, Err: err})
		return false
	}

	s.lastSave = s.clock.Now()
	s.batch.reset()
	s.events.Log(audit.EventSaved, "data saved", map[string]any{
		"records":     s.data.Len(),
		"path":        s.target.Tabular,
		"binary_path": s.target.Binary,
	})
	return true
}

// writeSnapshots attempts both formats even when the first one fails.
func (s *Store) writeSnapshots() error {
	return errors.Join(
		snapshot.Write(s.target.Tabular, snapshot.FormatCSV, s.data),
		snapshot.Write(s.target.Binary, snapshot.FormatSQLite, s.data),
	)
}
