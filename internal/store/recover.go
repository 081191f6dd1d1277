package store

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/sessionstore/internal/audit"
	"github.com/roach88/sessionstore/internal/record"
	"github.com/roach88/sessionstore/internal/snapshot"
)

// Recover loads a dataset from a snapshot without modifying the store. An
// empty path means this store's own snapshots, CSV first and SQLite as the
// fallback. Missing or unreadable files yield false.
func (s *Store) Recover(path string) (d record.Dataset, ok bool) {
	defer s.recoverPanic("recover", audit.EventRecoveryError)

	s.mu.Lock()
	defer s.mu.Unlock()

	paths := []string{path}
	if path == "" {
		if !s.initialized {
			s.recoveryFailed("recover", errors.New("no snapshot path and store is not initialized"))
			return record.Dataset{}, false
		}
		paths = s.target.Paths()
	}

	var errs []error
	for _, p := range paths {
		loaded, err := snapshot.Load(p)
		if err == nil {
			s.metrics.observeRecovery(nil)
			s.events.Log(audit.EventRecovered, "data recovered", map[string]any{
				"path":    p,
				"format":  string(snapshot.DetectFormat(p)),
				"records": loaded.Len(),
			})
			return loaded, true
		}
		errs = append(errs, err)
	}

	s.recoveryFailed("recover", errors.Join(errs...))
	return record.Dataset{}, false
}

// Restore replaces the records of an active store with those of d, which
// must share the store's schema. The last in-progress record becomes
// current and the batch counter is reset. Snapshot paths do not change.
func (s *Store) Restore(d record.Dataset) (ok bool) {
	defer s.recoverPanic("restore", audit.EventRecoveryError)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkActive("restore") {
		return false
	}
	if !slices.Equal(d.Schema.Names(), s.data.Schema.Names()) {
		s.recoveryFailed("restore", errors.New("dataset schema does not match the study schema"))
		return false
	}
	index, err := d.Index()
	if err != nil {
		s.recoveryFailed("restore", fmt.Errorf("invalid dataset: %w", err))
		return false
	}

	s.data.Records = d.Clone().Records
	s.index = index
	s.current = ""
	for i := len(s.data.Records) - 1; i >= 0; i-- {
		if !s.data.Records[i].Completed() {
			s.current = s.data.Records[i].SessionID
			break
		}
	}
	s.batch.reset()
	s.metrics.setRecords(len(s.data.Records))

	s.events.Log(audit.EventRestored, "data restored", map[string]any{
		"records":    len(s.data.Records),
		"session_id": s.current,
	})
	return true
}

// recoveryFailed must be called with s.mu held.
func (s *Store) recoveryFailed(op string, err error) {
	s.metrics.observeRecovery(err)
	s.fail(audit.EventRecoveryError, &OpError{Op: op, Kind: ErrRecovery, Err: err})
}
