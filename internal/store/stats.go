package store

import (
	"os"
	"time"
)

// Stats summarizes the dataset.
type Stats struct {
	Total          int
	Completed      int
	Incomplete     int
	TotalResponses int
	FileSizeBytes  int64
	LastSaveTime   time.Time
}

// Stats reports counts for an active store. It is a pure read and returns
// the zero value on a store that is uninitialized or no longer active.
func (s *Store) Stats() (st Stats) {
	defer func() {
		if r := recover(); r != nil {
			st = Stats{}
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized || !s.active {
		return Stats{}
	}

	completed, incomplete, responses := s.data.Counts()
	st = Stats{
		Total:          s.data.Len(),
		Completed:      completed,
		Incomplete:     incomplete,
		TotalResponses: responses,
		LastSaveTime:   s.lastSave,
	}
	if info, err := os.Stat(s.target.Tabular); err == nil {
		st.FileSizeBytes = info.Size()
	}
	return st
}
