package store

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/sessionstore/internal/snapshot"
)

// stampLayout is the timestamp embedded in snapshot file names and
// generated study keys.
const stampLayout = "20060102_150405"

// Target is the pair of snapshot paths a store writes to.
type Target struct {
	Tabular string
	Binary  string
}

// Primary is the path reported to callers as the dataset's location.
func (t Target) Primary() string {
	return t.Tabular
}

// Paths lists the snapshot paths in recovery preference order.
func (t Target) Paths() []string {
	return []string{t.Tabular, t.Binary}
}

func newTarget(dir, studyKey string, now time.Time) Target {
	stem := filepath.Join(dir, studyKey+"_"+now.UTC().Format(stampLayout))
	return Target{
		Tabular: stem + snapshot.FormatCSV.Ext(),
		Binary:  stem + snapshot.FormatSQLite.Ext(),
	}
}

// newStudyKey builds study_<timestamp>_<8 random hex digits>.
func newStudyKey(now time.Time) string {
	return "study_" + now.UTC().Format(stampLayout) + "_" + uuid.NewString()[:8]
}
