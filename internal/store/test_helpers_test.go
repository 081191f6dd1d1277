package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sessionstore/internal/audit"
	"github.com/roach88/sessionstore/internal/record"
	"github.com/roach88/sessionstore/internal/schema"
	"github.com/roach88/sessionstore/internal/testutil"
)

var testStart = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func testParams(dir string) Params {
	return Params{
		StudyKey: "study_test",
		Config: schema.StudyConfig{
			Name:              "hilfo",
			StudyType:         "personality",
			Language:          "de",
			DemographicFields: []string{"age", "gender", "semester"},
		},
		ItemBank:  schema.ItemBank{IDs: []string{"q1", "q2", "q3", "q4", "q5"}},
		OutputDir: dir,
	}
}

// newTestStore returns an initialized store writing to a temp directory
// with a clock that advances one second per read.
func newTestStore(t *testing.T, backup bool, opts ...Option) (*Store, *testutil.FixedClock) {
	t.Helper()
	clock := testutil.NewFixedClock(testStart, time.Second)
	base := []Option{
		WithClock(clock),
		WithIDGenerator(testutil.NewSequenceGenerator("s")),
	}
	s := New(append(base, opts...)...)

	p := testParams(t.TempDir())
	p.EnableBackup = backup
	h := s.Initialize(p)
	require.True(t, h.Active)
	return s, clock
}

func fixedClock() *testutil.FixedClock {
	return testutil.NewFixedClock(testStart, 0)
}

func countEvents(s *Store, eventType string) int {
	n := 0
	for _, e := range s.Entries() {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// collectSink records every event so non-audit types are visible.
func collectSink() (audit.Sink, *[]audit.Entry) {
	var got []audit.Entry
	return audit.SinkFunc(func(e audit.Entry) error {
		got = append(got, e)
		return nil
	}), &got
}

func sampleInput() record.Input {
	return record.Input{
		Session: record.SessionData{
			StudyID:       "hilfo",
			ParticipantID: "p1",
			Device:        "desktop",
		},
		Responses:    []float64{1, 2},
		Demographics: map[string]any{"age": 30, "semester": 2},
	}
}
