package harness

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sessionstore/internal/record"
	"github.com/roach88/sessionstore/internal/schema"
	"github.com/roach88/sessionstore/internal/store"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Event: "DATA_MGMT_INIT", Message: "data management initialized"},
		{Seq: 2, Event: "SESSION_ADDED", Message: "session added", Detail: map[string]interface{}{"session_id": "s-1", "records": 1}},
		{Seq: 3, Event: "SESSION_UPDATED", Message: "session updated", Detail: map[string]interface{}{"session_id": "s-1", "fields": []string{"q1", "q2"}}},
		{Seq: 4, Event: "SESSION_UPDATED", Message: "session updated", Detail: map[string]interface{}{"session_id": "s-1", "fields": []string{"status"}}},
		{Seq: 5, Event: "DATA_SAVED", Message: "data saved"},
	}
}

func TestAssertEventContains_Found(t *testing.T) {
	err := assertEventContains(sampleTrace(), Assertion{
		Type:   AssertEventContains,
		Event:  "SESSION_ADDED",
		Detail: map[string]interface{}{"session_id": "s-1"},
	})
	assert.NoError(t, err)
}

func TestAssertEventContains_NotFound(t *testing.T) {
	err := assertEventContains(sampleTrace(), Assertion{
		Type:  AssertEventContains,
		Event: "DATA_FINALIZED",
	})
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, AssertEventContains, assertErr.Type)
	assert.Contains(t, assertErr.Expected, "DATA_FINALIZED")
	assert.Equal(t, "not found in trace", assertErr.Actual)
	assert.Len(t, assertErr.Trace, 5)
}

func TestAssertEventContains_WrongDetail(t *testing.T) {
	err := assertEventContains(sampleTrace(), Assertion{
		Type:   AssertEventContains,
		Event:  "SESSION_ADDED",
		Detail: map[string]interface{}{"session_id": "s-2"},
	})
	assert.Error(t, err)
}

func TestAssertEventContains_PrintedFormMatch(t *testing.T) {
	// YAML decodes lists as []interface{} and the store emits []string.
	err := assertEventContains(sampleTrace(), Assertion{
		Type:   AssertEventContains,
		Event:  "SESSION_UPDATED",
		Detail: map[string]interface{}{"fields": []interface{}{"status"}, "session_id": "s-1"},
	})
	assert.NoError(t, err)
}

func TestAssertEventOrder(t *testing.T) {
	tests := []struct {
		name    string
		events  []string
		wantErr bool
	}{
		{"in order with gaps", []string{"DATA_MGMT_INIT", "SESSION_UPDATED", "DATA_SAVED"}, false},
		{"repeated type", []string{"SESSION_UPDATED", "SESSION_UPDATED"}, false},
		{"too many repeats", []string{"SESSION_UPDATED", "SESSION_UPDATED", "SESSION_UPDATED"}, true},
		{"reversed", []string{"DATA_SAVED", "SESSION_ADDED"}, true},
		{"absent", []string{"DATA_RECOVERED"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertEventOrder(sampleTrace(), Assertion{Type: AssertEventOrder, Events: tt.events})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAssertEventCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertEventCount(trace, Assertion{Type: AssertEventCount, Event: "SESSION_UPDATED", Count: 2}))
	assert.NoError(t, assertEventCount(trace, Assertion{Type: AssertEventCount, Event: "SAVE_ERROR", Count: 0}))

	err := assertEventCount(trace, Assertion{Type: AssertEventCount, Event: "DATA_SAVED", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 2 occurrences of DATA_SAVED")
	assert.Contains(t, err.Error(), "Actual: 1 occurrences")
}

func sampleDataset() record.Dataset {
	sch := schema.Build(schema.StudyConfig{Name: "hilfo"}, schema.ItemBank{IDs: []string{"q1", "q2"}})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := record.NewDataset("study_test", now, sch)
	d.Records = append(d.Records, record.Build(sch, record.Input{
		Session:   record.SessionData{SessionID: "s-1", ParticipantID: "p-1"},
		Responses: []float64{3.5, math.NaN()},
	}, now, nil))
	return d
}

func TestAssertFinalState_Match(t *testing.T) {
	err := assertFinalState(sampleDataset(), Assertion{
		Type:    AssertFinalState,
		Session: "s-1",
		Expect: map[string]interface{}{
			"participant_id": "p-1",
			"q1":             3.5,
			"q2":             nil,
			"status":         "in_progress",
			"start_time":     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	assert.NoError(t, err)
}

func TestAssertFinalState_Failures(t *testing.T) {
	tests := []struct {
		name   string
		a      Assertion
		actual string
	}{
		{
			name:   "unknown session",
			a:      Assertion{Type: AssertFinalState, Session: "s-9", Expect: map[string]interface{}{"q1": 1}},
			actual: "record not found among 1 records",
		},
		{
			name:   "unknown column",
			a:      Assertion{Type: AssertFinalState, Session: "s-1", Expect: map[string]interface{}{"q7": 1}},
			actual: `column "q7" not in schema`,
		},
		{
			name:   "wrong value",
			a:      Assertion{Type: AssertFinalState, Session: "s-1", Expect: map[string]interface{}{"q1": 4}},
			actual: `s-1.q1 = "3.5"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(sampleDataset(), tt.a)
			require.Error(t, err)
			assertErr, ok := err.(*AssertionError)
			require.True(t, ok)
			assert.Contains(t, assertErr.Actual, tt.actual)
		})
	}
}

func TestAssertSnapshot_MissingFile(t *testing.T) {
	dir := t.TempDir()
	target := store.Target{Tabular: filepath.Join(dir, "missing.csv"), Binary: filepath.Join(dir, "missing.db")}

	err := assertSnapshot(target, Assertion{Type: AssertSnapshot, Format: "sqlite", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load error")
}

func TestCellText(t *testing.T) {
	assert.Equal(t, "", cellText(nil))
	assert.Equal(t, "4", cellText(4))
	assert.Equal(t, "4", cellText(4.0))
	assert.Equal(t, "0.25", cellText(0.25))
	assert.Equal(t, "true", cellText(true))
	assert.Equal(t, "p-1", cellText("p-1"))
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	for _, ev := range sampleTrace() {
		result.AddEvent(ev.Event, ev.Message, ev.Detail)
	}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertEventCount, Event: "DATA_SAVED", Count: 1},
		{Type: AssertEventCount, Event: "DATA_SAVED", Count: 3},
		{Type: AssertFinalState, Session: "s-1", Expect: map[string]interface{}{"q1": 3.5}},
		{Type: "eventually"},
	}, nil)

	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "3 occurrences of DATA_SAVED")
	assert.Contains(t, errs[1], "requires an assertion context")
	assert.Contains(t, errs[2], `unknown assertion type "eventually"`)
}
