package harness

import (
	"encoding/json"
	"testing"

	"github.com/gowebpki/jcs"
	"github.com/sebdah/goldie/v2"
)

// TraceSnapshot captures the event trace of a scenario execution.
// It is serialized as canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string        `json:"scenario_name"`
	Trace        []GoldenEvent `json:"trace"`
}

// GoldenEvent is the part of a TraceEvent that is stable across runs.
// Event details carry paths and error text and are left out.
type GoldenEvent struct {
	Seq       int    `json:"seq"`
	Event     string `json:"event"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// NewTraceSnapshot builds the golden form of a result's trace.
func NewTraceSnapshot(name string, result *Result) TraceSnapshot {
	events := make([]GoldenEvent, len(result.Trace))
	for i, ev := range result.Trace {
		events[i] = GoldenEvent{
			Seq:       ev.Seq,
			Event:     ev.Event,
			Message:   ev.Message,
			SessionID: ev.SessionID(),
		}
	}
	return TraceSnapshot{ScenarioName: name, Trace: events}
}

// MarshalCanonical renders the snapshot as RFC 8785 canonical JSON.
func (s TraceSnapshot) MarshalCanonical() ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := NewTraceSnapshot(scenarioName, result).MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
