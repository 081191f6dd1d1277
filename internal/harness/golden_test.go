package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_BackupLifecycle(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/backup_lifecycle.yaml")
	require.NoError(t, err)

	// Regenerate with:
	//   go test ./internal/harness -run TestRunWithGolden_BackupLifecycle -update
	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestTraceSnapshot_Canonical(t *testing.T) {
	result := NewResult()
	result.AddEvent("SESSION_ADDED", "session added", map[string]interface{}{
		"session_id": "s-1",
		"records":    1,
	})
	result.AddEvent("DATA_SAVED", "data saved", map[string]interface{}{"path": "$OUT/x.csv"})

	out, err := NewTraceSnapshot("tiny", result).MarshalCanonical()
	require.NoError(t, err)

	want := `{"scenario_name":"tiny","trace":[` +
		`{"event":"SESSION_ADDED","message":"session added","seq":1,"session_id":"s-1"},` +
		`{"event":"DATA_SAVED","message":"data saved","seq":2}]}`
	assert.Equal(t, want, string(out))
}
