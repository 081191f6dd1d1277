package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
name: minimal
description: "Add one session"
study:
  name: hilfo
  item_bank: { ids: [q1, q2] }
steps:
  - op: initialize
  - op: add
    input:
      session_id: s-1
      responses: [3, 4]
      demographics: { age: 30 }
    expect: { ok: true, id: s-1 }
  - op: stats
    expect: { stats: { total: 1 } }
assertions:
  - type: event_count
    event: SESSION_ADDED
    count: 1
`

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(validScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, "hilfo", s.Study.Name)
	assert.Equal(t, []string{"q1", "q2"}, s.Study.ItemBank.IDs)
	require.Len(t, s.Steps, 3)
	assert.Equal(t, OpAdd, s.Steps[1].Op)
	assert.Equal(t, []float64{3, 4}, s.Steps[1].Input.Responses)
	assert.Equal(t, "s-1", s.Steps[1].Expect.ID)
	require.NotNil(t, s.Steps[1].Expect.OK)
	assert.True(t, *s.Steps[1].Expect.OK)
	assert.Equal(t, map[string]int{"total": 1}, s.Steps[2].Expect.Stats)
	assert.True(t, s.Start.IsZero())
}

func TestAddInput_Input(t *testing.T) {
	s, err := ParseScenario([]byte(validScenario))
	require.NoError(t, err)

	in := s.Steps[1].Input.Input()
	assert.Equal(t, "s-1", in.Session.SessionID)
	assert.Equal(t, []float64{3, 4}, in.Responses)
	assert.Equal(t, 30, in.Demographics["age"])
	assert.Nil(t, in.Custom)

	var nilInput *AddInput
	assert.Empty(t, nilInput.Input().Session.SessionID)
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	data := `
name: typo
description: "Misspelled assertions key"
study: { name: hilfo, item_bank: { count: 1 } }
steps:
  - op: initialize
assertion:
  - type: event_count
    event: DATA_MGMT_INIT
    count: 1
`
	_, err := ParseScenario([]byte(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_ValidationErrors(t *testing.T) {
	const header = `
name: invalid
description: "Invalid scenario"
study: { name: hilfo, item_bank: { count: 1 } }
`
	const okAssertions = `
assertions:
  - type: event_count
    event: DATA_MGMT_INIT
    count: 1
`
	const okSteps = `
steps:
  - op: initialize
`

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", `
description: "x"
study: { name: hilfo }
` + okSteps + okAssertions, "name is required"},
		{"missing description", `
name: x
study: { name: hilfo }
` + okSteps + okAssertions, "description is required"},
		{"missing study name", `
name: x
description: "x"
` + okSteps + okAssertions, "study.name is required"},
		{"no steps", header + okAssertions, "steps list is required"},
		{"no assertions", header + okSteps, "assertions list is required"},
		{"unknown op", header + `
steps:
  - op: rewind
` + okAssertions, `unknown op "rewind"`},
		{"update without fields", header + `
steps:
  - op: update
` + okAssertions, "fields is required for update"},
		{"update_session without session", header + `
steps:
  - op: update_session
    fields: { q1: 1 }
` + okAssertions, "session is required for update_session"},
		{"stats without expectations", header + `
steps:
  - op: stats
` + okAssertions, "expect.stats is required"},
		{"unknown error kind", header + `
steps:
  - op: save
    expect: { error: timeout }
` + okAssertions, `unknown error kind "timeout"`},
		{"unknown assertion", header + okSteps + `
assertions:
  - type: eventually
`, `unknown assertion type "eventually"`},
		{"event_order without events", header + okSteps + `
assertions:
  - type: event_order
`, "events list is required"},
		{"final_state without expect", header + okSteps + `
assertions:
  - type: final_state
    session: s-1
`, "expect is required for final_state"},
		{"snapshot with bad format", header + okSteps + `
assertions:
  - type: snapshot
    format: parquet
`, "format must be csv or sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarios_Sorted(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	assert.Equal(t, "backup_lifecycle", scenarios[0].Name)
	for i := 1; i < len(scenarios); i++ {
		assert.NotEqual(t, scenarios[i-1].Name, scenarios[i].Name)
	}
}

func TestLoadScenarios_RejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(validScenario), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(validScenario), 0o600))

	_, err := LoadScenarios(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario name "minimal" already used by a.yaml`)
}

func TestLoadScenarios_EmptyDir(t *testing.T) {
	_, err := LoadScenarios(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenarios found")
}
