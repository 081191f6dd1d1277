package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sessionstore/internal/schema"
)

func fullRecord(t *testing.T) Record {
	t.Helper()
	theta, se := -0.125, 0.3333333333333333
	r := Build(testSchema(true), Input{
		Session: SessionData{
			SessionID:     "s-1",
			StudyID:       "hilfo",
			ParticipantID: "p, \"quoted\"\nline",
			StartTime:     testNow,
			EndTime:       testNow.Add(1500 * time.Millisecond),
			Status:        StatusCompleted,
			Ability:       &theta,
			StdError:      &se,
			Device:        "desktop",
			Browser:       "firefox",
		},
		Responses:    []float64{1, 2.5},
		Demographics: map[string]any{"age": "30", "semester": "2", "note": "<b>&</b>"},
		Custom: &CustomData{
			PagesCompleted: 4,
			PagesTotal:     4,
			PageTimings:    map[string]float64{"p1": 0.1, "p2": 1e-7},
		},
	}, testNow, nil)
	require.NoError(t, r.Validate())
	return r
}

func TestCell_RoundTripEveryColumn(t *testing.T) {
	s := testSchema(true)
	want := fullRecord(t)

	got := Record{}
	for _, col := range s.Columns {
		cell, err := want.Cell(col)
		require.NoError(t, err, col.Name)
		require.NoError(t, got.SetCell(col, cell), col.Name)
	}

	assert.Equal(t, want, got)
}

func TestCell_UnsetValuesAreEmpty(t *testing.T) {
	s := testSchema(false)
	r := Build(s, Input{}, testNow, fixedID("s"))

	for _, name := range []string{
		schema.ColEndTime, schema.ColDurationSeconds, schema.ColAbility,
		schema.ColStdError, schema.ColDemographicsExtra, "q1",
	} {
		col, ok := s.Column(name)
		require.True(t, ok, name)
		cell, err := r.Cell(col)
		require.NoError(t, err)
		assert.Empty(t, cell, name)
	}
}

func TestCell_DerivedDuration(t *testing.T) {
	r := fullRecord(t)
	col, _ := testSchema(true).Column(schema.ColDurationSeconds)

	cell, err := r.Cell(col)
	require.NoError(t, err)
	assert.Equal(t, "1.5", cell)

	require.NoError(t, r.SetCell(col, "999"), "derived columns are ignored on read")
}

func TestSetCell_RejectsMalformed(t *testing.T) {
	s := testSchema(true)
	tests := map[string]string{
		schema.ColStartTime:         "yesterday",
		schema.ColTotalItems:        "3.5",
		schema.ColAbility:           "high",
		schema.ColDemographicsExtra: "{not json",
		"q1":                        "x",
		schema.ColPageTimings:       "[1,2]",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			col, ok := s.Column(name)
			require.True(t, ok)
			var r Record
			assert.Error(t, r.SetCell(col, raw))
		})
	}
}

func TestFormatTime_ZeroIsEmpty(t *testing.T) {
	assert.Equal(t, "", FormatTime(time.Time{}))
	got, err := ParseTime("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
