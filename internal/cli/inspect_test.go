package cli

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sessionstore/internal/record"
	"github.com/roach88/sessionstore/internal/schema"
	"github.com/roach88/sessionstore/internal/snapshot"
)

var inspectStart = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func inspectDataset() record.Dataset {
	sch := schema.Build(schema.StudyConfig{Name: "hilfo"}, schema.ItemBank{IDs: []string{"q1", "q2"}})
	d := record.NewDataset("study_inspect", inspectStart, sch)
	d.Records = []record.Record{
		record.Build(sch, record.Input{
			Session: record.SessionData{
				SessionID:     "s-1",
				ParticipantID: "p001",
				StartTime:     inspectStart,
				EndTime:       inspectStart.Add(90 * time.Second),
				Status:        record.StatusCompleted,
			},
			Responses: []float64{3, 4},
		}, inspectStart, nil),
		record.Build(sch, record.Input{
			Session: record.SessionData{
				SessionID:     "s-2",
				ParticipantID: "p002",
				StartTime:     inspectStart.Add(time.Hour),
			},
			Responses: []float64{2, math.NaN()},
		}, inspectStart, nil),
	}
	return d
}

// writeSnapshot persists the inspect dataset in format f and returns its
// path.
func writeSnapshot(t *testing.T, f snapshot.Format) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "study_inspect"+f.Ext())
	require.NoError(t, snapshot.Write(path, f, inspectDataset()))
	return path
}

func TestInspectText(t *testing.T) {
	for _, f := range []snapshot.Format{snapshot.FormatCSV, snapshot.FormatSQLite} {
		t.Run(string(f), func(t *testing.T) {
			path := writeSnapshot(t, f)

			buf := &bytes.Buffer{}
			cmd := NewInspectCommand(&RootOptions{Format: "text"})
			cmd.SetOut(buf)
			cmd.SetArgs([]string{path})

			require.NoError(t, cmd.Execute())

			output := buf.String()
			assert.Contains(t, output, "("+string(f)+")")
			assert.Contains(t, output, "Study:    hilfo [study_inspect]")
			assert.Contains(t, output, "Created:  2024-03-01T09:00:00Z")
			assert.Contains(t, output, "Sessions: 2 total, 1 completed, 1 incomplete")
			assert.Contains(t, output, "Responses: 3")
			assert.NotContains(t, output, "SESSION")
		})
	}
}

func TestInspectSessionsText(t *testing.T) {
	path := writeSnapshot(t, snapshot.FormatCSV)

	buf := &bytes.Buffer{}
	cmd := NewInspectCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--sessions", path})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "SESSION")
	assert.Regexp(t, `s-1\s+p001\s+completed\s+2\s+90s`, output)
	assert.Regexp(t, `s-2\s+p002\s+in_progress\s+1\s+-`, output)
}

func TestInspectSessionsJSON(t *testing.T) {
	path := writeSnapshot(t, snapshot.FormatSQLite)

	buf := &bytes.Buffer{}
	cmd := NewInspectCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--sessions", path})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string        `json:"status"`
		Data   InspectResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "sqlite", resp.Data.Format)
	assert.Equal(t, 2, resp.Data.ItemCount)
	assert.Equal(t, 22, resp.Data.Columns)
	require.Len(t, resp.Data.Sessions, 2)

	first := resp.Data.Sessions[0]
	assert.Equal(t, "s-1", first.SessionID)
	assert.Equal(t, "completed", first.Status)
	require.NotNil(t, first.DurationSeconds)
	assert.InDelta(t, 90.0, *first.DurationSeconds, 1e-9)

	second := resp.Data.Sessions[1]
	assert.Equal(t, "in_progress", second.Status)
	assert.Empty(t, second.EndTime)
	assert.Nil(t, second.DurationSeconds)
	assert.Equal(t, 1, second.Responses)
}

func TestInspectMissingSnapshot(t *testing.T) {
	for _, name := range []string{"absent.csv", "absent.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			buf := &bytes.Buffer{}
			cmd := NewInspectCommand(&RootOptions{Format: "text"})
			cmd.SetOut(buf)
			cmd.SetArgs([]string{path})

			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), ErrCodeNotFound)
			assert.Contains(t, buf.String(), "not found")

			// Inspecting must never create the file.
			_, statErr := os.Stat(path)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestInspectCorruptSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"csv_without_marker", "bad.csv", "session_id,study_id\ns-1,x\n"},
		{"db_not_sqlite", "bad.db", "this is not a database"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)

			buf := &bytes.Buffer{}
			cmd := NewInspectCommand(&RootOptions{Format: "json"})
			cmd.SetOut(buf)
			cmd.SetArgs([]string{path})

			err := cmd.Execute()
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			assert.Equal(t, ErrCodeCorrupt, resp.Error.Code)
		})
	}
}
