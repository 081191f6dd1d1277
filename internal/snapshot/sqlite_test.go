package snapshot

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		flow bool
	}{
		{"plain", false},
		{"custom flow", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := testDataset(t)
			if tt.flow {
				want = flowDataset(t)
			}
			path := filepath.Join(t.TempDir(), "study.db")

			require.NoError(t, WriteSQLite(path, want))
			got, err := ReadSQLite(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestSQLite_RoundTripSpecialFileNames(t *testing.T) {
	names := []string{"lab#1.db", "lab%201.db", "lab?x.db", "lab x&y=z.db"}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			want := testDataset(t)
			dir := t.TempDir()
			path := filepath.Join(dir, name)

			require.NoError(t, WriteSQLite(path, want))
			got, err := ReadSQLite(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			require.Len(t, entries, 1, "the database must be written at path, not a truncated name")
			assert.Equal(t, name, entries[0].Name())
		})
	}
}

func TestSnapshotDSN(t *testing.T) {
	dsn, err := snapshotDSN("/data/lab#1?%.db", "ro")
	require.NoError(t, err)
	assert.Equal(t, "file:///data/lab%231%3F%25.db?mode=ro", dsn)

	dsn, err = snapshotDSN("/data/study.db", "rwc")
	require.NoError(t, err)
	assert.Equal(t, "file:///data/study.db?mode=rwc", dsn)
}

func TestSQLite_EmptyDataset(t *testing.T) {
	want := testDataset(t)
	want.Records = nil
	path := filepath.Join(t.TempDir(), "empty.db")

	require.NoError(t, WriteSQLite(path, want))
	got, err := ReadSQLite(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWriteSQLite_OverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "study.db")

	d := testDataset(t)
	require.NoError(t, WriteSQLite(path, d))

	d.Records = d.Records[1:]
	require.NoError(t, WriteSQLite(path, d))

	got, err := ReadSQLite(path)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, "s-2", got.Records[0].SessionID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp or journal files may remain")
	assert.Equal(t, "study.db", entries[0].Name())
}

func TestWriteSQLite_Pragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "study.db")
	require.NoError(t, WriteSQLite(path, testDataset(t)))

	db, err := openReadOnly(path)
	require.NoError(t, err)
	defer db.Close()

	mode, err := pragmaValue(db, "journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "delete", mode)

	version, err := pragmaValue(db, "user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)
}

func TestWriteSQLite_StoresDerivedDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "study.db")
	require.NoError(t, WriteSQLite(path, testDataset(t)))

	db, err := openReadOnly(path)
	require.NoError(t, err)
	defer db.Close()

	var duration sql.NullFloat64
	err = db.QueryRow(`SELECT duration_seconds FROM sessions WHERE session_id = 's-1'`).Scan(&duration)
	require.NoError(t, err)
	assert.True(t, duration.Valid)
	assert.InDelta(t, 330.5, duration.Float64, 1e-9)

	err = db.QueryRow(`SELECT duration_seconds FROM sessions WHERE session_id = 's-2'`).Scan(&duration)
	require.NoError(t, err)
	assert.False(t, duration.Valid)
}

func TestWriteSQLite_InvalidRecordLeavesPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "study.db")

	d := testDataset(t)
	require.NoError(t, WriteSQLite(path, d))

	bad := d.Clone()
	bad.Records[1].SessionID = bad.Records[0].SessionID
	require.Error(t, WriteSQLite(path, bad))

	got, err := ReadSQLite(path)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadSQLite_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.db")

	_, err := ReadSQLite(path)
	require.Error(t, err)
	assert.True(t, IsNotExist(err))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "reading must not create the file")
}

func TestReadSQLite_NotADatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not sqlite, just some bytes padding the header out"), 0o644))

	_, err := ReadSQLite(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestReadSQLite_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := ReadSQLite(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
}
