package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatCSV, DetectFormat("a/b/study.csv"))
	assert.Equal(t, FormatCSV, DetectFormat("STUDY.CSV"))
	assert.Equal(t, FormatSQLite, DetectFormat("study.db"))
	assert.Equal(t, FormatSQLite, DetectFormat("study"))
	assert.Equal(t, ".csv", FormatCSV.Ext())
	assert.Equal(t, ".db", FormatSQLite.Ext())
}

func TestWriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	want := flowDataset(t)

	for _, f := range []Format{FormatCSV, FormatSQLite} {
		path := filepath.Join(dir, "study"+f.Ext())
		require.NoError(t, Write(path, f, want))

		got, err := Load(path)
		require.NoError(t, err, f)
		assert.Equal(t, want, got, f)
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "x"), Format("xml"), testDataset(t))
	require.Error(t, err)
}

func TestWriteFileAtomic_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "file.txt")
	require.NoError(t, WriteFileAtomic(path, []byte("hello"), 0o600))

	got, err := readFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	return string(b), err
}
