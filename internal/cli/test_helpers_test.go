package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const studyYAML = `name: hilfo
study_type: personality
language: de
demographics: [age, gender, semester]
item_bank:
  ids: [q1, q2, q3]
batch_size: 2
`

const flowCUE = `name: "flow-study"
custom_flow: true
item_bank: count: 2
`

// writeFile writes content to name inside a fresh temp dir and returns the
// path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
