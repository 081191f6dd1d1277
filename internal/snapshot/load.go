package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/sessionstore/internal/record"
)

// Format identifies a snapshot encoding.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatSQLite Format = "sqlite"
)

// Ext returns the file extension, including the dot, used for f.
func (f Format) Ext() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatSQLite:
		return ".db"
	default:
		return ""
	}
}

// DetectFormat infers the snapshot format from a path's extension.
// Anything that is not .csv is treated as binary.
func DetectFormat(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return FormatCSV
	}
	return FormatSQLite
}

// Write persists d at path in the given format.
func Write(path string, f Format, d record.Dataset) error {
	switch f {
	case FormatCSV:
		return WriteCSV(path, d)
	case FormatSQLite:
		return WriteSQLite(path, d)
	default:
		return fmt.Errorf("unknown snapshot format %q", f)
	}
}

// Load reads a snapshot, choosing the decoder from the path's extension.
func Load(path string) (record.Dataset, error) {
	if DetectFormat(path) == FormatCSV {
		return ReadCSV(path)
	}
	return ReadSQLite(path)
}

// IsNotExist reports whether err means the snapshot file is missing.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
