package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// WriteFileAtomic replaces path with content. The data is written and
// fsynced to a temporary file in the same directory and renamed over path.
func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	return replaceAtomic(path, mode, func(tempPath string) error {
		// #nosec G304 -- temp path is created by os.CreateTemp in the destination directory.
		f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_TRUNC, mode)
		if err != nil {
			return fmt.Errorf("open temp file: %w", err)
		}
		if _, err := f.Write(content); err != nil {
			_ = f.Close()
			return fmt.Errorf("write temp file: %w", err)
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return fmt.Errorf("sync temp file: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close temp file: %w", err)
		}
		return nil
	})
}

// replaceAtomic reserves a temporary file next to path, lets fill populate
// it, then renames it over path. The temporary file is removed on failure.
func replaceAtomic(path string, mode os.FileMode, fill func(tempPath string) error) error {
	parent := filepath.Dir(path)
	base := filepath.Base(path)

	if err := os.MkdirAll(parent, 0o750); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	tempFile, err := os.CreateTemp(parent, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempPath)
		}
	}()

	if err := fill(tempPath); err != nil {
		return err
	}
	if err := os.Chmod(tempPath, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS != "windows" {
			return fmt.Errorf("rename temp file: %w", err)
		}
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("remove destination before rename: %w", removeErr)
		}
		if renameErr := os.Rename(tempPath, path); renameErr != nil {
			return fmt.Errorf("rename temp file after remove: %w", renameErr)
		}
	}
	cleanup = false

	syncDirectory(parent)
	return nil
}

func syncDirectory(dir string) {
	// #nosec G304 -- directory is the parent of a caller-provided snapshot path.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
}
