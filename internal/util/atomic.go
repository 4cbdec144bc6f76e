// Package util holds small filesystem helpers shared by the pid lock, the
// supervisor's heartbeat files and the scheduler's prompt files: atomic
// whole-file writes via temp-file + fsync + rename. The journal does not
// use it; it appends to its file directly.
package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to path by creating a temp file in the same
// directory, syncing it, setting perm, and renaming it into place. Rename
// within one directory is atomic on POSIX filesystems, so readers never
// observe a partially written file.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file into place at %s: %w", path, err)
	}
	return nil
}

// AtomicWriteFileString is AtomicWriteFile for string content.
func AtomicWriteFileString(path, data string, perm os.FileMode) error {
	return AtomicWriteFile(path, []byte(data), perm)
}
