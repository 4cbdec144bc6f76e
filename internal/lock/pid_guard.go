// Package lock guards against two daemon instances running against the
// same state directory at once.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/othala/othala/internal/util"
)

// PIDFileName is the lock file name written inside the state root.
const PIDFileName = ".othala.pid"

// AlreadyRunningError is returned by Acquire when a live daemon already
// holds the lock.
type AlreadyRunningError struct {
	PID int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("othala daemon already running with pid %d", e.PID)
}

// PIDGuard is a single-instance lock backed by a pid file in root.
type PIDGuard struct {
	path string
}

// New returns a guard for the state directory root.
func New(root string) *PIDGuard {
	return &PIDGuard{path: filepath.Join(root, PIDFileName)}
}

// Check reports whether a live process currently holds the lock.
func (g *PIDGuard) Check() (pid int, held bool, err error) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read pid file %s: %w", g.path, err)
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, nil
	}
	if processExists(pid) {
		return pid, true, nil
	}
	return pid, false, nil
}

// Acquire writes the current process's pid to the lock file, failing with
// *AlreadyRunningError if another live process holds it.
func (g *PIDGuard) Acquire() error {
	if pid, held, err := g.Check(); err != nil {
		return err
	} else if held {
		return &AlreadyRunningError{PID: pid}
	}
	return util.AtomicWriteFileString(g.path, strconv.Itoa(os.Getpid()), 0o644)
}

// Release removes the lock file if it still names the current process.
func (g *PIDGuard) Release() error {
	pid, held, err := g.Check()
	if err != nil {
		return err
	}
	if !held || pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file %s: %w", g.path, err)
	}
	return nil
}

// processExists reports whether a process with the given pid is alive, via
// signal 0 (no-op signal, delivery failure means the process is gone).
func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
