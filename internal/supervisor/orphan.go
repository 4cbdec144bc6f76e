package supervisor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/othala/othala/internal/util"
)

// A Supervisor's in-memory handles do not survive a daemon restart, so
// Spawn also writes a small heartbeat file recording the process's pid;
// CheckOrphaned and KillHeartbeatProcess read it back. Ported from the teacher lineage's CheckOrphaned/IsPIDAlive
// orphan-detection pair (originally part of its Ralph-phase state
// package), generalized here from "phase state" to "per-task supervisor
// heartbeat".

const staleHeartbeatThreshold = 5 * time.Minute

func heartbeatPath(logDir, taskID string) string {
	return logDir + "/" + taskID + ".heartbeat"
}

// WriteHeartbeat records the supervised process's pid and the current
// time, so a restarted daemon can tell a live process from an orphan.
func WriteHeartbeat(logDir, taskID string, pid int, now time.Time) error {
	content := fmt.Sprintf("%d\n%s\n", pid, now.UTC().Format(time.RFC3339Nano))
	return util.AtomicWriteFileString(heartbeatPath(logDir, taskID), content, 0o644)
}

// CheckOrphaned reports whether the task named by taskID appears to have
// an orphaned supervisor: no heartbeat file, a dead pid, or a heartbeat
// older than the stale threshold. The scheduler does not call it: after a
// daemon restart, a CHATTING task with no in-memory handle is dispatched
// again without an orphan check.
func CheckOrphaned(logDir, taskID string, now time.Time) (orphaned bool, reason string) {
	pid, lastHeartbeat, ok, reason := readHeartbeat(logDir, taskID)
	if !ok {
		return true, reason
	}
	if !isPIDAlive(pid) {
		return true, "supervised process not running"
	}
	if now.Sub(lastHeartbeat) > staleHeartbeatThreshold {
		return true, "heartbeat stale (>5 minutes)"
	}
	return false, ""
}

// readHeartbeat parses the heartbeat file for taskID. ok is false if the
// file is missing or malformed, with reason explaining why.
func readHeartbeat(logDir, taskID string) (pid int, ts time.Time, ok bool, reason string) {
	data, err := os.ReadFile(heartbeatPath(logDir, taskID))
	if err != nil {
		return 0, time.Time{}, false, "no heartbeat file (legacy or incomplete state)"
	}
	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	if len(lines) != 2 {
		return 0, time.Time{}, false, "malformed heartbeat file"
	}
	pid, err = strconv.Atoi(lines[0])
	if err != nil {
		return 0, time.Time{}, false, "malformed heartbeat pid"
	}
	ts, err = time.Parse(time.RFC3339Nano, lines[1])
	if err != nil {
		return 0, time.Time{}, false, "malformed heartbeat timestamp"
	}
	return pid, ts, true, ""
}

// KillHeartbeatProcess signals the subprocess recorded in taskID's
// heartbeat file: SIGTERM, then SIGKILL if it is still alive after grace.
// This is how a CLI process (no access to the daemon's in-memory
// Supervisor) tears down a live supervised subprocess, mirroring
// Supervisor.Cancel's same-process behavior.
func KillHeartbeatProcess(logDir, taskID string, grace time.Duration) error {
	pid, _, ok, reason := readHeartbeat(logDir, taskID)
	if !ok {
		return fmt.Errorf("read heartbeat for %s: %s", taskID, reason)
	}
	if !isPIDAlive(pid) {
		return nil // already exited: idempotent no-op
	}
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal process group %d: %w", pid, err)
	}
	time.Sleep(grace)
	if isPIDAlive(pid) {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
	return nil
}

func isPIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
