package supervisor

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitForReap(t *testing.T, s *Supervisor, taskID string, timeout time.Duration) ExitReport {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if report, ok := s.Reap(taskID); ok {
			return report
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not reap within %v", taskID, timeout)
	return ExitReport{}
}

func TestSpawnDetectsPatchReadyToken(t *testing.T) {
	dir := t.TempDir()
	s := New()
	spec := Spec{
		TaskID:       "t1",
		Argv:         []string{"sh", "-c", "echo hello; echo '[patch_ready]'"},
		WorktreePath: dir,
		LogPath:      filepath.Join(dir, "t1.log"),
	}
	if err := s.Spawn(spec); err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	report := waitForReap(t, s, "t1", 2*time.Second)
	if report.Signal != SignalPatchReady {
		t.Errorf("Signal = %q, want %q", report.Signal, SignalPatchReady)
	}
	if report.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", report.ExitCode)
	}
}

func TestSpawnDetectsNeedsHumanToken(t *testing.T) {
	dir := t.TempDir()
	s := New()
	spec := Spec{
		TaskID:       "t2",
		Argv:         []string{"sh", "-c", "echo '[needs_human]'"},
		WorktreePath: dir,
		LogPath:      filepath.Join(dir, "t2.log"),
	}
	if err := s.Spawn(spec); err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	report := waitForReap(t, s, "t2", 2*time.Second)
	if report.Signal != SignalNeedsHuman {
		t.Errorf("Signal = %q, want %q", report.Signal, SignalNeedsHuman)
	}
}

func TestSpawnCapturesNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	s := New()
	spec := Spec{
		TaskID:       "t3",
		Argv:         []string{"sh", "-c", "exit 7"},
		WorktreePath: dir,
		LogPath:      filepath.Join(dir, "t3.log"),
	}
	if err := s.Spawn(spec); err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	report := waitForReap(t, s, "t3", 2*time.Second)
	if report.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", report.ExitCode)
	}
	if report.Signal != "" {
		t.Errorf("Signal = %q, want empty", report.Signal)
	}
}

func TestReapIsNonBlockingWhileRunning(t *testing.T) {
	dir := t.TempDir()
	s := New()
	spec := Spec{
		TaskID:       "t4",
		Argv:         []string{"sh", "-c", "sleep 1; echo '[patch_ready]'"},
		WorktreePath: dir,
		LogPath:      filepath.Join(dir, "t4.log"),
	}
	if err := s.Spawn(spec); err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if _, ok := s.Reap("t4"); ok {
		t.Fatal("Reap returned ok=true for a still-running process")
	}
	if !s.IsLive("t4") {
		t.Error("IsLive = false while process is still running")
	}
	waitForReap(t, s, "t4", 3*time.Second)
}

func TestCancelIsIdempotentForUnknownTask(t *testing.T) {
	s := New()
	if err := s.Cancel("nonexistent", 10*time.Millisecond); err != nil {
		t.Errorf("Cancel on unknown task returned error: %v", err)
	}
}

func TestCancelTerminatesLiveProcess(t *testing.T) {
	dir := t.TempDir()
	s := New()
	spec := Spec{
		TaskID:       "t5",
		Argv:         []string{"sh", "-c", "sleep 30"},
		WorktreePath: dir,
		LogPath:      filepath.Join(dir, "t5.log"),
	}
	if err := s.Spawn(spec); err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if err := s.Cancel("t5", 50*time.Millisecond); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	waitForReap(t, s, "t5", 2*time.Second)
}

func TestWriteAndCheckHeartbeat(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	if err := WriteHeartbeat(dir, "task-hb", os.Getpid(), now); err != nil {
		t.Fatalf("WriteHeartbeat failed: %v", err)
	}
	orphaned, reason := CheckOrphaned(dir, "task-hb", now.Add(time.Minute))
	if orphaned {
		t.Errorf("expected not orphaned within the stale threshold, got orphaned (%s)", reason)
	}
	orphaned, reason = CheckOrphaned(dir, "task-hb", now.Add(10*time.Minute))
	if !orphaned {
		t.Error("expected orphaned past the stale threshold")
	}
	if reason == "" {
		t.Error("expected a non-empty orphan reason")
	}
}

func TestCheckOrphanedMissingHeartbeat(t *testing.T) {
	dir := t.TempDir()
	orphaned, reason := CheckOrphaned(dir, "never-ran", time.Now().UTC())
	if !orphaned {
		t.Error("expected orphaned=true for a task with no heartbeat file")
	}
	if reason == "" {
		t.Error("expected a non-empty orphan reason")
	}
}

func TestSpawnWritesHeartbeat(t *testing.T) {
	dir := t.TempDir()
	s := New()
	spec := Spec{
		TaskID:       "t6",
		Argv:         []string{"sh", "-c", "sleep 1; echo '[patch_ready]'"},
		WorktreePath: dir,
		LogPath:      filepath.Join(dir, "t6.log"),
	}
	if err := s.Spawn(spec); err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if orphaned, reason := CheckOrphaned(dir, "t6", time.Now().UTC()); orphaned {
		t.Errorf("expected a heartbeat written by Spawn, got orphaned (%s)", reason)
	}
	waitForReap(t, s, "t6", 3*time.Second)
}

func TestKillHeartbeatProcessTerminatesLiveProcess(t *testing.T) {
	dir := t.TempDir()
	s := New()
	spec := Spec{
		TaskID:       "t7",
		Argv:         []string{"sh", "-c", "sleep 30"},
		WorktreePath: dir,
		LogPath:      filepath.Join(dir, "t7.log"),
	}
	if err := s.Spawn(spec); err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if err := KillHeartbeatProcess(dir, "t7", 50*time.Millisecond); err != nil {
		t.Fatalf("KillHeartbeatProcess failed: %v", err)
	}
	waitForReap(t, s, "t7", 2*time.Second)
}

func TestKillHeartbeatProcessErrorsForUnknownTask(t *testing.T) {
	dir := t.TempDir()
	if err := KillHeartbeatProcess(dir, "nonexistent", 10*time.Millisecond); err == nil {
		t.Error("expected an error for a task with no heartbeat file")
	}
}
