// Package classifier implements the pure failure-classification function
// of spec section 4.4: a closed taxonomy mapped from an agent's exit
// tuple, with no mutable state read, so replay of the event journal
// reproduces the same classification (law L2).
package classifier

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/othala/othala/internal/task"
)

// ExitTuple is exactly the input classify() is defined over in spec
// section 4.4: "a pure function of (exit_code, signal, trailer,
// verify_output)".
type ExitTuple struct {
	ExitCode     int
	SignalToken  string // "[patch_ready]" | "[needs_human]" | "[qa_complete]" | ""
	LogTrailer   string // last 4KB of combined stdout+stderr
	VerifyOutput string // raw output of the verify command, if one ran
}

var transientMarkers = []string{
	"network error", "dns lookup", "connection reset", "rate limit", "429 too many requests",
	"temporary failure", "i/o timeout", "econnreset",
}

var envMarkers = []string{
	"command not found", "not found in path", "no such file or directory: nix",
	"nix-shell", "nix shell error", "executable file not found",
}

var permissionMarkers = []string{
	"401 unauthorized", "403 forbidden", "authentication failed", "permission denied (publickey)",
	"bad credentials",
}

var trunkStaleMarkers = []string{
	"base branch is ahead", "non-fast-forward", "remote contains work that you do",
	"trunk is ahead", "stale base",
}

var compileMarkers = []string{
	"build failed", "compilation error", "syntax error", "undefined reference", "cannot find package",
}

func containsAny(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// isErrorLine reports whether a line of output indicates a genuine error,
// avoiding false positives like "no error" or "0 errors" — grounded on the
// same deliberate care the teacher lineage's retry-context builder takes.
func isErrorLine(line string) bool {
	lower := strings.ToLower(line)
	if !strings.Contains(lower, "error") && !strings.Contains(lower, "fail") {
		return false
	}
	for _, negated := range []string{"no error", "0 error", "no failures", "0 failures", "without error"} {
		if strings.Contains(lower, negated) {
			return false
		}
	}
	return true
}

// Classify is the closed-taxonomy pure function named in spec section 4.4.
// It reads only its arguments.
func Classify(t ExitTuple) task.FailureClass {
	if t.SignalToken == "[needs_human]" {
		return task.ClassPermission
	}

	combined := t.LogTrailer + "\n" + t.VerifyOutput

	if t.ExitCode == 0 && t.SignalToken == "" {
		// Process exited cleanly but never emitted a required signal
		// token: spec section 9 design note, "classifier treats missing
		// tokens as unknown".
		return task.ClassUnknown
	}

	if containsAny(combined, permissionMarkers) {
		return task.ClassPermission
	}
	if containsAny(combined, trunkStaleMarkers) {
		return task.ClassTrunkStale
	}
	if containsAny(combined, transientMarkers) {
		return task.ClassTransient
	}
	if containsAny(combined, envMarkers) {
		return task.ClassEnv
	}
	if containsAny(combined, compileMarkers) {
		return task.ClassCompile
	}

	if hasFailingVerifyLine(t.VerifyOutput) {
		return task.ClassLogic
	}

	return task.ClassUnknown
}

// hasFailingVerifyLine scans verify output line by line for a genuine
// error/failure report, and also handles JSON-shaped tool output (e.g.
// `{"status":"fail","reason":"..."}`) via gjson rather than a bespoke
// parser.
func hasFailingVerifyLine(verifyOutput string) bool {
	if verifyOutput == "" {
		return false
	}
	if gjson.Valid(verifyOutput) {
		status := gjson.Get(verifyOutput, "status")
		if status.Exists() {
			return strings.EqualFold(status.String(), "fail") || strings.EqualFold(status.String(), "failed")
		}
	}
	for _, line := range strings.Split(verifyOutput, "\n") {
		if isErrorLine(line) {
			return true
		}
	}
	return false
}

// ClassifyTimeout is called by the supervisor/reaper directly when a task
// exceeded its wall-clock or idle timeout, bypassing exit-tuple inspection
// entirely (spec section 4.3: "Timeouts are reported as exit with a
// synthetic class timeout").
func ClassifyTimeout() task.FailureClass {
	return task.ClassTimeout
}
