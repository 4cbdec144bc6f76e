package classifier

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/othala/othala/internal/journal"
	"github.com/othala/othala/internal/task"
)

func mustEvent(t *testing.T, taskID string, kind journal.Kind, payload any) journal.Event {
	t.Helper()
	ev, err := journal.NewEvent(taskID, time.Now().UTC(), kind, payload)
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	return ev
}

func TestBuildRecoveryContextOrdersAttempts(t *testing.T) {
	events := []journal.Event{
		mustEvent(t, "t1", journal.KindSpawn, map[string]string{"role": "implementer", "model": "m1"}),
		mustEvent(t, "t1", journal.KindExit, map[string]string{"log_trailer": "build failed: undefined reference"}),
		mustEvent(t, "t1", journal.KindClassification, map[string]string{"class": "compile", "reason": "build failed"}),
		mustEvent(t, "t1", journal.KindSpawn, map[string]string{"role": "implementer", "model": "m1"}),
		mustEvent(t, "t1", journal.KindExit, map[string]string{"log_trailer": "FAIL: TestLogin"}),
		mustEvent(t, "t1", journal.KindClassification, map[string]string{"class": "logic", "reason": "FAIL: TestLogin"}),
	}

	rc := BuildRecoveryContext("t1", "fix login bug", events, []string{"auth/login.go"})
	if len(rc.Attempts) != 2 {
		t.Fatalf("got %d attempts, want 2", len(rc.Attempts))
	}
	if rc.Attempts[0].Class != task.ClassCompile {
		t.Errorf("first attempt class = %s, want compile", rc.Attempts[0].Class)
	}
	if rc.Attempts[1].Class != task.ClassLogic {
		t.Errorf("second attempt class = %s, want logic", rc.Attempts[1].Class)
	}
	if rc.Attempts[0].Trailer == "" {
		t.Error("expected first attempt to carry its exit trailer")
	}
}

func TestRecoveryContextRenderIncludesAttemptsAndFiles(t *testing.T) {
	rc := RecoveryContext{
		TaskTitle: "fix login bug",
		Attempts: []Attempt{
			{Role: task.RoleImplementer, Model: "m1", Class: task.ClassCompile, Reason: "build failed", Trailer: "undefined reference to foo"},
		},
		FilesTouched: []string{"auth/login.go"},
	}
	out := rc.Render()
	if !strings.Contains(out, "fix login bug") {
		t.Error("rendered context missing task title")
	}
	if !strings.Contains(out, "do not repeat a failed strategy") {
		t.Error("rendered context missing the do-not-repeat invariant")
	}
	if !strings.Contains(out, "undefined reference to foo") {
		t.Error("rendered context missing the prior attempt's trailer")
	}
	if !strings.Contains(out, "auth/login.go") {
		t.Error("rendered context missing files touched")
	}
}

func TestRecoveryContextRenderHandlesNoAttempts(t *testing.T) {
	rc := RecoveryContext{TaskTitle: "fresh task"}
	out := rc.Render()
	if !strings.Contains(out, "fresh task") {
		t.Error("rendered context missing task title")
	}
	if strings.Contains(out, "Prior attempts") {
		t.Error("rendered context should omit the attempts section when there are none")
	}
}

func TestBuildRecoveryContextIgnoresMalformedPayload(t *testing.T) {
	raw, _ := json.Marshal("not an object")
	ev := journal.Event{TaskID: "t1", Kind: journal.KindSpawn, Payload: raw}
	rc := BuildRecoveryContext("t1", "title", []journal.Event{ev}, nil)
	if len(rc.Attempts) != 1 {
		t.Fatalf("got %d attempts, want 1 even with malformed payload", len(rc.Attempts))
	}
}
