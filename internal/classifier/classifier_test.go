package classifier

import (
	"testing"

	"github.com/othala/othala/internal/task"
)

func TestClassifyTransientNetwork(t *testing.T) {
	got := Classify(ExitTuple{ExitCode: 1, LogTrailer: "Error: dns lookup failed for host"})
	if got != task.ClassTransient {
		t.Errorf("got %s, want transient", got)
	}
}

func TestClassifyPermission(t *testing.T) {
	got := Classify(ExitTuple{ExitCode: 1, LogTrailer: "remote: 401 Unauthorized"})
	if got != task.ClassPermission {
		t.Errorf("got %s, want permission", got)
	}
}

func TestClassifyNeedsHumanSignalToken(t *testing.T) {
	got := Classify(ExitTuple{ExitCode: 0, SignalToken: "[needs_human]"})
	if got != task.ClassPermission {
		t.Errorf("got %s, want permission (agent explicitly asked for a human)", got)
	}
}

func TestClassifyLogicFromFailingVerify(t *testing.T) {
	got := Classify(ExitTuple{
		ExitCode:     1,
		SignalToken:  "[patch_ready]",
		VerifyOutput: "FAIL: TestLoginRedirect\n1 error, 0 passed",
	})
	if got != task.ClassLogic {
		t.Errorf("got %s, want logic", got)
	}
}

func TestClassifyAvoidsNoErrorFalsePositive(t *testing.T) {
	got := Classify(ExitTuple{
		ExitCode:     0,
		SignalToken:  "[patch_ready]",
		VerifyOutput: "All tests passed, no errors, no failures",
	})
	if got == task.ClassLogic {
		t.Errorf("'no errors' line was misclassified as logic failure")
	}
}

func TestClassifyMissingTokenIsUnknown(t *testing.T) {
	got := Classify(ExitTuple{ExitCode: 0})
	if got != task.ClassUnknown {
		t.Errorf("got %s, want unknown for a clean exit with no signal token", got)
	}
}

func TestClassifyJSONVerifyOutput(t *testing.T) {
	got := Classify(ExitTuple{
		ExitCode:     1,
		SignalToken:  "[patch_ready]",
		VerifyOutput: `{"status":"fail","reason":"3 tests failed"}`,
	})
	if got != task.ClassLogic {
		t.Errorf("got %s, want logic from JSON verify output", got)
	}
}

func TestDecideRespectsCeilings(t *testing.T) {
	if a := Decide(task.ClassTransient, 5, 0, 5, 2); a != ActionStop {
		t.Errorf("expected stop at retry ceiling, got %s", a)
	}
	if a := Decide(task.ClassLogic, 0, 2, 5, 2); a != ActionEscalateHuman {
		t.Errorf("expected escalate at recovery ceiling, got %s", a)
	}
	if a := Decide(task.ClassUnknown, 0, 1, 5, 2); a != ActionEscalateHuman {
		t.Errorf("expected unknown to escalate one round earlier than logic, got %s", a)
	}
	if a := Decide(task.ClassPermission, 0, 0, 5, 2); a != ActionEscalateHuman {
		t.Errorf("permission must never retry, got %s", a)
	}
}
