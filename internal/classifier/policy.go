package classifier

import "github.com/othala/othala/internal/task"

// Action is what the scheduler's recovery phase should do for a
// classified failure, per the default-policy table in spec section 4.4.
type Action string

const (
	ActionRetrySameRole  Action = "retry_same_role"  // transient: retry with backoff
	ActionRespawnSame    Action = "respawn_same"     // compile: respawn same role, inject trailer
	ActionDeepRecovery   Action = "deep_recovery"     // logic/unknown: spawn recovery role
	ActionEnvReprobe     Action = "env_reprobe"       // env: one retry; no separate environment re-probe is run before it
	ActionEscalateHuman  Action = "escalate_human"    // permission/trunk_stale: NEEDS_HUMAN
	ActionRetryDoubled   Action = "retry_doubled"     // timeout: one retry with doubled timeout
	ActionStop           Action = "stop"              // ceilings exhausted
)

// Decide maps a classified failure plus the task's current counters to the
// action the recovery phase should take. It mirrors the per-class default
// policy table verbatim; ceilings (MAX_ATTEMPTS, MAX_RECOVERY) are checked
// here since they are data the pure Classify() function must not read.
func Decide(class task.FailureClass, retryCount, recoveryRounds, maxAttempts, maxRecovery int) Action {
	switch class {
	case task.ClassTransient:
		if retryCount >= maxAttempts {
			return ActionStop
		}
		return ActionRetrySameRole
	case task.ClassCompile:
		if retryCount >= maxAttempts {
			return ActionStop
		}
		return ActionRespawnSame
	case task.ClassLogic, task.ClassUnknown:
		rounds := recoveryRounds
		limit := maxRecovery
		if class == task.ClassUnknown {
			// spec 4.4: "treat as logic but with one fewer recovery round
			// allowed."
			limit--
		}
		if rounds >= limit {
			return ActionEscalateHuman
		}
		return ActionDeepRecovery
	case task.ClassEnv:
		if retryCount >= 1 || retryCount >= maxAttempts {
			return ActionEscalateHuman
		}
		return ActionEnvReprobe
	case task.ClassPermission, task.ClassTrunkStale:
		return ActionEscalateHuman
	case task.ClassTimeout:
		if retryCount >= 1 || retryCount >= maxAttempts {
			return ActionStop
		}
		return ActionRetryDoubled
	default:
		return ActionEscalateHuman
	}
}
