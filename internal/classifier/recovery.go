package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/othala/othala/internal/journal"
	"github.com/othala/othala/internal/task"
)

// Attempt is one prior spawn/exit/classification cycle for a task, as
// recovered from its journal history.
type Attempt struct {
	Role    task.Role
	Model   string
	Class   task.FailureClass
	Reason  string
	Trailer string
}

// RecoveryContext is the original task plus its ordered attempt history and
// the files its branch has touched so far, assembled for a deep-recovery
// spawn per spec section 4.4: "prior attempts, in order, with enough of
// each failure to let the recovery role avoid repeating a failed
// strategy."
type RecoveryContext struct {
	TaskID       string
	TaskTitle    string
	Attempts     []Attempt
	FilesTouched []string
}

// BuildRecoveryContext replays taskID's journal history into a
// RecoveryContext. events must be in chronological order (internal/store's
// TaskEvents already returns them that way).
func BuildRecoveryContext(taskID, title string, events []journal.Event, filesTouched []string) RecoveryContext {
	ctx := RecoveryContext{TaskID: taskID, TaskTitle: title, FilesTouched: filesTouched}

	var cur *Attempt
	for _, ev := range events {
		switch ev.Kind {
		case journal.KindSpawn:
			if cur != nil {
				ctx.Attempts = append(ctx.Attempts, *cur)
			}
			var p struct {
				Role  string `json:"role"`
				Model string `json:"model"`
			}
			_ = json.Unmarshal(ev.Payload, &p)
			cur = &Attempt{Role: task.Role(p.Role), Model: p.Model}
		case journal.KindExit:
			if cur == nil {
				continue
			}
			var p struct {
				LogTrailer string `json:"log_trailer"`
			}
			_ = json.Unmarshal(ev.Payload, &p)
			cur.Trailer = p.LogTrailer
		case journal.KindClassification:
			if cur == nil {
				continue
			}
			var p struct {
				Class  string `json:"class"`
				Reason string `json:"reason"`
			}
			_ = json.Unmarshal(ev.Payload, &p)
			cur.Class = task.FailureClass(p.Class)
			cur.Reason = p.Reason
		}
	}
	if cur != nil {
		ctx.Attempts = append(ctx.Attempts, *cur)
	}
	return ctx
}

// trailerSnippetLimit bounds how much of a stored log trailer is quoted
// back into a rendered prompt, so a deep-recovery round's context doesn't
// grow unbounded across many prior attempts.
const trailerSnippetLimit = 400

// Render renders c as the prompt-file body for a deep-recovery spawn: the
// original task, every prior attempt's role/model/class/trailer, and an
// explicit instruction not to repeat a failed strategy.
func (c RecoveryContext) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original task: %s\n\n", c.TaskTitle)

	if len(c.Attempts) > 0 {
		b.WriteString("Prior attempts, oldest first; do not repeat a failed strategy:\n")
		for i, a := range c.Attempts {
			fmt.Fprintf(&b, "%d. role=%s model=%s class=%s\n", i+1, a.Role, a.Model, a.Class)
			if a.Reason != "" {
				fmt.Fprintf(&b, "   reason: %s\n", a.Reason)
			}
			if trailer := snippet(a.Trailer, trailerSnippetLimit); trailer != "" {
				fmt.Fprintf(&b, "   log trailer: %s\n", trailer)
			}
		}
		b.WriteString("\n")
	}

	if len(c.FilesTouched) > 0 {
		b.WriteString("Files touched so far:\n")
		for _, f := range c.FilesTouched {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}

func snippet(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[len(s)-limit:]
}
