package pipeline

import (
	"context"
	"testing"

	"github.com/othala/othala/internal/config"
	"github.com/othala/othala/internal/task"
)

func TestParentBranchResolvesParentTaskToItsBranch(t *testing.T) {
	parent := &task.Task{ID: "parent-1", Branch: "othala/parent-1"}
	lookup := func(ctx context.Context, id string) (*task.Task, error) {
		if id == parent.ID {
			return parent, nil
		}
		return nil, nil
	}
	p := New(&config.Config{}, nil, nil, lookup)

	child := &task.Task{ID: "child-1", ParentTask: parent.ID}
	got := p.parentBranch(context.Background(), child, "main")
	if got != parent.Branch {
		t.Errorf("parentBranch = %q, want parent's branch %q", got, parent.Branch)
	}
}

func TestParentBranchFallsBackWithNoParent(t *testing.T) {
	p := New(&config.Config{}, nil, nil, nil)
	standalone := &task.Task{ID: "solo"}
	got := p.parentBranch(context.Background(), standalone, "main")
	if got != "main" {
		t.Errorf("parentBranch = %q, want fallback %q", got, "main")
	}
}

func TestParentBranchFallsBackWhenLookupFails(t *testing.T) {
	lookup := func(ctx context.Context, id string) (*task.Task, error) {
		return nil, nil
	}
	p := New(&config.Config{}, nil, nil, lookup)
	child := &task.Task{ID: "child-1", ParentTask: "missing-parent"}
	got := p.parentBranch(context.Background(), child, "main")
	if got != "main" {
		t.Errorf("parentBranch = %q, want fallback %q when parent can't be resolved", got, "main")
	}
}
