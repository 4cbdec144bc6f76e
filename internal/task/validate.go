package task

import "github.com/othala/othala/internal/othalaerr"

// Validate checks invariants that must hold before a task is admitted into
// the store: its depends_on set must not introduce a cycle across the
// supplied set of known tasks (the DAG is checked across all live tasks,
// spec section 3 invariant).
func Validate(t *Task, known map[string]*Task) error {
	if t.ID == "" {
		return othalaerr.New("invalid_task", othalaerr.CategoryValidation, "task id is empty")
	}
	if t.RepoID == "" {
		return othalaerr.New("invalid_task", othalaerr.CategoryValidation, "task repo_id is empty")
	}
	if !t.State.Valid() {
		return othalaerr.New("invalid_task", othalaerr.CategoryValidation, "task state is not recognized")
	}

	merged := make(map[string]*Task, len(known)+1)
	for id, kt := range known {
		merged[id] = kt
	}
	merged[t.ID] = t

	if cyclePath := findCycle(t.ID, merged); cyclePath != nil {
		return othalaerr.ErrCyclicDependency(t.ID)
	}
	return nil
}

// findCycle runs a DFS from start across the depends_on edges in tasks,
// returning a non-nil path when a cycle is reachable from start.
func findCycle(start string, tasks map[string]*Task) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	var path []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		path = append(path, id)

		t, ok := tasks[id]
		if ok {
			for dep := range t.DependsOn {
				switch color[dep] {
				case gray:
					return append(append([]string{}, path...), dep)
				case white:
					if cyc := visit(dep); cyc != nil {
						return cyc
					}
				}
			}
		}

		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	return visit(start)
}
