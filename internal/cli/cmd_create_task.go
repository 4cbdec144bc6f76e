package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/othala/othala/internal/journal"
	"github.com/othala/othala/internal/task"
)

// createTaskSpec is the JSON shape accepted by create-task --spec, per
// spec section 6.
type createTaskSpec struct {
	RepoID         string   `json:"repo_id"`
	Title          string   `json:"title"`
	Role           string   `json:"role"`
	PreferredModel string   `json:"preferred_model"`
	DependsOn      []string `json:"depends_on"`
	ParentTask     string   `json:"parent_task"`
}

func newCreateTaskCmd() *cobra.Command {
	var specJSON string
	cmd := &cobra.Command{
		Use:   "create-task",
		Short: "insert a task, validating its depends_on DAG",
		RunE: func(cmd *cobra.Command, args []string) error {
			var spec createTaskSpec
			if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
				return fmt.Errorf("bad spec: %w", err)
			}
			if spec.RepoID == "" || spec.Title == "" {
				return fmt.Errorf("bad spec: repo_id and title are required")
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Store.Close()

			now := time.Now().UTC()
			t := task.New(spec.RepoID, spec.Title, now)
			if spec.Role != "" {
				t.Role = task.Role(spec.Role)
			}
			t.PreferredModel = spec.PreferredModel
			t.ParentTask = spec.ParentTask
			for _, dep := range spec.DependsOn {
				t.AddDependency(dep)
			}

			known, err := app.Store.LoadAllTasks(cmd.Context())
			if err != nil {
				return err
			}
			knownByID := make(map[string]*task.Task, len(known))
			for _, kt := range known {
				knownByID[kt.ID] = kt
			}
			if err := task.Validate(t, knownByID); err != nil {
				return fmt.Errorf("bad spec: %w", err)
			}

			if err := app.Store.CreateTask(cmd.Context(), t); err != nil {
				return err
			}
			ev, err := journal.NewEvent(t.ID, now, journal.KindStateTransition,
				map[string]string{"from": "", "trigger": "create", "to": string(t.State)})
			if err == nil {
				_, _ = app.Store.Apply(cmd.Context(), ev, func(*task.Task) error { return nil })
			}

			if flagJSON {
				return printJSON(os.Stdout, map[string]string{"id": t.ID})
			}
			fmt.Fprintln(os.Stdout, t.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&specJSON, "spec", "", "task spec as JSON")
	cmd.MarkFlagRequired("spec")
	return cmd
}
