package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/othala/othala/internal/journal"
	"github.com/othala/othala/internal/othalaerr"
	"github.com/othala/othala/internal/task"
)

var validVerdicts = map[string]bool{
	"approve":         true,
	"request_changes": true,
	"block":           true,
}

func newReviewApproveCmd() *cobra.Command {
	var (
		taskID   string
		reviewer string
		verdict  string
	)
	cmd := &cobra.Command{
		Use:   "review-approve",
		Short: "record a reviewer's verdict against a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !validVerdicts[verdict] {
				return fmt.Errorf("bad verdict %q: want approve, request_changes, or block", verdict)
			}
			if reviewer == "" {
				return fmt.Errorf("--reviewer is required")
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Store.Close()

			t, err := app.Store.LoadTask(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			if t == nil {
				return othalaerr.ErrNotFound("task", taskID)
			}

			now := time.Now().UTC()
			ev, err := journal.NewEvent(t.ID, now, journal.KindReview,
				map[string]string{"reviewer": reviewer, "verdict": verdict})
			if err != nil {
				return err
			}
			_, err = app.Store.Apply(cmd.Context(), ev, func(*task.Task) error { return nil })
			return err
		},
	}
	cmd.Flags().StringVar(&taskID, "task-id", "", "task id")
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer identity")
	cmd.Flags().StringVar(&verdict, "verdict", "", "approve | request_changes | block")
	cmd.MarkFlagRequired("task-id")
	cmd.MarkFlagRequired("verdict")
	return cmd
}
