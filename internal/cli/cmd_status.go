package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/othala/othala/internal/othalaerr"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "one task's state, retry count, failure reason",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Store.Close()

			t, err := app.Store.LoadTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if t == nil {
				return othalaerr.ErrNotFound("task", args[0])
			}

			if asJSON {
				return printJSON(os.Stdout, t)
			}
			fmt.Printf("id:               %s\n", t.ID)
			fmt.Printf("state:            %s\n", t.State)
			fmt.Printf("retry_count:      %d\n", t.RetryCount)
			fmt.Printf("recovery_rounds:  %d\n", t.RecoveryRounds)
			if t.LastFailureClass != "" {
				fmt.Printf("last_failure_class:  %s\n", t.LastFailureClass)
				fmt.Printf("last_failure_reason: %s\n", t.LastFailureReason)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}
