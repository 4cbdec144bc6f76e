package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-tasks",
		Short: "snapshot of all tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Store.Close()

			tasks, err := app.Store.LoadAllTasks(cmd.Context())
			if err != nil {
				return err
			}

			if flagJSON {
				return printJSON(os.Stdout, tasks)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tREPO\tSTATE\tROLE\tRETRY\tRECOVERY")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n", t.ID, t.RepoID, t.State, t.Role, t.RetryCount, t.RecoveryRounds)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&flagJSON, "json", false, "emit JSON")
	return cmd
}
