package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/othala/othala/internal/git"
	"github.com/othala/othala/internal/task"
)

// newChatCmd groups the two "chat" convenience commands of spec section 6:
// chat new and chat list.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "convenience commands for starting and listing conversational tasks",
	}
	cmd.AddCommand(newChatNewCmd())
	cmd.AddCommand(newChatListCmd())
	return cmd
}

func newChatNewCmd() *cobra.Command {
	var (
		repoID string
		title  string
		model  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "new",
		Short: "create a task and return its branch name and worktree path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if repoID == "" || title == "" {
				return fmt.Errorf("bad spec: --repo and --title are required")
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Store.Close()

			now := time.Now().UTC()
			t := task.New(repoID, title, now)
			if model != "" {
				t.PreferredModel = model
			}
			t.Branch = git.BranchName(t.ID, t.Title)
			t.WorktreePath = git.WorktreePath(app.Root, t.Branch)

			if err := app.Store.CreateTask(cmd.Context(), t); err != nil {
				return err
			}

			result := map[string]string{
				"id":            t.ID,
				"branch_name":   t.Branch,
				"worktree_path": t.WorktreePath,
			}
			if asJSON {
				return printJSON(os.Stdout, result)
			}
			fmt.Fprintf(os.Stdout, "id:            %s\n", result["id"])
			fmt.Fprintf(os.Stdout, "branch_name:   %s\n", result["branch_name"])
			fmt.Fprintf(os.Stdout, "worktree_path: %s\n", result["worktree_path"])
			return nil
		},
	}
	cmd.Flags().StringVar(&repoID, "repo", "", "repo id")
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&model, "model", "", "preferred model")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func newChatListCmd() *cobra.Command {
	var (
		repoID string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "tasks filtered to one repo",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Store.Close()

			all, err := app.Store.LoadAllTasks(cmd.Context())
			if err != nil {
				return err
			}
			var filtered []*task.Task
			for _, t := range all {
				if repoID == "" || t.RepoID == repoID {
					filtered = append(filtered, t)
				}
			}

			if asJSON {
				return printJSON(os.Stdout, filtered)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tSTATE\tBRANCH")
			for _, t := range filtered {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Title, t.State, t.Branch)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&repoID, "repo", "", "filter to this repo id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}
