package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/s33g/chatctx/internal/thread"
)

func newThreadsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Manage stored threads",
	}

	cmd.AddCommand(newThreadsListCmd(root))
	cmd.AddCommand(newThreadsNewCmd(root))
	cmd.AddCommand(newThreadsShowCmd(root))
	cmd.AddCommand(newThreadsDeleteCmd(root))

	return cmd
}

func newThreadsListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List threads grouped by day, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}

			threads, err := app.store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(threads) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No threads.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, group := range thread.GroupByDate(threads) {
				fmt.Fprintf(w, "%s\n", group.Date)
				for _, t := range group.Threads {
					fmt.Fprintf(w, "  %s\t%s\t%s/%s\t%s\n",
						t.ID, t.Title, t.Provider, t.Model, humanize.Time(t.UpdatedAt))
				}
			}
			return w.Flush()
		},
	}
}

func newThreadsNewCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "new [title]",
		Short: "Create an empty thread",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}

			title := ""
			if len(args) == 1 {
				title = args[0]
			}

			t, err := app.service.NewThread(cmd.Context(), title)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), t.ID)
			return nil
		},
	}
}

func newThreadsShowCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <thread-id>",
		Short: "Print a thread and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}

			t, err := app.store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			msgs, err := app.store.Messages(cmd.Context(), t.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s\n", t.ID, t.Title)
			fmt.Fprintf(out, "model: %s/%s  tokens: %s  updated: %s\n",
				t.Provider, t.Model, humanize.Comma(int64(t.TokenCount)), humanize.Time(t.UpdatedAt))
			if t.SystemPrompt != "" {
				fmt.Fprintf(out, "system: %s\n", t.SystemPrompt)
			}
			fmt.Fprintln(out)

			for _, m := range msgs {
				fmt.Fprintf(out, "[%s] %s\n", m.Sender, m.Content)
				for _, f := range m.Files {
					fmt.Fprintf(out, "    + %s (%s, %s)\n", f.Name, f.Type, humanize.Bytes(uint64(f.Size)))
				}
			}
			return nil
		},
	}
}

func newThreadsDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <thread-id>...",
		Short: "Delete threads and their messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := root.openApp(cmd.Context())
			if err != nil {
				return err
			}

			var failed []string
			for _, id := range args {
				if err := app.store.Delete(cmd.Context(), id); err != nil {
					failed = append(failed, fmt.Sprintf("%s: %v", id, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}

			if len(failed) > 0 {
				return fmt.Errorf("failed to delete: %s", strings.Join(failed, "; "))
			}
			return nil
		},
	}
}
