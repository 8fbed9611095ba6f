package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/s33g/chatctx/internal/conversation"
	"github.com/s33g/chatctx/internal/provider"
)

func newModelsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List enabled models with their context budgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.config
			registry := provider.NewRegistry(cfg, root.logger)

			models := registry.Available()
			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No enabled models.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tNAME\tFORMAT\tWINDOW\tBUDGET\tKEY")
			for _, m := range models {
				window := "-"
				if m.ContextWindow > 0 {
					window = humanize.Comma(int64(m.ContextWindow))
				}

				_, model, _ := cfg.GetModel(m.Provider, m.ModelID)
				key := "missing"
				if m.HasAPIKey {
					key = "ok"
				} else if fb, ok := registry.FallbackModel(m.Provider, m.ModelID); ok {
					key = "fallback " + fb
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					m.Ref(), m.DisplayName, conversation.FamilyFor(m.Provider),
					window, humanize.Comma(int64(cfg.ContextBudget(model))), key)
			}
			return w.Flush()
		},
	}
}
