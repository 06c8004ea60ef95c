package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/rulecontext-mcp/pkg/types"
)

func newAskCmd(flags *globalFlags) *cobra.Command {
	var (
		focus      string
		maxSources int
		projectID  string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask which business rules relate to a question",
		Example: `  rulecontext ask "Onde alterar o cálculo de horas para PJ?" --focus TECHNICAL
  rulecontext ask "limite do pix" --project aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := flags.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			resp, err := a.Searcher.Search(cmd.Context(), types.RetrievalRequest{
				Question:   strings.Join(args, " "),
				Focus:      types.Focus(focus),
				MaxSources: maxSources,
				ProjectID:  projectID,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&focus, "focus", string(types.FocusBusiness), "Answer audience: BUSINESS, TECHNICAL or EXECUTIVE")
	cmd.Flags().IntVar(&maxSources, "max-sources", types.DefaultMaxSources, "Maximum number of rules to return (1-10)")
	cmd.Flags().StringVar(&projectID, "project", "", "Restrict results to a project's rules")
	return cmd
}
