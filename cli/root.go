package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the nightly-price command tree. Without a subcommand
// it starts the dashboard.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "nightly-price",
		Short: "Nightly rental price extrapolation, forecasting and pattern analysis",
		Long: `Extends nightly price series backwards in time, synthesizes forecast
window prices from prior-year analogs and reports price patterns.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWeb(cmd, "")
		},
	}

	root.AddCommand(analysisCmd())
	root.AddCommand(webCmd())
	root.AddCommand(checkDBCmd())
	return root
}

// Execute runs the command tree under ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}
