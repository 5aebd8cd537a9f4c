package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"nightly-price/config"
)

func checkDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-db",
		Short: "Check the PostgreSQL connection and describe the price table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a := newApp(ctx, cfg, false)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Connecting to %s:%s/%s as %s...\n", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB, cfg.PostgresUser)

			store, err := a.connect(ctx, 1)
			if err != nil {
				fmt.Fprintln(out, "  FAILED")
				return err
			}
			defer store.Close()

			if err := store.Ping(ctx); err != nil {
				return err
			}
			info, err := store.Describe(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "  OK")
			fmt.Fprintf(out, "  Table:      %s\n", info.Table)
			fmt.Fprintf(out, "  Rows:       %d\n", info.Rows)
			fmt.Fprintf(out, "  Properties: %d\n", info.Entities)
			if info.Rows > 0 {
				fmt.Fprintf(out, "  Dates:      %s to %s\n", info.First.Format("2006-01-02"), info.Last.Format("2006-01-02"))
			}
			return nil
		},
	}
}
