package cli

import (
	"context"

	"github.com/spf13/cobra"

	"nightly-price/config"
	"nightly-price/storage"
	"nightly-price/web"
)

func webCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Start the analysis dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWeb(cmd, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default WEB_ADDR or :8080)")
	return cmd
}

func runWeb(cmd *cobra.Command, addr string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.WebAddr = addr
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a := newApp(ctx, cfg, true)
	defer a.Close()

	srv, err := web.NewServer(web.Deps{
		Fetcher:   a.fetcher,
		Pipeline:  a.pipeline,
		Exporter:  storage.NewCSVReportWriter(cfg.OutputDir, a.logger),
		Metrics:   a.recorder,
		EntityIDs: cfg.EntityIDs,
		RunLimit:  cfg.RunHistorySize,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}
	a.logger.Info("Starting Nightly Price dashboard at http://%s", displayAddr(cfg.WebAddr))
	return srv.ListenAndServe(ctx, cfg.WebAddr)
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
