package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nightly-price/config"
	"nightly-price/models"
	"nightly-price/services"
	"nightly-price/storage"
	"nightly-price/utils"
	"nightly-price/visualization"
)

type analysisFlags struct {
	fetch        bool
	noCache      bool
	fallback     bool
	outputDir    string
	cacheDir     string
	entities     string
	storeMatches bool
}

func analysisCmd() *cobra.Command {
	var f analysisFlags
	cmd := &cobra.Command{
		Use:   "analysis",
		Short: "Run the full analysis once and write reports",
		Long: `Loads nightly prices (cache, database or both), extends and forecasts them,
then writes CSV files, an Excel workbook, charts and optionally a PDF report.
If the run fails on freshly fetched data it is retried once on the cache.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.OutputDir = f.outputDir
			}
			if cmd.Flags().Changed("cache-dir") {
				cfg.CacheDir = f.cacheDir
			}
			if f.entities != "" {
				cfg.EntityIDs = splitList(f.entities)
			}
			return runAnalysis(cmd, cfg, f)
		},
	}

	cmd.Flags().BoolVar(&f.fetch, "fetch", false, "Query the database even when a cache file exists")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "Never read the cache file")
	cmd.Flags().BoolVar(&f.fallback, "fallback", false, "Use the cache file only, skipping the database")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "output", "Directory for reports and charts")
	cmd.Flags().StringVar(&f.cacheDir, "cache-dir", "data", "Directory holding the price cache")
	cmd.Flags().StringVar(&f.entities, "entities", "", "Comma-separated property ids (default: all)")
	cmd.Flags().BoolVar(&f.storeMatches, "store-matches", false, "Persist improved matches to PostgreSQL")
	cmd.MarkFlagsMutuallyExclusive("fallback", "no-cache")
	cmd.MarkFlagsMutuallyExclusive("fallback", "fetch")
	return cmd
}

// fetchOptions turns the flags into a fetch policy. By default an existing
// cache is used as is; --fetch asks the database first.
func (f analysisFlags) fetchOptions(cacheExists bool) storage.FetchOptions {
	if f.fallback || (!f.fetch && !f.noCache && cacheExists) {
		return storage.FetchOptions{ForceFallback: true}
	}
	return storage.FetchOptions{UseCache: !f.noCache}
}

func runAnalysis(cmd *cobra.Command, cfg *config.Config, f analysisFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cacheExists := storage.NewCSVCache(cfg.CacheDir, utils.NewNopLogger()).Exists()
	opts := f.fetchOptions(cacheExists)
	a := newApp(ctx, cfg, !opts.ForceFallback || f.storeMatches)
	defer a.Close()

	a.logger.Info("=== Nightly Price Analysis starting ===")
	a.logger.Info("Config: cutoff %s | window %s..%s | concurrency %d",
		cfg.Analysis.Cutoff.Format("2006-01-02"), cfg.Analysis.WindowStart.Format("2006-01-02"),
		cfg.Analysis.WindowEnd.Format("2006-01-02"), cfg.MaxConcurrency)

	result, err := a.analyse(ctx, opts)
	if err != nil && !opts.ForceFallback {
		a.logger.Error("Analysis failed: %v", err)
		a.logger.Info("Attempting to continue with cached data...")
		result, err = a.analyse(ctx, storage.FetchOptions{ForceFallback: true})
	}
	if err != nil {
		return fmt.Errorf("analysis: %w", err)
	}

	if f.storeMatches {
		if a.store == nil {
			a.logger.Warn("[app] --store-matches given but the database is unavailable")
		} else if err := a.store.WriteMatches(ctx, result.RunID, result.Matches); err != nil {
			a.logger.Error("Storing matches failed: %v", err)
		}
	}

	services.NewInsightService(a.logger).Print(cmd.OutOrStdout(), result)
	fmt.Fprintf(cmd.OutOrStdout(), "  Done. Reports -> %s | Cache -> %s\n\n", cfg.OutputDir, a.cache.Path())
	return nil
}

// analyse fetches, runs the pipeline and writes every report.
func (a *app) analyse(ctx context.Context, opts storage.FetchOptions) (*models.AnalysisResult, error) {
	ds, source, err := a.fetcher.Fetch(ctx, a.cfg.EntityIDs, opts)
	if err != nil {
		return nil, err
	}
	a.logger.Info("Loaded %d records for %d properties from %s", ds.Len(), len(ds.EntityIDs()), source)

	result, err := a.pipeline.Run(ctx, ds)
	if err != nil {
		return nil, err
	}

	sinks := []storage.ReportSink{
		storage.NewCSVReportWriter(a.cfg.OutputDir, a.logger),
		storage.NewExcelReportWriter(a.cfg.OutputDir, a.logger),
		visualization.NewPlotter(a.cfg.OutputDir, a.cfg.ChartSample, a.logger),
	}
	if err := storage.ExportAll(ctx, result, sinks...); err != nil {
		return nil, err
	}
	if a.cfg.RenderPDF {
		pdf := visualization.NewPDFRenderer(a.cfg.OutputDir, a.cfg.ChromeBin, a.logger)
		if err := pdf.Write(ctx, result); err != nil {
			a.logger.Warn("[pdf] Report not rendered: %v", err)
		}
	}
	return result, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
