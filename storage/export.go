package storage

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"nightly-price/models"
)

// ExportAll writes result to every sink concurrently and returns the first
// sink failure. Sinks write to distinct files so they never contend.
func ExportAll(ctx context.Context, result *models.AnalysisResult, sinks ...ReportSink) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sinks {
		g.Go(func() error {
			if err := s.Write(gctx, result); err != nil {
				return fmt.Errorf("export %s: %w", s.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
