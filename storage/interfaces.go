package storage

import (
	"context"

	"nightly-price/models"
)

// PriceSource is any backend that can return nightly price records for a set
// of entity ids. An empty id list means every entity.
type PriceSource interface {
	FetchPrices(ctx context.Context, entityIDs []string) (*models.Dataset, error)
}

// MatchWriter persists the improved matches of one run.
type MatchWriter interface {
	WriteMatches(ctx context.Context, runID string, set *models.MatchSet) error
}

// ReportSink is an output target for a finished analysis run.
type ReportSink interface {
	Name() string
	Write(ctx context.Context, result *models.AnalysisResult) error
}
