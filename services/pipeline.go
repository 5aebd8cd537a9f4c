package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nightly-price/models"
	"nightly-price/utils"
)

// Recorder receives pipeline telemetry. metrics.Recorder implements it.
type Recorder interface {
	ObserveStage(stage string, d time.Duration)
	RunFinished(status string)
	AddExtrapolated(synthesized, dropped int)
	AddMatches(counts map[models.MatchReason]int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, time.Duration) {}
func (nopRecorder) RunFinished(string) {}
func (nopRecorder) AddExtrapolated(int, int) {}
func (nopRecorder) AddMatches(map[models.MatchReason]int) {}

// Pipeline wires the analysis steps in their fixed order.
type Pipeline struct {
	logger       *utils.Logger
	recorder     Recorder
	aggregator   *PriceAggregator
	extrapolator *BackwardExtrapolator
	matcher      *AnalogMatcher
	analyzer     *PatternAnalyzer
}

// NewPipeline creates a Pipeline. A nil recorder disables telemetry.
func NewPipeline(logger *utils.Logger, params Params, workers int, recorder Recorder) *Pipeline {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Pipeline{
		logger:       logger,
		recorder:     recorder,
		aggregator:   NewPriceAggregator(logger),
		extrapolator: NewBackwardExtrapolator(logger, params.Extrapolation, workers),
		matcher:      NewAnalogMatcher(logger, params.Match, workers),
		analyzer:     NewPatternAnalyzer(logger, params.Pattern),
	}
}

// Run executes every step over ds and returns the combined result. The only
// errors are structural precondition violations and context cancellation.
func (p *Pipeline) Run(ctx context.Context, ds *models.Dataset) (*models.AnalysisResult, error) {
	result := &models.AnalysisResult{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Original:    ds,
	}
	p.logger.Info("[pipeline] Run %s started on %d records", result.RunID, ds.Len())

	err := p.run(ctx, ds, result)
	if err != nil {
		p.recorder.RunFinished("error")
		p.logger.Error("[pipeline] Run %s failed: %v", result.RunID, err)
		return nil, err
	}
	p.recorder.RunFinished("ok")
	p.logger.Info("[pipeline] Run %s finished: %d records, %d matches",
		result.RunID, result.Extended.Len(), result.Matches.Len())
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, ds *models.Dataset, result *models.AnalysisResult) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"extend", func() (err error) {
			result.Extended, err = p.Extend(ds)
			return err
		}},
		{"match", func() error {
			result.Matches = p.Match(result.Extended)
			return nil
		}},
		{"summary", func() error {
			result.Summaries = p.Summaries(result.Extended)
			return nil
		}},
		{"patterns", func() error {
			result.Patterns = p.Patterns(result.Extended)
			return nil
		}},
		{"events", func() error {
			result.Events = p.Events(result.Extended)
			return nil
		}},
		{"seasonal", func() error {
			result.Seasonal = p.Seasonal(result.Extended)
			return nil
		}},
		{"overview", func() error {
			result.Overview = p.Overview(result.Extended, result.Matches)
			return nil
		}},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline: %s: %w", s.name, err)
		}
		start := time.Now()
		if err := s.fn(); err != nil {
			return fmt.Errorf("pipeline: %s: %w", s.name, err)
		}
		p.recorder.ObserveStage(s.name, time.Since(start))
	}
	return nil
}

// Extend validates ds, runs backward extrapolation and derives total_price.
func (p *Pipeline) Extend(ds *models.Dataset) (*models.Dataset, error) {
	if ds == nil {
		ds = models.NewDataset(models.SourceColumns, nil)
	}
	if err := ValidateDataset(ds); err != nil {
		return nil, err
	}
	extended, stats := p.extrapolator.Extrapolate(ds)
	p.recorder.AddExtrapolated(stats.Synthesized, stats.DroppedDates)
	return p.aggregator.Aggregate(extended), nil
}

// Match runs the analog matcher over an extended dataset.
func (p *Pipeline) Match(extended *models.Dataset) *models.MatchSet {
	set := p.matcher.Match(extended)
	p.recorder.AddMatches(set.ReasonCounts())
	return set
}

func (p *Pipeline) Summaries(ds *models.Dataset) []models.EntitySummary {
	return p.analyzer.Summaries(ds)
}

func (p *Pipeline) Events(ds *models.Dataset) *models.EventReport {
	return p.analyzer.EventPatterns(ds)
}

func (p *Pipeline) Seasonal(ds *models.Dataset) []models.SeasonalIndex {
	return p.analyzer.SeasonalPatterns(ds)
}

func (p *Pipeline) Patterns(ds *models.Dataset) *models.PricePatterns {
	return p.analyzer.PricePatterns(ds)
}

func (p *Pipeline) Overview(ds *models.Dataset, matches *models.MatchSet) *models.DatasetOverview {
	return p.analyzer.Overview(ds, matches)
}
