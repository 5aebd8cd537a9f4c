package services

import (
	"time"

	"nightly-price/config"
)

// ExtrapolationParams configures BackwardExtrapolator.
type ExtrapolationParams struct {
	Cutoff         time.Time
	DiscountFactor float64
	DOWSearchDays  int
}

// MatchParams configures AnalogMatcher.
type MatchParams struct {
	WindowStart  time.Time
	WindowEnd    time.Time
	PastBoundary time.Time
	UpliftFactor float64

	EventWindowDays       int
	WeekdayWindowDays     int
	WideWeekdayWindowDays int
	ClosestWindowDays     int

	// EventThreshold is the event value a target must exceed to try the
	// event tier; EventTolerance is the allowed |event| gap for candidates.
	EventThreshold float64
	EventTolerance float64
	// LowEventThreshold is the highest event value a weekday candidate may
	// carry; a missing event always qualifies.
	LowEventThreshold float64
}

// PatternParams configures PatternAnalyzer.
type PatternParams struct {
	PeakSeasonIndex   float64
	LowSeasonIndex    float64
	HighPriceQuantile float64
}

// Params bundles the per-step parameter sets.
type Params struct {
	Extrapolation ExtrapolationParams
	Match         MatchParams
	Pattern       PatternParams
}

// ParamsFromConfig splits the analysis configuration into per-step params.
func ParamsFromConfig(a config.Analysis) Params {
	return Params{
		Extrapolation: ExtrapolationParams{
			Cutoff:         Day(a.Cutoff),
			DiscountFactor: a.DiscountFactor,
			DOWSearchDays:  a.DOWSearchDays,
		},
		Match: MatchParams{
			WindowStart:           Day(a.WindowStart),
			WindowEnd:             Day(a.WindowEnd),
			PastBoundary:          Day(a.PastBoundary),
			UpliftFactor:          a.UpliftFactor,
			EventWindowDays:       a.EventWindowDays,
			WeekdayWindowDays:     a.WeekdayWindowDays,
			WideWeekdayWindowDays: a.WideWeekdayWindowDays,
			ClosestWindowDays:     a.ClosestWindowDays,
			EventThreshold:        a.EventThreshold,
			EventTolerance:        a.EventTolerance,
			LowEventThreshold:     a.LowEventThreshold,
		},
		Pattern: PatternParams{
			PeakSeasonIndex:   a.PeakSeasonIndex,
			LowSeasonIndex:    a.LowSeasonIndex,
			HighPriceQuantile: a.HighPriceQuantile,
		},
	}
}

// DefaultParams returns the reference parameter set.
func DefaultParams() Params {
	return ParamsFromConfig(config.DefaultAnalysis())
}
