package models

import "time"

// FactorStats is mean/min/max of one factor column for one entity.
type FactorStats struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// SpreadStats adds the sample standard deviation, which is nil for fewer than
// two values.
type SpreadStats struct {
	Mean float64  `json:"mean"`
	Min  float64  `json:"min"`
	Max  float64  `json:"max"`
	Std  *float64 `json:"std"`
}

// EntitySummary holds per-entity descriptive statistics. A nil field means the
// column is absent or has no values for this entity.
type EntitySummary struct {
	EntityID    string       `json:"entity_id"`
	BaseMean    *float64     `json:"base_mean"`
	Seasonality *FactorStats `json:"seasonality"`
	DOW         *FactorStats `json:"dow"`
	Event       *FactorStats `json:"event"`
	Price       *SpreadStats `json:"price"`
	TotalPrice  *SpreadStats `json:"total_price"`
}

// LabeledMean is a mean value under a calendar label (weekday or month name).
type LabeledMean struct {
	Label string  `json:"label"`
	Mean  float64 `json:"mean"`
}

// EventCount is the number of records carrying one discrete event value.
type EventCount struct {
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

// EventMean is a mean of some column grouped by event value.
type EventMean struct {
	Value float64 `json:"value"`
	Mean  float64 `json:"mean"`
}

// EventReport is the event pattern analysis. When Available is false the
// dataset has no event column and only Message is set.
type EventReport struct {
	Available     bool          `json:"available"`
	Message       string        `json:"message,omitempty"`
	Counts        []EventCount  `json:"event_counts,omitempty"`
	ByWeekday     []LabeledMean `json:"events_by_day,omitempty"`
	ByMonth       []LabeledMean `json:"events_by_month,omitempty"`
	PriceByEvent  []EventMean   `json:"price_by_event,omitempty"`
	Correlation   *float64      `json:"event_factor_correlation,omitempty"`
	FactorByEvent []EventMean   `json:"factor_by_event,omitempty"`
}

// SeasonalIndex is the ratio of one month's mean price to the entity's
// overall mean price.
type SeasonalIndex struct {
	EntityID     string  `json:"entity_id"`
	Month        int     `json:"month"`
	MonthName    string  `json:"month_name"`
	MonthlyMean  float64 `json:"price"`
	OverallMean  float64 `json:"avg_price"`
	Index        float64 `json:"seasonal_index"`
	IsPeakSeason bool    `json:"is_peak_season"`
	IsLowSeason  bool    `json:"is_low_season"`
}

// PriceBreakdown is mean/std/count of observed price for one entity under one
// calendar label.
type PriceBreakdown struct {
	EntityID string   `json:"entity_id"`
	Label    string   `json:"label"`
	Mean     float64  `json:"mean"`
	Std      *float64 `json:"std"`
	Count    int      `json:"count"`
}

// HighPriceCount counts dates at or above an entity's high-price threshold
// under one calendar label.
type HighPriceCount struct {
	EntityID string `json:"entity_id"`
	Label    string `json:"label"`
	Count    int    `json:"high_price_count"`
}

// PricePatterns bundles the weekday/month price breakdowns and the high-price
// period tallies.
type PricePatterns struct {
	ByWeekday          []PriceBreakdown   `json:"dow_analysis"`
	ByMonth            []PriceBreakdown   `json:"month_analysis"`
	Thresholds         map[string]float64 `json:"high_price_thresholds"`
	HighPriceByMonth   []HighPriceCount   `json:"high_price_by_month"`
	HighPriceByWeekday []HighPriceCount   `json:"high_price_by_dow"`
}

// PriceStats is min/max/mean/median of observed price across a dataset.
type PriceStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// DatasetOverview is a whole-dataset summary used by the console report and
// the dashboard.
type DatasetOverview struct {
	TotalRows              int                 `json:"total_rows"`
	Start                  time.Time           `json:"start"`
	End                    time.Time           `json:"end"`
	EntityIDs              []string            `json:"properties"`
	Price                  *PriceStats         `json:"price,omitempty"`
	ExtrapolatedCount      int                 `json:"extrapolated_count"`
	ExtrapolatedPercentage float64             `json:"extrapolated_percentage"`
	MatchCount             int                 `json:"match_count"`
	MatchReasons           map[MatchReason]int `json:"match_reasons"`
}

// AnalysisResult is everything one pipeline run produces.
type AnalysisResult struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Original    *Dataset         `json:"-"`
	Extended    *Dataset         `json:"-"`
	Matches     *MatchSet        `json:"-"`
	Summaries   []EntitySummary  `json:"summary_statistics"`
	Events      *EventReport     `json:"event_analysis"`
	Seasonal    []SeasonalIndex  `json:"seasonal_patterns"`
	Patterns    *PricePatterns   `json:"price_patterns"`
	Overview    *DatasetOverview `json:"overview"`
}
