package services

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"nightly-price/models"
	"nightly-price/utils"
)

// NoEventDataMessage is reported when the dataset has no event column.
const NoEventDataMessage = "No event data available"

// PatternAnalyzer produces descriptive aggregates over a processed dataset.
// It never transforms records.
type PatternAnalyzer struct {
	logger *utils.Logger
	params PatternParams
}

// NewPatternAnalyzer creates a PatternAnalyzer with the given logger.
func NewPatternAnalyzer(logger *utils.Logger, params PatternParams) *PatternAnalyzer {
	return &PatternAnalyzer{logger: logger, params: params}
}

// Summaries returns per-entity descriptive statistics, ordered by entity id.
func (a *PatternAnalyzer) Summaries(ds *models.Dataset) []models.EntitySummary {
	ids, series := ds.Partition()
	hasBase := ds.HasData(models.ColBase)
	hasTotal := ds.Columns.Has(models.ColTotalPrice)
	factorCols := make(map[models.Column]bool)
	for _, c := range []models.Column{models.ColSeasonality, models.ColDOW, models.ColEvent} {
		factorCols[c] = ds.HasData(c)
	}

	out := make([]models.EntitySummary, 0, len(ids))
	for _, id := range ids {
		recs := series[id]
		s := models.EntitySummary{EntityID: id}

		if hasBase {
			if xs := values(recs, models.ColBase); len(xs) > 0 {
				s.BaseMean = models.Float(stat.Mean(xs, nil))
			}
		}
		if factorCols[models.ColSeasonality] {
			s.Seasonality = factorStats(values(recs, models.ColSeasonality))
		}
		if factorCols[models.ColDOW] {
			s.DOW = factorStats(values(recs, models.ColDOW))
		}
		if factorCols[models.ColEvent] {
			s.Event = factorStats(values(recs, models.ColEvent))
		}
		s.Price = spreadStats(values(recs, models.ColPrice))
		if hasTotal {
			totals := make([]float64, len(recs))
			for i, r := range recs {
				totals[i] = r.TotalPrice
			}
			s.TotalPrice = spreadStats(totals)
		}
		out = append(out, s)
	}

	a.logger.Info("[patterns] Summary statistics for %d entities", len(out))
	return out
}

// EventPatterns analyzes the discrete event factor. Without an event column it
// returns a report with Available false instead of failing.
func (a *PatternAnalyzer) EventPatterns(ds *models.Dataset) *models.EventReport {
	if !ds.Columns.Has(models.ColEvent) {
		a.logger.Warn("[patterns] %s", NoEventDataMessage)
		return &models.EventReport{Available: false, Message: NoEventDataMessage}
	}

	report := &models.EventReport{Available: true}

	counts := make(map[float64]int)
	byWeekday := make(map[time.Weekday][]float64)
	byMonth := make(map[time.Month][]float64)
	priceByEvent := make(map[float64][]float64)
	factorByEvent := make(map[float64][]float64)
	var evs, factors []float64

	for _, r := range ds.Records {
		if r.Event == nil {
			continue
		}
		ev := *r.Event
		counts[ev]++
		byWeekday[r.Date.Weekday()] = append(byWeekday[r.Date.Weekday()], ev)
		byMonth[r.Date.Month()] = append(byMonth[r.Date.Month()], ev)
		if r.Price != nil {
			priceByEvent[ev] = append(priceByEvent[ev], *r.Price)
		}
		if r.EventFactor != nil {
			factorByEvent[ev] = append(factorByEvent[ev], *r.EventFactor)
			evs = append(evs, ev)
			factors = append(factors, *r.EventFactor)
		}
	}

	for v, n := range counts {
		report.Counts = append(report.Counts, models.EventCount{Value: v, Count: n})
	}
	sort.Slice(report.Counts, func(i, j int) bool {
		if report.Counts[i].Count != report.Counts[j].Count {
			return report.Counts[i].Count > report.Counts[j].Count
		}
		return report.Counts[i].Value < report.Counts[j].Value
	})

	for _, w := range WeekdayOrder {
		if xs := byWeekday[w]; len(xs) > 0 {
			report.ByWeekday = append(report.ByWeekday, models.LabeledMean{Label: w.String(), Mean: stat.Mean(xs, nil)})
		}
	}
	for m := time.January; m <= time.December; m++ {
		if xs := byMonth[m]; len(xs) > 0 {
			report.ByMonth = append(report.ByMonth, models.LabeledMean{Label: m.String(), Mean: stat.Mean(xs, nil)})
		}
	}
	report.PriceByEvent = groupMeans(priceByEvent)

	if ds.Columns.Has(models.ColEventFactor) {
		if len(evs) >= 2 {
			if c := stat.Correlation(evs, factors, nil); !math.IsNaN(c) {
				report.Correlation = models.Float(c)
			}
		}
		report.FactorByEvent = groupMeans(factorByEvent)
	}

	a.logger.Info("[patterns] Event analysis over %d distinct event values", len(report.Counts))
	return report
}

// SeasonalPatterns computes the monthly seasonal index per entity. Months are
// grouped across years.
func (a *PatternAnalyzer) SeasonalPatterns(ds *models.Dataset) []models.SeasonalIndex {
	ids, series := ds.Partition()
	out := make([]models.SeasonalIndex, 0)

	for _, id := range ids {
		all := values(series[id], models.ColPrice)
		if len(all) == 0 {
			continue
		}
		overall := stat.Mean(all, nil)
		if overall == 0 {
			a.logger.Warn("[patterns] %s: mean price is zero, seasonal index undefined", id)
			continue
		}

		monthly := make(map[time.Month][]float64)
		for _, r := range series[id] {
			if r.Price != nil {
				monthly[r.Date.Month()] = append(monthly[r.Date.Month()], *r.Price)
			}
		}
		for m := time.January; m <= time.December; m++ {
			xs := monthly[m]
			if len(xs) == 0 {
				continue
			}
			mean := stat.Mean(xs, nil)
			idx := mean / overall
			out = append(out, models.SeasonalIndex{
				EntityID:     id,
				Month:        int(m),
				MonthName:    m.String(),
				MonthlyMean:  mean,
				OverallMean:  overall,
				Index:        idx,
				IsPeakSeason: idx > a.params.PeakSeasonIndex,
				IsLowSeason:  idx < a.params.LowSeasonIndex,
			})
		}
	}

	a.logger.Info("[patterns] Seasonal indices for %d entity-months", len(out))
	return out
}

// PricePatterns breaks observed price down by weekday and by month, and counts
// high-price dates (at or above the per-entity quantile threshold) per label.
func (a *PatternAnalyzer) PricePatterns(ds *models.Dataset) *models.PricePatterns {
	ids, series := ds.Partition()
	out := &models.PricePatterns{Thresholds: make(map[string]float64)}

	for _, id := range ids {
		recs := series[id]
		byWeekday := make(map[time.Weekday][]float64)
		byMonth := make(map[time.Month][]float64)
		for _, r := range recs {
			if r.Price == nil {
				continue
			}
			byWeekday[r.Date.Weekday()] = append(byWeekday[r.Date.Weekday()], *r.Price)
			byMonth[r.Date.Month()] = append(byMonth[r.Date.Month()], *r.Price)
		}

		for _, w := range WeekdayOrder {
			if xs := byWeekday[w]; len(xs) > 0 {
				out.ByWeekday = append(out.ByWeekday, breakdown(id, w.String(), xs))
			}
		}
		for m := time.January; m <= time.December; m++ {
			if xs := byMonth[m]; len(xs) > 0 {
				out.ByMonth = append(out.ByMonth, breakdown(id, m.String(), xs))
			}
		}

		prices := values(recs, models.ColPrice)
		if len(prices) == 0 {
			continue
		}
		threshold := Quantile(prices, a.params.HighPriceQuantile)
		out.Thresholds[id] = threshold

		highWeekday := make(map[time.Weekday]int)
		highMonth := make(map[time.Month]int)
		for _, r := range recs {
			if r.Price != nil && *r.Price >= threshold {
				highWeekday[r.Date.Weekday()]++
				highMonth[r.Date.Month()]++
			}
		}
		for m := time.January; m <= time.December; m++ {
			if n := highMonth[m]; n > 0 {
				out.HighPriceByMonth = append(out.HighPriceByMonth, models.HighPriceCount{EntityID: id, Label: m.String(), Count: n})
			}
		}
		for _, w := range WeekdayOrder {
			if n := highWeekday[w]; n > 0 {
				out.HighPriceByWeekday = append(out.HighPriceByWeekday, models.HighPriceCount{EntityID: id, Label: w.String(), Count: n})
			}
		}
	}

	a.logger.Info("[patterns] Price patterns for %d entities", len(out.Thresholds))
	return out
}

// Overview summarizes a processed dataset and, when given, its matches.
func (a *PatternAnalyzer) Overview(ds *models.Dataset, matches *models.MatchSet) *models.DatasetOverview {
	ov := &models.DatasetOverview{
		TotalRows:    ds.Len(),
		EntityIDs:    ds.EntityIDs(),
		MatchCount:   matches.Len(),
		MatchReasons: matches.ReasonCounts(),
	}
	if ov.EntityIDs == nil {
		ov.EntityIDs = []string{}
	}
	if first, last, ok := ds.DateRange(); ok {
		ov.Start, ov.End = first, last
	}

	if prices := values(ds.Records, models.ColPrice); len(prices) > 0 {
		ov.Price = &models.PriceStats{
			Min:    floats.Min(prices),
			Max:    floats.Max(prices),
			Mean:   stat.Mean(prices, nil),
			Median: Quantile(prices, 0.5),
		}
	}

	for _, r := range ds.Records {
		if r.IsExtrapolated {
			ov.ExtrapolatedCount++
		}
	}
	if ov.TotalRows > 0 {
		ov.ExtrapolatedPercentage = float64(ov.ExtrapolatedCount) / float64(ov.TotalRows) * 100
	}
	return ov
}

// Quantile returns the q-th quantile of xs by linear interpolation between the
// closest ranks, h = (n-1)q. xs is not modified; it returns NaN when empty.
func Quantile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	h := float64(len(sorted)-1) * q
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	if lo < 0 {
		return sorted[0]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// values collects the non-missing values of column c.
func values(records []*models.PriceRecord, c models.Column) []float64 {
	var out []float64
	for _, r := range records {
		if v := r.Factor(c); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func factorStats(xs []float64) *models.FactorStats {
	if len(xs) == 0 {
		return nil
	}
	return &models.FactorStats{Mean: stat.Mean(xs, nil), Min: floats.Min(xs), Max: floats.Max(xs)}
}

func spreadStats(xs []float64) *models.SpreadStats {
	if len(xs) == 0 {
		return nil
	}
	return &models.SpreadStats{
		Mean: stat.Mean(xs, nil),
		Min:  floats.Min(xs),
		Max:  floats.Max(xs),
		Std:  sampleStd(xs),
	}
}

// sampleStd is the n-1 standard deviation, nil below two values.
func sampleStd(xs []float64) *float64 {
	if len(xs) < 2 {
		return nil
	}
	return models.Float(stat.StdDev(xs, nil))
}

func breakdown(id, label string, xs []float64) models.PriceBreakdown {
	return models.PriceBreakdown{
		EntityID: id,
		Label:    label,
		Mean:     stat.Mean(xs, nil),
		Std:      sampleStd(xs),
		Count:    len(xs),
	}
}

// groupMeans turns value-keyed samples into means ordered by value.
func groupMeans(groups map[float64][]float64) []models.EventMean {
	out := make([]models.EventMean, 0, len(groups))
	for v, xs := range groups {
		out = append(out, models.EventMean{Value: v, Mean: stat.Mean(xs, nil)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}
