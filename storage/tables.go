package storage

import (
	"strconv"
	"time"

	"nightly-price/models"
)

// Table is one tabular report output. Cells hold string, float64, int, bool,
// time.Time or nil for an empty cell.
type Table struct {
	File   string
	Sheet  string
	Header []string
	Rows   [][]any
}

// BuildTables flattens an analysis result into the report tables written by
// the CSV and spreadsheet sinks. Tables whose step has not run are skipped.
func BuildTables(r *models.AnalysisResult) []Table {
	var out []Table
	if r.Extended != nil {
		out = append(out, datasetTable(r.Extended))
	}
	if r.Matches != nil {
		out = append(out, matchTable(r.Matches))
	}
	if r.Summaries != nil {
		out = append(out, summaryTable(r.Summaries))
	}
	if r.Seasonal != nil {
		out = append(out, seasonalTable(r.Seasonal))
	}
	if r.Patterns != nil {
		out = append(out,
			breakdownTable("dow_analysis.csv", "DOW Analysis", "day_of_week", r.Patterns.ByWeekday),
			breakdownTable("month_analysis.csv", "Month Analysis", "month", r.Patterns.ByMonth),
			highPriceTable("high_price_by_month.csv", "High Price By Month", "month", r.Patterns.HighPriceByMonth),
			highPriceTable("high_price_by_dow.csv", "High Price By DOW", "day_of_week", r.Patterns.HighPriceByWeekday),
		)
	}
	if r.Events != nil && r.Events.Available {
		out = append(out, eventTable(r.Events))
	}
	return out
}

func datasetTable(ds *models.Dataset) Table {
	t := Table{File: "nightly_prices_complete.csv", Sheet: "Complete Price Data", Header: []string{"entity_id", "date"}}
	var cols []models.Column
	for _, c := range datasetColumns {
		if ds.Columns.Has(c) {
			cols = append(cols, c)
			t.Header = append(t.Header, c.String())
		}
	}
	for _, r := range ds.Records {
		row := []any{r.EntityID, r.Date}
		for _, c := range cols {
			switch c {
			case models.ColTotalPrice:
				row = append(row, r.TotalPrice)
			case models.ColIsExtrapolated:
				row = append(row, r.IsExtrapolated)
			default:
				row = append(row, optional(r.Factor(c)))
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func matchTable(set *models.MatchSet) Table {
	t := Table{
		File:   "improved_matches.csv",
		Sheet:  "Improved Matches",
		Header: []string{"entity_id", "date", "matched_from", "days_diff", "match_reason", "is_improved_match"},
	}
	if set.HasEventMatch {
		t.Header = append(t.Header, "event_match")
	}
	t.Header = append(t.Header, "price", "base", "seasonality", "dow", "event")

	for _, m := range set.Records {
		row := []any{m.EntityID, m.Date, m.MatchedFrom, m.DaysDiff, string(m.MatchReason), m.IsImprovedMatch}
		if set.HasEventMatch {
			row = append(row, m.EventMatch)
		}
		row = append(row, optional(m.Price), optional(m.Base), optional(m.Seasonality), optional(m.DOW), optional(m.Event))
		t.Rows = append(t.Rows, row)
	}
	return t
}

func summaryTable(sums []models.EntitySummary) Table {
	t := Table{
		File:  "price_summary.csv",
		Sheet: "Summary Statistics",
		Header: []string{
			"entity_id", "base_mean",
			"seasonality_mean", "seasonality_min", "seasonality_max",
			"dow_mean", "dow_min", "dow_max",
			"event_mean", "event_min", "event_max",
			"price_mean", "price_min", "price_max", "price_std",
			"total_price_mean", "total_price_min", "total_price_max", "total_price_std",
		},
	}
	for _, s := range sums {
		row := []any{s.EntityID, optional(s.BaseMean)}
		for _, f := range []*models.FactorStats{s.Seasonality, s.DOW, s.Event} {
			if f == nil {
				row = append(row, nil, nil, nil)
				continue
			}
			row = append(row, f.Mean, f.Min, f.Max)
		}
		for _, sp := range []*models.SpreadStats{s.Price, s.TotalPrice} {
			if sp == nil {
				row = append(row, nil, nil, nil, nil)
				continue
			}
			row = append(row, sp.Mean, sp.Min, sp.Max, optional(sp.Std))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func seasonalTable(idx []models.SeasonalIndex) Table {
	t := Table{
		File:   "seasonal_patterns.csv",
		Sheet:  "Seasonal Patterns",
		Header: []string{"entity_id", "month", "month_name", "price", "avg_price", "seasonal_index", "is_peak_season", "is_low_season"},
	}
	for _, s := range idx {
		t.Rows = append(t.Rows, []any{s.EntityID, s.Month, s.MonthName, s.MonthlyMean, s.OverallMean, s.Index, s.IsPeakSeason, s.IsLowSeason})
	}
	return t
}

func breakdownTable(file, sheet, label string, rows []models.PriceBreakdown) Table {
	t := Table{File: file, Sheet: sheet, Header: []string{"entity_id", label, "mean", "std", "count"}}
	for _, b := range rows {
		t.Rows = append(t.Rows, []any{b.EntityID, b.Label, b.Mean, optional(b.Std), b.Count})
	}
	return t
}

func highPriceTable(file, sheet, label string, rows []models.HighPriceCount) Table {
	t := Table{File: file, Sheet: sheet, Header: []string{"entity_id", label, "high_price_count"}}
	for _, h := range rows {
		t.Rows = append(t.Rows, []any{h.EntityID, h.Label, h.Count})
	}
	return t
}

// eventTable flattens the event report into (section, key, value) rows.
func eventTable(e *models.EventReport) Table {
	t := Table{File: "event_analysis.csv", Sheet: "Event Analysis", Header: []string{"section", "key", "value"}}
	for _, c := range e.Counts {
		t.Rows = append(t.Rows, []any{"event_counts", c.Value, c.Count})
	}
	for _, m := range e.ByWeekday {
		t.Rows = append(t.Rows, []any{"events_by_day", m.Label, m.Mean})
	}
	for _, m := range e.ByMonth {
		t.Rows = append(t.Rows, []any{"events_by_month", m.Label, m.Mean})
	}
	for _, m := range e.PriceByEvent {
		t.Rows = append(t.Rows, []any{"price_by_event", m.Value, m.Mean})
	}
	if e.Correlation != nil {
		t.Rows = append(t.Rows, []any{"event_factor_correlation", "", *e.Correlation})
	}
	for _, m := range e.FactorByEvent {
		t.Rows = append(t.Rows, []any{"factor_by_event", m.Value, m.Mean})
	}
	return t
}

func optional(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

// formatCell renders a table cell for delimited output.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return formatFloat(x)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(dateLayout)
	}
	return ""
}
