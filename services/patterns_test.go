package services

import (
	"math"
	"testing"
	"time"

	"nightly-price/models"
	"nightly-price/utils"
)

func testAnalyzer() *PatternAnalyzer {
	return NewPatternAnalyzer(utils.NewNopLogger(), DefaultParams().Pattern)
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestQuantileLinearInterpolation(t *testing.T) {
	tests := []struct {
		xs   []float64
		q    float64
		want float64
	}{
		{[]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.1},
		{[]float64{10, 1, 5}, 0.5, 5},
		{[]float64{4, 1, 3, 2}, 0.5, 2.5},
		{[]float64{7}, 0.9, 7},
		{[]float64{3, 1}, 1, 3},
		{[]float64{3, 1}, 0, 1},
	}
	for _, tt := range tests {
		if got := Quantile(tt.xs, tt.q); !almost(got, tt.want) {
			t.Errorf("Quantile(%v, %v) = %v; want %v", tt.xs, tt.q, got, tt.want)
		}
	}
	if !math.IsNaN(Quantile(nil, 0.5)) {
		t.Error("Quantile of empty input should be NaN")
	}
}

func TestSummaries(t *testing.T) {
	records := []*models.PriceRecord{
		{EntityID: "B", Date: Date(2025, 1, 1), Base: models.Float(100), Seasonality: models.Float(5), DOW: models.Float(1), Price: models.Float(106), TotalPrice: 106},
		{EntityID: "B", Date: Date(2025, 1, 2), Base: models.Float(120), Seasonality: models.Float(-5), DOW: models.Float(3), Price: models.Float(118), TotalPrice: 118},
		{EntityID: "A", Date: Date(2025, 1, 1), Base: models.Float(50), Price: models.Float(50), TotalPrice: 50},
	}
	cols := models.ColumnSet(models.ColBase | models.ColSeasonality | models.ColDOW | models.ColPrice | models.ColTotalPrice)
	sums := testAnalyzer().Summaries(models.NewDataset(cols, records))

	if len(sums) != 2 || sums[0].EntityID != "A" || sums[1].EntityID != "B" {
		t.Fatalf("expected summaries for A then B, got %+v", sums)
	}
	a, b := sums[0], sums[1]

	if a.Seasonality != nil || a.DOW != nil {
		t.Error("entity A has no seasonality/dow values")
	}
	if a.Price == nil || a.Price.Std != nil {
		t.Error("single-value std should be nil")
	}
	if b.BaseMean == nil || *b.BaseMean != 110 {
		t.Errorf("B base mean = %v; want 110", b.BaseMean)
	}
	if b.Seasonality == nil || b.Seasonality.Min != -5 || b.Seasonality.Max != 5 || b.Seasonality.Mean != 0 {
		t.Errorf("B seasonality stats wrong: %+v", b.Seasonality)
	}
	if b.Price == nil || b.Price.Std == nil || !almost(*b.Price.Std, math.Sqrt(72)) {
		t.Errorf("B price std wrong: %+v", b.Price)
	}
	if b.Event != nil {
		t.Error("absent event column should yield nil event stats")
	}
	if b.TotalPrice == nil || b.TotalPrice.Mean != 112 {
		t.Errorf("B total price mean wrong: %+v", b.TotalPrice)
	}
}

func TestEventPatternsWithoutEventColumn(t *testing.T) {
	ds := models.NewDataset(models.ColumnSet(models.ColPrice), []*models.PriceRecord{
		{EntityID: "A", Date: Date(2025, 1, 1), Price: models.Float(10)},
	})
	rep := testAnalyzer().EventPatterns(ds)
	if rep.Available || rep.Message != NoEventDataMessage {
		t.Errorf("expected no-event marker, got %+v", rep)
	}
}

func TestEventPatterns(t *testing.T) {
	// 2025-01-06 is a Monday.
	records := []*models.PriceRecord{
		{EntityID: "A", Date: Date(2025, 1, 6), Event: models.Float(0), EventFactor: models.Float(1.0), Price: models.Float(100)},
		{EntityID: "A", Date: Date(2025, 1, 7), Event: models.Float(0), EventFactor: models.Float(1.0), Price: models.Float(110)},
		{EntityID: "A", Date: Date(2025, 1, 13), Event: models.Float(40), EventFactor: models.Float(1.4), Price: models.Float(200)},
		{EntityID: "A", Date: Date(2025, 2, 3), Event: nil, Price: models.Float(90)},
	}
	cols := models.SourceColumns.With(models.ColEventFactor)
	rep := testAnalyzer().EventPatterns(models.NewDataset(cols, records))

	if !rep.Available {
		t.Fatal("report should be available")
	}
	if len(rep.Counts) != 2 || rep.Counts[0].Value != 0 || rep.Counts[0].Count != 2 {
		t.Errorf("event counts wrong: %+v", rep.Counts)
	}
	if len(rep.ByWeekday) != 2 || rep.ByWeekday[0].Label != "Monday" || rep.ByWeekday[0].Mean != 20 {
		t.Errorf("weekday means wrong: %+v", rep.ByWeekday)
	}
	if len(rep.ByMonth) != 1 || rep.ByMonth[0].Label != "January" {
		t.Errorf("month means wrong: %+v", rep.ByMonth)
	}
	if len(rep.PriceByEvent) != 2 || rep.PriceByEvent[0].Mean != 105 || rep.PriceByEvent[1].Mean != 200 {
		t.Errorf("price by event wrong: %+v", rep.PriceByEvent)
	}
	if rep.Correlation == nil || !almost(*rep.Correlation, 1) {
		t.Errorf("correlation = %v; want 1", rep.Correlation)
	}
	if len(rep.FactorByEvent) != 2 || !almost(rep.FactorByEvent[1].Mean, 1.4) {
		t.Errorf("factor by event wrong: %+v", rep.FactorByEvent)
	}
}

func TestSeasonalPatterns(t *testing.T) {
	var records []*models.PriceRecord
	for d := 1; d <= 10; d++ {
		records = append(records,
			&models.PriceRecord{EntityID: "A", Date: Date(2025, time.July, d), Price: models.Float(150)},
			&models.PriceRecord{EntityID: "A", Date: Date(2025, time.November, d), Price: models.Float(50)},
			&models.PriceRecord{EntityID: "A", Date: Date(2025, time.March, d), Price: models.Float(100)},
		)
	}
	idx := testAnalyzer().SeasonalPatterns(models.NewDataset(models.SourceColumns, records))

	if len(idx) != 3 {
		t.Fatalf("expected 3 entity-months, got %d", len(idx))
	}
	want := []struct {
		month     time.Month
		index     float64
		peak, low bool
	}{
		{time.March, 1, false, false},
		{time.July, 1.5, true, false},
		{time.November, 0.5, false, true},
	}
	for i, w := range want {
		got := idx[i]
		if got.Month != int(w.month) || !almost(got.Index, w.index) || got.IsPeakSeason != w.peak || got.IsLowSeason != w.low {
			t.Errorf("row %d: got %+v, want %+v", i, got, w)
		}
	}
}

func TestPricePatterns(t *testing.T) {
	var records []*models.PriceRecord
	// ten consecutive days starting Monday 2025-01-06, prices 1..10
	for i := 0; i < 10; i++ {
		records = append(records, &models.PriceRecord{
			EntityID: "A", Date: Date(2025, 1, 6+i), Price: models.Float(float64(i + 1)),
		})
	}
	pp := testAnalyzer().PricePatterns(models.NewDataset(models.SourceColumns, records))

	if th := pp.Thresholds["A"]; !almost(th, 9.1) {
		t.Errorf("threshold = %v; want 9.1", th)
	}
	// only price 10 (Wednesday 2025-01-15) is >= 9.1
	if len(pp.HighPriceByWeekday) != 1 || pp.HighPriceByWeekday[0].Label != "Wednesday" || pp.HighPriceByWeekday[0].Count != 1 {
		t.Errorf("high price by weekday wrong: %+v", pp.HighPriceByWeekday)
	}
	if len(pp.HighPriceByMonth) != 1 || pp.HighPriceByMonth[0].Label != "January" {
		t.Errorf("high price by month wrong: %+v", pp.HighPriceByMonth)
	}
	if len(pp.ByWeekday) != 7 || pp.ByWeekday[0].Label != "Monday" || pp.ByWeekday[0].Count != 2 || pp.ByWeekday[0].Mean != 4.5 {
		t.Errorf("weekday breakdown wrong: %+v", pp.ByWeekday)
	}
	if pp.ByWeekday[6].Std != nil {
		t.Error("single-sample weekday should have nil std")
	}
	if len(pp.ByMonth) != 1 || pp.ByMonth[0].Count != 10 {
		t.Errorf("month breakdown wrong: %+v", pp.ByMonth)
	}
}

func TestOverview(t *testing.T) {
	records := []*models.PriceRecord{
		{EntityID: "B", Date: Date(2024, 12, 31), Price: models.Float(80), IsExtrapolated: true},
		{EntityID: "A", Date: Date(2025, 1, 1), Price: models.Float(100)},
		{EntityID: "A", Date: Date(2025, 1, 2), Price: models.Float(120)},
		{EntityID: "A", Date: Date(2025, 1, 3)},
	}
	matches := &models.MatchSet{Records: []*models.MatchRecord{
		{MatchReason: models.ReasonWeekday}, {MatchReason: models.ReasonWeekday}, {MatchReason: models.ReasonClosestDate},
	}}
	ov := testAnalyzer().Overview(models.NewDataset(models.SourceColumns, records), matches)

	if ov.TotalRows != 4 || len(ov.EntityIDs) != 2 || ov.EntityIDs[0] != "A" {
		t.Errorf("unexpected overview header: %+v", ov)
	}
	if !ov.Start.Equal(Date(2024, 12, 31)) || !ov.End.Equal(Date(2025, 1, 3)) {
		t.Errorf("date range wrong: %s..%s", ov.Start, ov.End)
	}
	if ov.Price == nil || ov.Price.Median != 100 || ov.Price.Min != 80 || ov.Price.Max != 120 || ov.Price.Mean != 100 {
		t.Errorf("price stats wrong: %+v", ov.Price)
	}
	if ov.ExtrapolatedCount != 1 || ov.ExtrapolatedPercentage != 25 {
		t.Errorf("extrapolation stats wrong: %d / %v", ov.ExtrapolatedCount, ov.ExtrapolatedPercentage)
	}
	if ov.MatchCount != 3 || ov.MatchReasons[models.ReasonWeekday] != 2 {
		t.Errorf("match stats wrong: %d %+v", ov.MatchCount, ov.MatchReasons)
	}
}

func TestAnalyzerEmptyDataset(t *testing.T) {
	a := testAnalyzer()
	ds := models.NewDataset(models.SourceColumns, nil)

	if s := a.Summaries(ds); len(s) != 0 {
		t.Error("empty summaries expected")
	}
	if s := a.SeasonalPatterns(ds); s == nil || len(s) != 0 {
		t.Error("empty non-nil seasonal expected")
	}
	if p := a.PricePatterns(ds); len(p.Thresholds) != 0 {
		t.Error("empty thresholds expected")
	}
	if r := a.EventPatterns(ds); !r.Available || len(r.Counts) != 0 {
		t.Error("event report should be available but empty")
	}
	if ov := a.Overview(ds, nil); ov.TotalRows != 0 || ov.Price != nil || ov.MatchCount != 0 {
		t.Errorf("unexpected overview for empty dataset: %+v", ov)
	}
}
