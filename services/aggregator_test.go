package services

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"nightly-price/models"
	"nightly-price/utils"
)

func TestAggregateSumsFactors(t *testing.T) {
	tests := []struct {
		name string
		cols models.ColumnSet
		rec  *models.PriceRecord
		want float64
	}{
		{
			name: "all factors",
			cols: models.SourceColumns,
			rec:  &models.PriceRecord{Base: models.Float(100), Seasonality: models.Float(10), DOW: models.Float(5), Event: models.Float(2)},
			want: 117,
		},
		{
			name: "missing values fold to zero",
			cols: models.SourceColumns,
			rec:  &models.PriceRecord{Base: models.Float(100), DOW: models.Float(-5)},
			want: 95,
		},
		{
			name: "absent column ignored",
			cols: models.ColumnSet(models.ColBase | models.ColDOW | models.ColPrice),
			rec:  &models.PriceRecord{Base: models.Float(80), DOW: models.Float(4), Event: models.Float(50)},
			want: 84,
		},
	}

	agg := NewPriceAggregator(utils.NewNopLogger())
	for _, tt := range tests {
		tt.rec.EntityID, tt.rec.Date = "E", Date(2025, time.May, 1)
		out := agg.Aggregate(models.NewDataset(tt.cols, []*models.PriceRecord{tt.rec}))
		if got := out.Records[0].TotalPrice; got != tt.want {
			t.Errorf("%s: total_price = %v; want %v", tt.name, got, tt.want)
		}
		if !out.Columns.Has(models.ColTotalPrice) {
			t.Errorf("%s: total_price column missing", tt.name)
		}
	}
}

func TestAggregateLogsAbsentColumnOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := utils.NewLoggerWithOptions(utils.LogOptions{Level: "debug", Format: "json", Out: &buf})
	records := dailySeries("E", Date(2025, time.January, 1), 10, 100, 0, 0, 0)
	cols := models.ColumnSet(models.ColBase | models.ColSeasonality | models.ColDOW | models.ColPrice)

	out := NewPriceAggregator(logger).Aggregate(models.NewDataset(cols, records))

	if n := strings.Count(buf.String(), `Column \"event\" not found`); n != 1 {
		t.Errorf("expected one warning for the event column, got %d:\n%s", n, buf.String())
	}
	if out.Columns.Has(models.ColEvent) {
		t.Error("absent column must not be added to the column set")
	}
}

func TestAggregateIdempotent(t *testing.T) {
	agg := NewPriceAggregator(utils.NewNopLogger())
	records := dailySeries("E", Date(2025, time.January, 1), 5, 99.1, 0.3, -1.7, 0.2)
	once := agg.Aggregate(models.NewDataset(models.SourceColumns, records))
	twice := agg.Aggregate(once)

	for i := range once.Records {
		if once.Records[i].TotalPrice != twice.Records[i].TotalPrice {
			t.Errorf("row %d drifted: %v -> %v", i, once.Records[i].TotalPrice, twice.Records[i].TotalPrice)
		}
	}
	if records[0].TotalPrice != 0 {
		t.Error("input records must not be modified")
	}
}

func TestAggregateEmpty(t *testing.T) {
	out := NewPriceAggregator(utils.NewNopLogger()).Aggregate(models.NewDataset(models.SourceColumns, nil))
	if out.Len() != 0 {
		t.Errorf("expected empty output, got %d rows", out.Len())
	}
}

func TestValidateDataset(t *testing.T) {
	day := Date(2025, time.January, 1)
	tests := []struct {
		name    string
		records []*models.PriceRecord
		wantErr error
		wantRow int
	}{
		{"valid", []*models.PriceRecord{{EntityID: "A", Date: day}, {EntityID: "B", Date: day}}, nil, 0},
		{"missing entity", []*models.PriceRecord{{EntityID: "A", Date: day}, {Date: day}}, models.ErrMissingKey, 1},
		{"missing date", []*models.PriceRecord{{EntityID: "A"}}, models.ErrMissingKey, 0},
		{"duplicate", []*models.PriceRecord{{EntityID: "A", Date: day}, {EntityID: "B", Date: day}, {EntityID: "A", Date: day}}, models.ErrDuplicateKey, 2},
	}

	for _, tt := range tests {
		err := ValidateDataset(models.NewDataset(models.SourceColumns, tt.records))
		if tt.wantErr == nil {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tt.name, err)
			}
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.wantErr)
			continue
		}
		var perr *models.PreconditionError
		if !errors.As(err, &perr) || perr.Row != tt.wantRow {
			t.Errorf("%s: expected PreconditionError at row %d, got %v", tt.name, tt.wantRow, err)
		}
	}
}
