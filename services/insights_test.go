package services

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"nightly-price/models"
	"nightly-price/utils"
)

func sampleSummaries() []models.EntitySummary {
	return []models.EntitySummary{
		{EntityID: "101", Price: &models.SpreadStats{Mean: 120}},
		{EntityID: "202", Price: &models.SpreadStats{Mean: 300}},
		{EntityID: "303"},
		{EntityID: "404", Price: &models.SpreadStats{Mean: 80}},
	}
}

func TestInsightTopEntities(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	top := svc.TopEntities(sampleSummaries(), 2)
	if len(top) != 2 {
		t.Fatalf("TopEntities: got %d, want 2", len(top))
	}
	if top[0].EntityID != "202" || top[1].EntityID != "101" {
		t.Errorf("TopEntities order: got %s, %s", top[0].EntityID, top[1].EntityID)
	}

	all := svc.TopEntities(sampleSummaries(), 10)
	if len(all) != 3 {
		t.Errorf("entities without price should be skipped, got %d", len(all))
	}
}

func TestInsightPeakMonths(t *testing.T) {
	svc := NewInsightService(utils.NewNopLogger())
	peaks := svc.PeakMonths([]models.SeasonalIndex{
		{EntityID: "101", MonthName: "July", IsPeakSeason: true},
		{EntityID: "101", MonthName: "March"},
		{EntityID: "101", MonthName: "August", IsPeakSeason: true},
	})
	if got := strings.Join(peaks["101"], ","); got != "July,August" {
		t.Errorf("PeakMonths: got %q", got)
	}
}

func TestInsightPrintFullRun(t *testing.T) {
	p := NewPipeline(utils.NewNopLogger(), DefaultParams(), 2, nil)
	result, err := p.Run(context.Background(), sampleDataset())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var buf bytes.Buffer
	NewInsightService(utils.NewNopLogger()).Print(&buf, result)
	out := buf.String()

	for _, want := range []string{"NIGHTLY PRICE ANALYSIS", "Extrapolated rows", "Top 5 Properties", "Improved Matches by Reason"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestInsightPrintEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewInsightService(utils.NewNopLogger()).Print(&buf, &models.AnalysisResult{})
	if !strings.Contains(buf.String(), "No data analysed") {
		t.Errorf("empty report should say so:\n%s", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"much longer than allowed", 10, "much lo..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q; want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestScaledBar(t *testing.T) {
	if scaledBar(1, 1000, 30) != 1 {
		t.Error("non-zero counts should get at least one cell")
	}
	if scaledBar(50, 100, 30) != 15 {
		t.Error("half the total should fill half the width")
	}
	if scaledBar(0, 100, 30) != 0 {
		t.Error("zero count should be empty")
	}
}
