package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"nightly-price/models"
	"nightly-price/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// TopEntities returns up to n entity summaries ordered by mean price, highest
// first. Entities without a price are left out.
func (s *InsightService) TopEntities(summaries []models.EntitySummary, n int) []models.EntitySummary {
	var priced []models.EntitySummary
	for _, e := range summaries {
		if e.Price != nil {
			priced = append(priced, e)
		}
	}
	sort.SliceStable(priced, func(i, j int) bool {
		return priced[i].Price.Mean > priced[j].Price.Mean
	})
	if len(priced) > n {
		priced = priced[:n]
	}
	return priced
}

// PeakMonths returns, per entity, the month names flagged as peak season.
func (s *InsightService) PeakMonths(seasonal []models.SeasonalIndex) map[string][]string {
	out := make(map[string][]string)
	for _, si := range seasonal {
		if si.IsPeakSeason {
			out[si.EntityID] = append(out[si.EntityID], si.MonthName)
		}
	}
	return out
}

// Print writes the console report for one analysis run.
func (s *InsightService) Print(w io.Writer, r *models.AnalysisResult) {
	sep := strings.Repeat("═", 58)
	thin := strings.Repeat("─", 58)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 NIGHTLY PRICE ANALYSIS  (run %s)\033[0m\n", truncate(r.RunID, 8))
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	ov := r.Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if ov == nil || ov.TotalRows == 0 {
		fmt.Fprintf(w, "  No data analysed\n\n")
		fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)
		return
	}
	fmt.Fprintf(w, "  Total rows        : \033[1m%d\033[0m\n", ov.TotalRows)
	fmt.Fprintf(w, "  Properties        : \033[1m%d\033[0m\n", len(ov.EntityIDs))
	fmt.Fprintf(w, "  Date range        : %s → %s\n", ov.Start.Format("2006-01-02"), ov.End.Format("2006-01-02"))
	fmt.Fprintf(w, "  Extrapolated rows : \033[1m%d\033[0m (%.1f%%)\n", ov.ExtrapolatedCount, ov.ExtrapolatedPercentage)
	fmt.Fprintln(w)

	// Price Stats
	fmt.Fprintf(w, "\033[1;33m  Price Statistics (per night)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if ov.Price != nil {
		fmt.Fprintf(w, "  Average price : \033[1;32m$%.2f\033[0m\n", round2(ov.Price.Mean))
		fmt.Fprintf(w, "  Median price  : \033[1;32m$%.2f\033[0m\n", round2(ov.Price.Median))
		fmt.Fprintf(w, "  Minimum price : \033[1;32m$%.2f\033[0m\n", round2(ov.Price.Min))
		fmt.Fprintf(w, "  Maximum price : \033[1;32m$%.2f\033[0m\n", round2(ov.Price.Max))
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	// ── TOP 5 BY MEAN PRICE ─────────────────────────────────────────────
	fmt.Fprintf(w, "\033[1;33m  Top 5 Properties by Mean Price\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	top := s.TopEntities(r.Summaries, 5)
	if len(top) == 0 {
		fmt.Fprintf(w, "  No priced properties found\n")
	}
	for i, e := range top {
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-30s \033[1;32m$%.2f\033[0m\n", i+1, truncate(e.EntityID, 28), round2(e.Price.Mean))
	}
	fmt.Fprintln(w)

	// Improved matches
	fmt.Fprintf(w, "\033[1;33m  Improved Matches by Reason\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.Matches.Len() == 0 {
		fmt.Fprintf(w, "  No improved matches\n")
	} else {
		type reasonCount struct {
			reason models.MatchReason
			count  int
		}
		var reasons []reasonCount
		for reason, n := range r.Matches.ReasonCounts() {
			reasons = append(reasons, reasonCount{reason, n})
		}
		sort.Slice(reasons, func(i, j int) bool {
			if reasons[i].count != reasons[j].count {
				return reasons[i].count > reasons[j].count
			}
			return reasons[i].reason < reasons[j].reason
		})
		for _, rc := range reasons {
			bar := strings.Repeat("█", scaledBar(rc.count, r.Matches.Len(), 30))
			fmt.Fprintf(w, "  %-24s %s (%d)\n", rc.reason, bar, rc.count)
		}
	}
	fmt.Fprintln(w)

	// Peak seasons
	fmt.Fprintf(w, "\033[1;33m  Peak Seasons\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	peaks := s.PeakMonths(r.Seasonal)
	if len(peaks) == 0 {
		fmt.Fprintf(w, "  No peak months detected\n")
	}
	for _, id := range ov.EntityIDs {
		if months := peaks[id]; len(months) > 0 {
			fmt.Fprintf(w, "  %-20s %s\n", truncate(id, 18), strings.Join(months, ", "))
		}
	}

	if r.Events != nil && !r.Events.Available {
		fmt.Fprintf(w, "\n  \033[2m%s\033[0m\n", r.Events.Message)
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// scaledBar maps count/total onto a bar of at most width cells, minimum 1.
func scaledBar(count, total, width int) int {
	if total <= 0 || count <= 0 {
		return 0
	}
	n := count * width / total
	if n < 1 {
		n = 1
	}
	return n
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
