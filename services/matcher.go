package services

import (
	"math"
	"sort"
	"time"

	"nightly-price/models"
	"nightly-price/utils"
)

// AnalogMatcher synthesizes forecast-window records from the closest
// comparable date one year earlier.
type AnalogMatcher struct {
	logger  *utils.Logger
	params  MatchParams
	workers int
}

// NewAnalogMatcher creates a matcher that fans out per entity on up to
// workers goroutines.
func NewAnalogMatcher(logger *utils.Logger, params MatchParams, workers int) *AnalogMatcher {
	return &AnalogMatcher{logger: logger, params: params, workers: workers}
}

// tier is one rule of the matching cascade.
type tier struct {
	reason models.MatchReason
	days   int
	accept func(past *models.PriceRecord) bool
}

// Match returns one improved match per target record in [WindowStart,
// WindowEnd] for which some tier finds an analog. The input is not modified.
func (m *AnalogMatcher) Match(ds *models.Dataset) *models.MatchSet {
	hasEvent := ds.Columns.Has(models.ColEvent)
	set := &models.MatchSet{HasEventMatch: hasEvent, Records: []*models.MatchRecord{}}

	ids, series := ds.Partition()
	produced := make([][]*models.MatchRecord, len(ids))

	utils.ForEach(m.workers, len(ids), func(i int) {
		produced[i] = m.matchEntity(ids[i], series[ids[i]], hasEvent)
	})

	for _, recs := range produced {
		set.Records = append(set.Records, recs...)
	}

	if len(set.Records) == 0 {
		m.logger.Warn("[matcher] No improved matches found between %s and %s",
			m.params.WindowStart.Format("2006-01-02"), m.params.WindowEnd.Format("2006-01-02"))
		return set
	}

	m.logger.Info("[matcher] Found %d improved matches across %d entities", len(set.Records), len(ids))
	for reason, n := range set.ReasonCounts() {
		m.logger.Debug("[matcher] %s: %d", reason, n)
	}
	return set
}

// matchEntity runs the cascade for every target date of one date-sorted series.
func (m *AnalogMatcher) matchEntity(id string, series []*models.PriceRecord, hasEvent bool) []*models.MatchRecord {
	cut := sort.Search(len(series), func(i int) bool {
		return !Day(series[i].Date).Before(m.params.PastBoundary)
	})
	past := series[:cut]
	if len(past) == 0 {
		m.logger.Debug("[matcher] %s: no history before %s, skipping",
			id, m.params.PastBoundary.Format("2006-01-02"))
		return nil
	}

	var out []*models.MatchRecord
	for _, t := range series {
		d := Day(t.Date)
		if d.Before(m.params.WindowStart) || d.After(m.params.WindowEnd) {
			continue
		}
		target := AddYears(d, -1)

		match, reason := m.resolve(t, target, past, hasEvent)
		if match == nil {
			continue
		}
		out = append(out, m.emit(id, d, target, match, reason, hasEvent))
	}
	return out
}

// resolve walks the tiers in order and returns the first analog found.
func (m *AnalogMatcher) resolve(t *models.PriceRecord, target time.Time, past []*models.PriceRecord, hasEvent bool) (*models.PriceRecord, models.MatchReason) {
	for _, tr := range m.tiers(t, target, hasEvent) {
		if best := closest(past, target, tr.days, tr.accept); best != nil {
			return best, tr.reason
		}
	}
	return nil, ""
}

// tiers builds the cascade applicable to target record t.
func (m *AnalogMatcher) tiers(t *models.PriceRecord, target time.Time, hasEvent bool) []tier {
	p := m.params
	weekday := target.Weekday()
	lowEvent := func(r *models.PriceRecord) bool {
		return r.Event == nil || *r.Event <= p.LowEventThreshold
	}
	sameWeekdayLowEvent := func(r *models.PriceRecord) bool {
		return r.Date.Weekday() == weekday && (!hasEvent || lowEvent(r))
	}

	var out []tier
	if hasEvent && t.Event != nil && *t.Event > p.EventThreshold {
		ev := *t.Event
		out = append(out, tier{
			reason: models.ReasonEvent,
			days:   p.EventWindowDays,
			accept: func(r *models.PriceRecord) bool {
				return r.Event != nil && math.Abs(*r.Event-ev) <= p.EventTolerance
			},
		})
	}
	if hasEvent {
		out = append(out, tier{reason: models.ReasonWeekdayNoEvent, days: p.WeekdayWindowDays, accept: sameWeekdayLowEvent})
	}
	out = append(out,
		tier{reason: models.ReasonWeekday, days: p.WideWeekdayWindowDays, accept: sameWeekdayLowEvent},
		tier{reason: models.ReasonClosestDate, days: p.ClosestWindowDays, accept: func(*models.PriceRecord) bool { return true }},
	)
	return out
}

// closest returns the accepted record nearest to target within +-days. past
// is date-sorted, so on equal distance the earlier date wins.
func closest(past []*models.PriceRecord, target time.Time, days int, accept func(*models.PriceRecord) bool) *models.PriceRecord {
	lo := target.AddDate(0, 0, -days)
	hi := target.AddDate(0, 0, days)
	start := sort.Search(len(past), func(i int) bool { return !Day(past[i].Date).Before(lo) })

	var best *models.PriceRecord
	bestDist := math.MaxInt
	for _, r := range past[start:] {
		d := Day(r.Date)
		if d.After(hi) {
			break
		}
		if !accept(r) {
			continue
		}
		if dist := AbsDays(d, target); dist < bestDist {
			best, bestDist = r, dist
		}
	}
	return best
}

func (m *AnalogMatcher) emit(id string, date, target time.Time, match *models.PriceRecord, reason models.MatchReason, hasEvent bool) *models.MatchRecord {
	rec := &models.MatchRecord{
		EntityID:        id,
		Date:            date,
		MatchedFrom:     Day(match.Date),
		DaysDiff:        AbsDays(match.Date, target),
		MatchReason:     reason,
		IsImprovedMatch: true,
		EventMatch:      hasEvent && reason == models.ReasonEvent,
		Base:            models.CopyFloat(match.Base),
		Seasonality:     models.CopyFloat(match.Seasonality),
		DOW:             models.CopyFloat(match.DOW),
		Event:           models.CopyFloat(match.Event),
	}
	if match.Price != nil {
		rec.Price = models.Float(*match.Price * m.params.UpliftFactor)
	}
	return rec
}
