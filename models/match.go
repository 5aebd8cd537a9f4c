package models

import "time"

// MatchReason names the rule tier that selected a historical analog.
type MatchReason string

const (
	ReasonEvent          MatchReason = "event_match"
	ReasonWeekdayNoEvent MatchReason = "weekday_match_no_event"
	ReasonWeekday        MatchReason = "weekday_match"
	ReasonClosestDate    MatchReason = "closest_date"
)

// MatchRecord is a synthesized forecast-window record built from a prior-year
// analog. It never enters the main price series.
type MatchRecord struct {
	EntityID        string
	Date            time.Time
	MatchedFrom     time.Time
	DaysDiff        int
	MatchReason     MatchReason
	IsImprovedMatch bool
	EventMatch      bool
	Price           *float64
	Base            *float64
	Seasonality     *float64
	DOW             *float64
	Event           *float64
}

// MatchSet is the output of the analog matcher. A nil *MatchSet means the
// matcher has not run; an empty Records slice means it ran and found nothing.
type MatchSet struct {
	// HasEventMatch is set when the input carried an event column, which is
	// when the EventMatch field of each record is meaningful.
	HasEventMatch bool
	Records       []*MatchRecord
}

// Len returns the number of matches; a nil set has none.
func (m *MatchSet) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Records)
}

// ReasonCounts tallies records per match reason.
func (m *MatchSet) ReasonCounts() map[MatchReason]int {
	counts := make(map[MatchReason]int)
	if m == nil {
		return counts
	}
	for _, r := range m.Records {
		counts[r.MatchReason]++
	}
	return counts
}
