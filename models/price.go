package models

import (
	"sort"
	"time"
)

// Column names a field of a price dataset. Factor columns may be absent from
// a whole dataset, which is different from a single missing value.
type Column uint16

const (
	ColBase Column = 1 << iota
	ColSeasonality
	ColDOW
	ColEvent
	ColPrice
	ColTotalPrice
	ColEventFactor
	ColIsExtrapolated
)

// FactorColumns are the additive price components, in summation order.
var FactorColumns = []Column{ColBase, ColSeasonality, ColDOW, ColEvent}

var columnNames = map[Column]string{
	ColBase:           "base",
	ColSeasonality:    "seasonality",
	ColDOW:            "dow",
	ColEvent:          "event",
	ColPrice:          "price",
	ColTotalPrice:     "total_price",
	ColEventFactor:    "event_factor",
	ColIsExtrapolated: "is_extrapolated",
}

func (c Column) String() string {
	if name, ok := columnNames[c]; ok {
		return name
	}
	return "unknown"
}

// ColumnByName maps a header name to its Column.
func ColumnByName(name string) (Column, bool) {
	for c, n := range columnNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// ColumnSet records which optional columns a dataset carries.
type ColumnSet uint16

// SourceColumns is the column set returned by the nightly price source.
const SourceColumns = ColumnSet(ColBase | ColSeasonality | ColDOW | ColEvent | ColPrice)

func (s ColumnSet) Has(c Column) bool { return s&ColumnSet(c) != 0 }

func (s ColumnSet) With(c Column) ColumnSet { return s | ColumnSet(c) }

// PriceRecord is one observation or synthesized estimate for one unit on one
// date. Nil factor pointers are missing values.
type PriceRecord struct {
	EntityID       string
	Date           time.Time
	Base           *float64
	Seasonality    *float64
	DOW            *float64
	Event          *float64
	EventFactor    *float64
	Price          *float64
	TotalPrice     float64
	IsExtrapolated bool
}

// Factor returns the value of a factor column for the record.
func (r *PriceRecord) Factor(c Column) *float64 {
	switch c {
	case ColBase:
		return r.Base
	case ColSeasonality:
		return r.Seasonality
	case ColDOW:
		return r.DOW
	case ColEvent:
		return r.Event
	case ColEventFactor:
		return r.EventFactor
	case ColPrice:
		return r.Price
	}
	return nil
}

// Clone returns a copy whose pointer fields do not alias the receiver.
func (r *PriceRecord) Clone() *PriceRecord {
	c := *r
	c.Base = CopyFloat(r.Base)
	c.Seasonality = CopyFloat(r.Seasonality)
	c.DOW = CopyFloat(r.DOW)
	c.Event = CopyFloat(r.Event)
	c.EventFactor = CopyFloat(r.EventFactor)
	c.Price = CopyFloat(r.Price)
	return &c
}

// Dataset is an in-memory table of price records plus the set of columns it
// carries.
type Dataset struct {
	Columns ColumnSet
	Records []*PriceRecord
}

// NewDataset builds a dataset over the given records.
func NewDataset(cols ColumnSet, records []*PriceRecord) *Dataset {
	if records == nil {
		records = []*PriceRecord{}
	}
	return &Dataset{Columns: cols, Records: records}
}

// Len returns the number of records; a nil dataset has none.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Clone deep-copies the dataset.
func (d *Dataset) Clone() *Dataset {
	out := make([]*PriceRecord, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.Clone()
	}
	return &Dataset{Columns: d.Columns, Records: out}
}

// EntityIDs returns the distinct entity ids, sorted.
func (d *Dataset) EntityIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, r := range d.Records {
		if _, ok := seen[r.EntityID]; ok {
			continue
		}
		seen[r.EntityID] = struct{}{}
		ids = append(ids, r.EntityID)
	}
	sort.Strings(ids)
	return ids
}

// DateRange returns the earliest and latest dates. ok is false for an empty
// dataset.
func (d *Dataset) DateRange() (first, last time.Time, ok bool) {
	for i, r := range d.Records {
		if i == 0 || r.Date.Before(first) {
			first = r.Date
		}
		if i == 0 || r.Date.After(last) {
			last = r.Date
		}
	}
	return first, last, len(d.Records) > 0
}

// HasData reports whether the column exists and at least one record carries a
// value for it.
func (d *Dataset) HasData(c Column) bool {
	if !d.Columns.Has(c) {
		return false
	}
	for _, r := range d.Records {
		if r.Factor(c) != nil {
			return true
		}
	}
	return false
}

// Partition groups records by entity id. Each series is sorted by date and the
// returned ids are sorted, so iteration order is deterministic.
func (d *Dataset) Partition() (ids []string, series map[string][]*PriceRecord) {
	series = make(map[string][]*PriceRecord)
	for _, r := range d.Records {
		series[r.EntityID] = append(series[r.EntityID], r)
	}
	for id, s := range series {
		ids = append(ids, id)
		sort.SliceStable(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })
	}
	sort.Strings(ids)
	return ids, series
}

// SortRecords orders records by (entity_id, date).
func SortRecords(records []*PriceRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].EntityID != records[j].EntityID {
			return records[i].EntityID < records[j].EntityID
		}
		return records[i].Date.Before(records[j].Date)
	})
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// CopyFloat returns a fresh pointer holding *p, or nil.
func CopyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ValueOr returns *p, or def when p is nil.
func ValueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
