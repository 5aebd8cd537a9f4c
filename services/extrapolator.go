package services

import (
	"math"
	"time"

	"nightly-price/models"
	"nightly-price/utils"
)

// ExtrapolationStats counts what one backward extrapolation produced.
type ExtrapolationStats struct {
	Entities     int
	Synthesized  int
	DroppedDates int
}

// BackwardExtrapolator synthesizes history before each entity's first
// observed date by analogy to the same calendar day one year later.
type BackwardExtrapolator struct {
	logger  *utils.Logger
	params  ExtrapolationParams
	workers int
}

// NewBackwardExtrapolator creates an extrapolator that fans out per entity on
// up to workers goroutines.
func NewBackwardExtrapolator(logger *utils.Logger, params ExtrapolationParams, workers int) *BackwardExtrapolator {
	return &BackwardExtrapolator{logger: logger, params: params, workers: workers}
}

// Extrapolate returns a new dataset holding every input record plus the
// synthesized ones, sorted by (entity_id, date) and carrying the
// is_extrapolated column. When the earliest date in the dataset is already on
// or before the cutoff nothing is synthesized.
func (e *BackwardExtrapolator) Extrapolate(ds *models.Dataset) (*models.Dataset, ExtrapolationStats) {
	out := ds.Clone()
	out.Columns = out.Columns.With(models.ColIsExtrapolated)

	var stats ExtrapolationStats
	first, _, ok := ds.DateRange()
	if !ok || !Day(first).After(e.params.Cutoff) {
		e.logger.Info("[extrapolator] Data already starts on or before %s, nothing to extrapolate",
			e.params.Cutoff.Format("2006-01-02"))
		models.SortRecords(out.Records)
		return out, stats
	}

	ids, series := out.Partition()
	produced := make([][]*models.PriceRecord, len(ids))
	dropped := make([]int, len(ids))

	utils.ForEach(e.workers, len(ids), func(i int) {
		produced[i], dropped[i] = e.extrapolateEntity(ids[i], series[ids[i]])
	})

	for i := range ids {
		if len(produced[i]) > 0 {
			stats.Entities++
		}
		stats.Synthesized += len(produced[i])
		stats.DroppedDates += dropped[i]
		out.Records = append(out.Records, produced[i]...)
	}
	models.SortRecords(out.Records)

	e.logger.Info("[extrapolator] Synthesized %d records for %d entities (dropped %d dates)",
		stats.Synthesized, stats.Entities, stats.DroppedDates)
	return out, stats
}

// extrapolateEntity fills [cutoff, earliest) for one date-sorted series.
func (e *BackwardExtrapolator) extrapolateEntity(id string, series []*models.PriceRecord) ([]*models.PriceRecord, int) {
	if len(series) == 0 {
		return nil, 0
	}
	earliest := Day(series[0].Date)
	if !earliest.After(e.params.Cutoff) {
		return nil, 0
	}

	byDate := make(map[time.Time]*models.PriceRecord, len(series))
	for _, r := range series {
		byDate[Day(r.Date)] = r
	}

	var out []*models.PriceRecord
	dropped := 0
	for d := e.params.Cutoff; d.Before(earliest); d = d.AddDate(0, 0, 1) {
		rec, ok := e.synthesize(id, d, byDate)
		if !ok {
			dropped++
			continue
		}
		out = append(out, rec)
	}

	if len(out) > 0 {
		e.logger.Debug("[extrapolator] %s: synthesized %d records between %s and %s",
			id, len(out), e.params.Cutoff.Format("2006-01-02"), earliest.AddDate(0, 0, -1).Format("2006-01-02"))
	}
	return out, dropped
}

// synthesize builds the record for missing date d, or reports false when no
// price can be resolved.
func (e *BackwardExtrapolator) synthesize(id string, d time.Time, byDate map[time.Time]*models.PriceRecord) (*models.PriceRecord, bool) {
	next := AddYears(d, 1)
	rec := &models.PriceRecord{EntityID: id, Date: d, IsExtrapolated: true}

	if exact, ok := byDate[next]; ok {
		rec.Event = models.CopyFloat(exact.Event)
		rec.Seasonality = models.CopyFloat(exact.Seasonality)
		rec.Base = models.CopyFloat(exact.Base)
	}

	matches, nearest := e.weekdayMatches(next, byDate)
	switch len(matches) {
	case 0:
	case 1:
		rec.DOW = models.CopyFloat(matches[0].DOW)
	default:
		rec.DOW = meanOfPresent(matches, models.ColDOW)
	}

	var price float64
	switch {
	case rec.Base != nil && rec.Seasonality != nil && rec.DOW != nil && rec.Event != nil:
		price = (*rec.Base + *rec.Seasonality + *rec.DOW + *rec.Event) * e.params.DiscountFactor
	case nearest != nil && nearest.Price != nil:
		price = *nearest.Price * e.params.DiscountFactor
	default:
		e.logger.Warn("[extrapolator] %s: no price source for %s, skipping", id, d.Format("2006-01-02"))
		return nil, false
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		e.logger.Warn("[extrapolator] %s: non-finite price for %s, skipping", id, d.Format("2006-01-02"))
		return nil, false
	}
	rec.Price = models.Float(price)
	return rec, true
}

// weekdayMatches returns the records sharing next's weekday within the search
// window, oldest first, plus the one closest to next. Equal distances resolve
// to the earlier date.
func (e *BackwardExtrapolator) weekdayMatches(next time.Time, byDate map[time.Time]*models.PriceRecord) ([]*models.PriceRecord, *models.PriceRecord) {
	var (
		matches []*models.PriceRecord
		nearest *models.PriceRecord
		best    = math.MaxInt
	)
	span := e.params.DOWSearchDays - e.params.DOWSearchDays%7
	for off := -span; off <= span; off += 7 {
		r, ok := byDate[next.AddDate(0, 0, off)]
		if !ok {
			continue
		}
		matches = append(matches, r)
		if dist := absInt(off); dist < best {
			best, nearest = dist, r
		}
	}
	return matches, nearest
}

// meanOfPresent averages the non-missing values of column c, or nil when all
// are missing.
func meanOfPresent(records []*models.PriceRecord, c models.Column) *float64 {
	var sum float64
	n := 0
	for _, r := range records {
		if v := r.Factor(c); v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	return models.Float(sum / float64(n))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
