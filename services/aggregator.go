package services

import (
	"nightly-price/models"
	"nightly-price/utils"
)

// PriceAggregator derives total_price from the four additive factors.
type PriceAggregator struct {
	logger *utils.Logger
}

// NewPriceAggregator creates a PriceAggregator with the given logger.
func NewPriceAggregator(logger *utils.Logger) *PriceAggregator {
	return &PriceAggregator{logger: logger}
}

// Aggregate returns a copy of ds with TotalPrice set on every record. A factor
// column absent from the whole dataset contributes 0 and is reported once;
// a missing value in a present column also counts as 0. The input is not
// modified and the column set is unchanged apart from total_price.
func (a *PriceAggregator) Aggregate(ds *models.Dataset) *models.Dataset {
	out := ds.Clone()
	out.Columns = out.Columns.With(models.ColTotalPrice)

	var present []models.Column
	for _, c := range models.FactorColumns {
		if ds.Columns.Has(c) {
			present = append(present, c)
			continue
		}
		a.logger.Warn("[aggregator] Column %q not found, using 0 in total_price", c)
	}

	for _, r := range out.Records {
		var total float64
		for _, c := range present {
			total += models.ValueOr(r.Factor(c), 0)
		}
		r.TotalPrice = total
	}

	a.logger.Debug("[aggregator] Computed total_price for %d records", len(out.Records))
	return out
}
