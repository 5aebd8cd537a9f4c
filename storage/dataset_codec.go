package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"nightly-price/models"
)

const dateLayout = "2006-01-02"

// datasetColumns is the on-disk column order after entity_id and date.
var datasetColumns = []models.Column{
	models.ColBase, models.ColSeasonality, models.ColDOW, models.ColEvent,
	models.ColEventFactor, models.ColPrice, models.ColTotalPrice, models.ColIsExtrapolated,
}

// ReadDataset parses delimited price rows. The header decides which columns
// the dataset carries; an empty cell is a missing value. total_price is read
// for completeness but is always recomputed downstream.
func ReadDataset(r io.Reader) (*models.Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: read: %w", err)
	}
	return datasetFromRows(rows)
}

// datasetFromRows builds a dataset from a header row plus data rows. It backs
// both the CSV and the spreadsheet readers.
func datasetFromRows(rows [][]string) (*models.Dataset, error) {
	if len(rows) == 0 {
		return nil, errors.New("csv: empty input, expected a header row")
	}

	entityIdx, dateIdx := -1, -1
	colIdx := make(map[models.Column]int)
	var cols models.ColumnSet
	for i, name := range rows[0] {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "entity_id", "property_id":
			entityIdx = i
		case "date":
			dateIdx = i
		default:
			if c, ok := models.ColumnByName(name); ok {
				colIdx[c] = i
				cols = cols.With(c)
			}
		}
	}
	if entityIdx < 0 || dateIdx < 0 {
		return nil, &models.PreconditionError{Row: 0, Err: fmt.Errorf("header lacks entity_id or date: %w", models.ErrMissingKey)}
	}

	records := make([]*models.PriceRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		line := n + 2
		if isBlank(row) {
			continue
		}
		rec := &models.PriceRecord{EntityID: strings.TrimSpace(cell(row, entityIdx))}
		if raw := strings.TrimSpace(cell(row, dateIdx)); raw != "" {
			d, err := parseDate(raw)
			if err != nil {
				return nil, fmt.Errorf("csv: line %d: %w", line, err)
			}
			rec.Date = d
		}

		for c, i := range colIdx {
			raw := strings.TrimSpace(cell(row, i))
			if raw == "" {
				continue
			}
			if c == models.ColIsExtrapolated {
				b, err := strconv.ParseBool(raw)
				if err != nil {
					return nil, fmt.Errorf("csv: line %d: is_extrapolated %q: %w", line, raw, err)
				}
				rec.IsExtrapolated = b
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("csv: line %d: %s %q: %w", line, c, raw, err)
			}
			setColumn(rec, c, v)
		}
		records = append(records, rec)
	}
	return models.NewDataset(cols, records), nil
}

// WriteDataset writes ds as CSV with the columns it carries.
func WriteDataset(w io.Writer, ds *models.Dataset) error {
	cw := csv.NewWriter(w)
	header := []string{"entity_id", "date"}
	var cols []models.Column
	for _, c := range datasetColumns {
		if ds.Columns.Has(c) {
			cols = append(cols, c)
			header = append(header, c.String())
		}
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}

	for _, r := range ds.Records {
		row := make([]string, 0, len(header))
		row = append(row, r.EntityID, r.Date.Format(dateLayout))
		for _, c := range cols {
			switch c {
			case models.ColTotalPrice:
				row = append(row, formatFloat(r.TotalPrice))
			case models.ColIsExtrapolated:
				row = append(row, strconv.FormatBool(r.IsExtrapolated))
			default:
				row = append(row, formatOptional(r.Factor(c)))
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func setColumn(r *models.PriceRecord, c models.Column, v float64) {
	switch c {
	case models.ColBase:
		r.Base = models.Float(v)
	case models.ColSeasonality:
		r.Seasonality = models.Float(v)
	case models.ColDOW:
		r.DOW = models.Float(v)
	case models.ColEvent:
		r.Event = models.Float(v)
	case models.ColEventFactor:
		r.EventFactor = models.Float(v)
	case models.ColPrice:
		r.Price = models.Float(v)
	case models.ColTotalPrice:
		r.TotalPrice = v
	}
}

// parseDate accepts plain dates and full timestamps, keeping the calendar day.
func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{dateLayout, time.RFC3339, "2006-01-02 15:04:05", "1/2/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(p *float64) string {
	if p == nil {
		return ""
	}
	return formatFloat(*p)
}
