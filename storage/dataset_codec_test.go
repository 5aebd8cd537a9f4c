package storage

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightly-price/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestReadDatasetHeaderDecidesColumns(t *testing.T) {
	in := "property_id,date,base,seasonality,price\n" +
		"101,2024-03-01,100,5,105\n" +
		"101,2024-03-02,100,,\n"

	ds, err := ReadDataset(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())

	assert.True(t, ds.Columns.Has(models.ColBase))
	assert.True(t, ds.Columns.Has(models.ColSeasonality))
	assert.True(t, ds.Columns.Has(models.ColPrice))
	assert.False(t, ds.Columns.Has(models.ColDOW))
	assert.False(t, ds.Columns.Has(models.ColEvent))

	first := ds.Records[0]
	assert.Equal(t, "101", first.EntityID)
	assert.Equal(t, day(2024, time.March, 1), first.Date)
	assert.Equal(t, 105.0, *first.Price)

	second := ds.Records[1]
	assert.Nil(t, second.Seasonality, "empty cell is a missing value")
	assert.Nil(t, second.Price)
}

func TestReadDatasetAcceptsTimestamps(t *testing.T) {
	in := "entity_id,date,price\n7,2024-03-01 00:00:00,50\n7,2024-03-02T00:00:00Z,51\n"
	ds, err := ReadDataset(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.March, 1), ds.Records[0].Date)
	assert.Equal(t, day(2024, time.March, 2), ds.Records[1].Date)
}

func TestReadDatasetMissingKeyHeader(t *testing.T) {
	_, err := ReadDataset(strings.NewReader("date,price\n2024-01-01,5\n"))
	require.Error(t, err)

	var pe *models.PreconditionError
	assert.True(t, errors.As(err, &pe))
	assert.ErrorIs(t, err, models.ErrMissingKey)
}

func TestReadDatasetRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad number": "entity_id,date,price\n1,2024-01-01,cheap\n",
		"bad date":   "entity_id,date,price\n1,yesterday,5\n",
		"bad bool":   "entity_id,date,is_extrapolated\n1,2024-01-01,maybe\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadDataset(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestReadDatasetEmptyInput(t *testing.T) {
	_, err := ReadDataset(strings.NewReader(""))
	assert.Error(t, err)
}

func TestWriteDatasetRoundTrip(t *testing.T) {
	cols := models.SourceColumns.With(models.ColTotalPrice).With(models.ColIsExtrapolated)
	ds := models.NewDataset(cols, []*models.PriceRecord{
		{EntityID: "9", Date: day(2024, time.January, 5), Base: models.Float(80), DOW: models.Float(-2.5), Price: models.Float(77.5), TotalPrice: 77.5, IsExtrapolated: true},
	})

	var buf bytes.Buffer
	require.NoError(t, WriteDataset(&buf, ds))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "entity_id,date,base,seasonality,dow,event,price,total_price,is_extrapolated", lines[0])
	assert.Equal(t, "9,2024-01-05,80,,-2.5,,77.5,77.5,true", lines[1])

	back, err := ReadDataset(&buf)
	require.NoError(t, err)
	assert.Equal(t, cols, back.Columns)
	assert.Equal(t, ds.Records[0].DOW, back.Records[0].DOW)
	assert.True(t, back.Records[0].IsExtrapolated)
}
