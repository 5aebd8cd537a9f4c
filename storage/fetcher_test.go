package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightly-price/models"
	"nightly-price/utils"
)

type fakeSource struct {
	ds    *models.Dataset
	err   error
	calls int
}

func (f *fakeSource) FetchPrices(_ context.Context, _ []string) (*models.Dataset, error) {
	f.calls++
	return f.ds, f.err
}

type sourceLog []string

func (s *sourceLog) FetchedFrom(source string) { *s = append(*s, source) }

func twoEntityDataset() *models.Dataset {
	return models.NewDataset(models.SourceColumns, []*models.PriceRecord{
		{EntityID: "1", Date: day(2024, time.March, 1), Base: models.Float(100), Price: models.Float(100)},
		{EntityID: "2", Date: day(2024, time.March, 1), Base: models.Float(60), Price: models.Float(60)},
	})
}

func TestCSVCacheSaveLoad(t *testing.T) {
	cache := NewCSVCache(t.TempDir(), utils.NewNopLogger())
	assert.False(t, cache.Exists())

	_, err := cache.Load()
	assert.ErrorIs(t, err, ErrNoCache)

	require.NoError(t, cache.Save(twoEntityDataset()))
	assert.True(t, cache.Exists())

	ds, err := cache.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())

	only, err := cache.FetchPrices(context.Background(), []string{"2"})
	require.NoError(t, err)
	require.Equal(t, 1, only.Len())
	assert.Equal(t, "2", only.Records[0].EntityID)
}

func TestFilterEntitiesEmptyKeepsAll(t *testing.T) {
	ds := twoEntityDataset()
	assert.Same(t, ds, FilterEntities(ds, nil))
}

func TestFetchFromDatabaseRefreshesCache(t *testing.T) {
	cache := NewCSVCache(t.TempDir(), utils.NewNopLogger())
	db := &fakeSource{ds: twoEntityDataset()}
	var seen sourceLog
	f := NewFetcher(db, cache, 1, utils.NewNopLogger()).WithObserver(&seen)

	ds, src, err := f.Fetch(context.Background(), nil, FetchOptions{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, SourceDB, src)
	assert.Equal(t, 2, ds.Len())
	assert.True(t, cache.Exists(), "successful fetch should refresh the cache")
	assert.Equal(t, sourceLog{"db"}, seen)
}

func TestFetchFallsBackToCache(t *testing.T) {
	cache := NewCSVCache(t.TempDir(), utils.NewNopLogger())
	require.NoError(t, cache.Save(twoEntityDataset()))

	cases := []struct {
		name string
		db   PriceSource
	}{
		{"database error", &fakeSource{err: errors.New("connection refused")}},
		{"database empty", &fakeSource{ds: models.NewDataset(models.SourceColumns, nil)}},
		{"no database", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFetcher(tc.db, cache, 1, utils.NewNopLogger())
			ds, src, err := f.Fetch(context.Background(), []string{"1"}, FetchOptions{UseCache: true})
			require.NoError(t, err)
			assert.Equal(t, SourceCache, src)
			assert.Equal(t, 1, ds.Len())
		})
	}
}

func TestFetchWithoutCacheFails(t *testing.T) {
	cache := NewCSVCache(t.TempDir(), utils.NewNopLogger())
	require.NoError(t, cache.Save(twoEntityDataset()))
	f := NewFetcher(&fakeSource{err: errors.New("down")}, cache, 1, utils.NewNopLogger())

	_, _, err := f.Fetch(context.Background(), nil, FetchOptions{UseCache: false})
	assert.Error(t, err)
}

func TestFetchForcedFallbackSkipsDatabase(t *testing.T) {
	cache := NewCSVCache(t.TempDir(), utils.NewNopLogger())
	require.NoError(t, cache.Save(twoEntityDataset()))
	db := &fakeSource{ds: twoEntityDataset()}
	f := NewFetcher(db, cache, 1, utils.NewNopLogger())

	_, src, err := f.Fetch(context.Background(), nil, FetchOptions{ForceFallback: true})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, src)
	assert.Zero(t, db.calls)
}

func TestFetchBothSourcesFail(t *testing.T) {
	cache := NewCSVCache(t.TempDir(), utils.NewNopLogger())
	dbErr := errors.New("db down")
	f := NewFetcher(&fakeSource{err: dbErr}, cache, 1, utils.NewNopLogger())

	_, _, err := f.Fetch(context.Background(), nil, FetchOptions{UseCache: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.ErrorIs(t, err, ErrNoCache)
}
