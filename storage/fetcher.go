package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nightly-price/models"
	"nightly-price/utils"
)

// Source names where a fetched dataset came from.
type Source string

const (
	SourceDB    Source = "db"
	SourceCache Source = "cache"
)

// FetchOptions controls the fallback policy of one fetch.
type FetchOptions struct {
	// UseCache allows falling back to the cache when the database fails or
	// returns nothing.
	UseCache bool
	// ForceFallback skips the database entirely.
	ForceFallback bool
}

// SourceObserver is notified of the source that served each fetch.
type SourceObserver interface {
	FetchedFrom(source string)
}

// Fetcher loads the source dataset from the database, falling back to the
// CSV cache. A nil DB source means the database is unavailable.
type Fetcher struct {
	db       PriceSource
	cache    *CSVCache
	retry    *utils.RetryConfig
	logger   *utils.Logger
	observer SourceObserver
}

// NewFetcher creates a Fetcher. db may be nil.
func NewFetcher(db PriceSource, cache *CSVCache, maxRetries int, logger *utils.Logger) *Fetcher {
	return &Fetcher{
		db:     db,
		cache:  cache,
		retry:  &utils.RetryConfig{MaxAttempts: maxRetries, BaseDelay: 500 * time.Millisecond, Logger: logger},
		logger: logger,
	}
}

// WithObserver registers an observer for fetch sources.
func (f *Fetcher) WithObserver(o SourceObserver) *Fetcher {
	f.observer = o
	return f
}

// Fetch returns the dataset for entityIDs and the source that served it. It
// only fails when no source yields data.
func (f *Fetcher) Fetch(ctx context.Context, entityIDs []string, opts FetchOptions) (*models.Dataset, Source, error) {
	if opts.ForceFallback {
		f.logger.Info("[fetcher] Forced fallback, reading cache")
		return f.fromCache(ctx, entityIDs, nil)
	}

	var dbErr error
	if f.db == nil {
		dbErr = errors.New("database not configured")
	} else {
		var ds *models.Dataset
		dbErr = f.retry.Do(ctx, "fetch prices", func() error {
			var err error
			ds, err = f.db.FetchPrices(ctx, entityIDs)
			return err
		})
		if dbErr == nil && ds.Len() > 0 {
			f.observe(SourceDB)
			if err := f.cache.Save(ds); err != nil {
				f.logger.Warn("[fetcher] Could not update cache: %v", err)
			}
			return ds, SourceDB, nil
		}
		if dbErr == nil {
			dbErr = errors.New("database returned no rows")
		}
	}

	if !opts.UseCache {
		return nil, "", fmt.Errorf("fetcher: %w", dbErr)
	}
	f.logger.Warn("[fetcher] Database fetch failed (%v), trying cache", dbErr)
	return f.fromCache(ctx, entityIDs, dbErr)
}

func (f *Fetcher) fromCache(ctx context.Context, entityIDs []string, dbErr error) (*models.Dataset, Source, error) {
	ds, err := f.cache.FetchPrices(ctx, entityIDs)
	if err != nil {
		if dbErr != nil {
			return nil, "", fmt.Errorf("fetcher: no data source available: %w", errors.Join(dbErr, err))
		}
		return nil, "", fmt.Errorf("fetcher: %w", err)
	}
	if ds.Len() == 0 {
		return nil, "", fmt.Errorf("fetcher: cache %s holds no rows for the requested entities", f.cache.Path())
	}
	f.observe(SourceCache)
	return ds, SourceCache, nil
}

func (f *Fetcher) observe(s Source) {
	if f.observer != nil {
		f.observer.FetchedFrom(string(s))
	}
}
