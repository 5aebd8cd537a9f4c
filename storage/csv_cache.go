package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"nightly-price/models"
	"nightly-price/utils"
)

// CacheFileName is the cached copy of the last successful database fetch.
const CacheFileName = "nightly_prices_original.csv"

// ErrNoCache is returned when the cache file does not exist yet.
var ErrNoCache = errors.New("no cached price data")

// CSVCache stores the raw source dataset on disk so a later run can proceed
// without the database. It is safe for concurrent use.
type CSVCache struct {
	mu     sync.Mutex
	path   string
	logger *utils.Logger
}

// NewCSVCache creates a cache rooted at dir. Intermediate directories are
// created on the first Save.
func NewCSVCache(dir string, logger *utils.Logger) *CSVCache {
	return &CSVCache{path: filepath.Join(dir, CacheFileName), logger: logger}
}

// Path returns the cache file location.
func (c *CSVCache) Path() string { return c.path }

// Exists reports whether a cache file is present.
func (c *CSVCache) Exists() bool {
	_, err := os.Stat(c.path)
	return err == nil
}

// Load reads the whole cached dataset.
func (c *CSVCache) Load() (*models.Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("cache: %s: %w", c.path, ErrNoCache)
	}
	if err != nil {
		return nil, fmt.Errorf("cache: open %q: %w", c.path, err)
	}
	defer f.Close()

	ds, err := ReadDataset(f)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	c.logger.Info("[cache] Loaded %d records from %s", ds.Len(), c.path)
	return ds, nil
}

// Save replaces the cache file with ds. The file is written next to the
// target and renamed so a crash never leaves a half-written cache behind.
func (c *CSVCache) Save(ds *models.Dataset) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("cache: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".prices-*.csv")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteDataset(tmp, ds); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("cache: replace %q: %w", c.path, err)
	}

	c.logger.Info("[cache] Saved %d records to %s", ds.Len(), c.path)
	return nil
}

// FetchPrices serves the cached dataset filtered to entityIDs, which makes the
// cache usable anywhere a PriceSource is expected.
func (c *CSVCache) FetchPrices(_ context.Context, entityIDs []string) (*models.Dataset, error) {
	ds, err := c.Load()
	if err != nil {
		return nil, err
	}
	return FilterEntities(ds, entityIDs), nil
}

// FilterEntities keeps only the records whose entity id is listed. An empty
// list keeps everything.
func FilterEntities(ds *models.Dataset, entityIDs []string) *models.Dataset {
	if len(entityIDs) == 0 {
		return ds
	}
	keep := utils.NewKeySet()
	for _, id := range entityIDs {
		keep.Add(id)
	}
	out := make([]*models.PriceRecord, 0, len(ds.Records))
	for _, r := range ds.Records {
		if keep.Contains(r.EntityID) {
			out = append(out, r)
		}
	}
	return models.NewDataset(ds.Columns, out)
}
