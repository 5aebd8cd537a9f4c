package cli

import (
	"context"
	"time"

	"nightly-price/config"
	"nightly-price/metrics"
	"nightly-price/services"
	"nightly-price/storage"
	"nightly-price/utils"
)

// app holds the collaborators shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *utils.Logger
	recorder *metrics.Recorder
	store    *storage.PostgresStore
	cache    *storage.CSVCache
	fetcher  *storage.Fetcher
	pipeline *services.Pipeline
}

// newApp wires the application. When connectDB is set it tries to reach
// PostgreSQL; a failure is logged and the app runs on the cache alone.
func newApp(ctx context.Context, cfg *config.Config, connectDB bool) *app {
	logger := utils.NewLoggerWithOptions(utils.LogOptions{Level: cfg.LogLevel, Format: cfg.LogFormat})
	recorder := metrics.New()

	a := &app{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		cache:    storage.NewCSVCache(cfg.CacheDir, logger),
		pipeline: services.NewPipeline(logger, services.ParamsFromConfig(cfg.Analysis), cfg.MaxConcurrency, recorder),
	}

	var source storage.PriceSource
	if connectDB {
		store, err := a.connect(ctx, 3)
		if err != nil {
			logger.Warn("[app] Database unavailable, continuing with cache only: %v", err)
		} else {
			a.store = store
			source = store
		}
	}
	a.fetcher = storage.NewFetcher(source, a.cache, cfg.MaxRetries, logger).WithObserver(recorder)
	return a
}

func (a *app) connect(ctx context.Context, attempts int) (*storage.PostgresStore, error) {
	return storage.NewPostgresStore(ctx, a.cfg.DSN(), storage.PostgresOptions{
		PriceTable:   a.cfg.PriceTable,
		ChunkSize:    a.cfg.DBChunkSize,
		Workers:      a.cfg.MaxConcurrency,
		RateLimitMs:  a.cfg.RateLimitMs,
		PingAttempts: attempts,
		PingDelay:    2 * time.Second,
	}, a.logger)
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("[app] Closing database: %v", err)
		}
	}
}
