package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"nightly-price/models"
	"nightly-price/utils"
)

var identRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresOptions tunes how PostgresStore reads the price table.
type PostgresOptions struct {
	PriceTable   string
	ChunkSize    int
	Workers      int
	RateLimitMs  int
	PingAttempts int
	PingDelay    time.Duration
}

// PostgresStore reads nightly prices from PostgreSQL and persists improved
// matches back to it.
type PostgresStore struct {
	db     *sql.DB
	table  string
	opts   PostgresOptions
	logger *utils.Logger
}

// TableInfo describes the price table for connection diagnostics.
type TableInfo struct {
	Table    string
	Rows     int
	Entities int
	First    time.Time
	Last     time.Time
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(ctx context.Context, dsn string, opts PostgresOptions, logger *utils.Logger) (*PostgresStore, error) {
	if !identRegexp.MatchString(opts.PriceTable) {
		return nil, fmt.Errorf("postgres: invalid table name %q", opts.PriceTable)
	}
	if opts.ChunkSize < 1 {
		opts.ChunkSize = 25
	}
	if opts.PingAttempts < 1 {
		opts.PingAttempts = 10
	}
	if opts.PingDelay <= 0 {
		opts.PingDelay = 2 * time.Second
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < opts.PingAttempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		logger.Warn("[postgres] Ping attempt %d/%d failed: %v", i+1, opts.PingAttempts, err)
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping cancelled: %w", ctx.Err())
		case <-time.After(opts.PingDelay):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db, table: pq.QuoteIdentifier(opts.PriceTable), opts: opts, logger: logger}
	if err := ps.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			entity_id   TEXT    NOT NULL,
			date        DATE    NOT NULL,
			base        NUMERIC(12,4),
			seasonality NUMERIC(12,4),
			dow         NUMERIC(12,4),
			event       NUMERIC(12,4),
			price       NUMERIC(12,4),
			PRIMARY KEY (entity_id, date)
		);

		CREATE TABLE IF NOT EXISTS improved_matches (
			run_id       UUID          NOT NULL,
			entity_id    TEXT          NOT NULL,
			date         DATE          NOT NULL,
			matched_from DATE          NOT NULL,
			days_diff    INTEGER       NOT NULL,
			match_reason VARCHAR(32)   NOT NULL,
			event_match  BOOLEAN,
			price        NUMERIC(12,4),
			base         NUMERIC(12,4),
			seasonality  NUMERIC(12,4),
			dow          NUMERIC(12,4),
			event        NUMERIC(12,4),
			created_at   TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			PRIMARY KEY (run_id, entity_id, date)
		);

		CREATE INDEX IF NOT EXISTS idx_improved_matches_reason ON improved_matches(match_reason);
	`, ps.table))
	return err
}

// Ping checks that the database is reachable.
func (ps *PostgresStore) Ping(ctx context.Context) error {
	if err := ps.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Describe returns row, entity and date-range counts of the price table.
func (ps *PostgresStore) Describe(ctx context.Context) (*TableInfo, error) {
	info := &TableInfo{Table: ps.opts.PriceTable}
	var first, last sql.NullTime
	err := ps.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*), COUNT(DISTINCT entity_id), MIN(date), MAX(date) FROM %s`, ps.table),
	).Scan(&info.Rows, &info.Entities, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("postgres: describe: %w", err)
	}
	info.First, info.Last = first.Time, last.Time
	return info, nil
}

// FetchPrices loads the price rows of the given entities, or of every entity
// when the list is empty. Large id lists are split into chunks queried in
// parallel on the worker pool.
func (ps *PostgresStore) FetchPrices(ctx context.Context, entityIDs []string) (*models.Dataset, error) {
	if len(entityIDs) == 0 {
		records, err := ps.queryPrices(ctx, nil)
		if err != nil {
			return nil, err
		}
		return models.NewDataset(models.SourceColumns, records), nil
	}

	chunks := chunkStrings(entityIDs, ps.opts.ChunkSize)
	results := make([][]*models.PriceRecord, len(chunks))

	var (
		mu       sync.Mutex
		firstErr error
	)
	pool := utils.NewWorkerPool(ps.opts.Workers, ps.opts.RateLimitMs)
	for i, chunk := range chunks {
		pool.Submit(func() {
			records, err := ps.queryPrices(ctx, chunk)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			results[i] = records
			ps.logger.Debug("[postgres] Chunk %d/%d: %d rows", i+1, len(chunks), len(records))
		})
	}
	pool.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	var records []*models.PriceRecord
	for _, r := range results {
		records = append(records, r...)
	}
	ps.logger.Info("[postgres] Fetched %d rows for %d entities", len(records), len(entityIDs))
	return models.NewDataset(models.SourceColumns, records), nil
}

func (ps *PostgresStore) queryPrices(ctx context.Context, ids []string) ([]*models.PriceRecord, error) {
	query := fmt.Sprintf(`
		SELECT entity_id::text, date, base, seasonality, dow, event, price
		FROM %s`, ps.table)
	var args []interface{}
	if ids != nil {
		query += ` WHERE entity_id::text = ANY($1)`
		args = append(args, pq.Array(ids))
	}
	query += ` ORDER BY entity_id, date`

	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch prices: %w", err)
	}
	defer rows.Close()

	var records []*models.PriceRecord
	for rows.Next() {
		var r models.PriceRecord
		var base, seasonality, dow, event, price sql.NullFloat64
		if err := rows.Scan(&r.EntityID, &r.Date, &base, &seasonality, &dow, &event, &price); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		y, m, d := r.Date.Date()
		r.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		r.Base = nullable(base)
		r.Seasonality = nullable(seasonality)
		r.DOW = nullable(dow)
		r.Event = nullable(event)
		r.Price = nullable(price)
		records = append(records, &r)
	}
	return records, rows.Err()
}

// ClearMatches deletes the stored matches of one run.
func (ps *PostgresStore) ClearMatches(ctx context.Context, runID string) error {
	_, err := ps.db.ExecContext(ctx, "DELETE FROM improved_matches WHERE run_id = $1", runID)
	if err != nil {
		return fmt.Errorf("postgres: clear matches: %w", err)
	}
	return nil
}

// WriteMatches batch-inserts the improved matches of a run, replacing any rows
// previously stored under the same run id.
func (ps *PostgresStore) WriteMatches(ctx context.Context, runID string, set *models.MatchSet) error {
	if set.Len() == 0 {
		return nil
	}

	if err := ps.ClearMatches(ctx, runID); err != nil {
		return err
	}

	const batchSize = 50
	for i := 0; i < len(set.Records); i += batchSize {
		end := i + batchSize
		if end > len(set.Records) {
			end = len(set.Records)
		}
		if err := ps.insertBatch(ctx, runID, set.HasEventMatch, set.Records[i:end]); err != nil {
			return fmt.Errorf("postgres: insert matches: %w", err)
		}
	}
	ps.logger.Info("[postgres] Stored %d improved matches for run %s", set.Len(), runID)
	return nil
}

const matchColumns = 12

func (ps *PostgresStore) insertBatch(ctx context.Context, runID string, hasEvent bool, batch []*models.MatchRecord) error {
	query, args := buildMatchInsert(runID, hasEvent, batch)
	_, err := ps.db.ExecContext(ctx, query, args...)
	return err
}

// buildMatchInsert renders one multi-row INSERT for a batch of matches.
func buildMatchInsert(runID string, hasEvent bool, batch []*models.MatchRecord) (string, []interface{}) {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*matchColumns)

	for idx, m := range batch {
		base := idx * matchColumns
		placeholders := make([]string, matchColumns)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")

		var eventMatch interface{}
		if hasEvent {
			eventMatch = m.EventMatch
		}
		valueArgs = append(valueArgs,
			runID, m.EntityID, m.Date, m.MatchedFrom, m.DaysDiff, string(m.MatchReason), eventMatch,
			nullArg(m.Price), nullArg(m.Base), nullArg(m.Seasonality), nullArg(m.DOW), nullArg(m.Event))
	}

	query := fmt.Sprintf(`
		INSERT INTO improved_matches
			(run_id, entity_id, date, matched_from, days_diff, match_reason, event_match,
			 price, base, seasonality, dow, event)
		VALUES %s
		ON CONFLICT (run_id, entity_id, date) DO NOTHING
	`, strings.Join(valueStrings, ","))
	return query, valueArgs
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return models.Float(v.Float64)
}

func nullArg(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// chunkStrings splits ids into consecutive slices of at most size elements.
func chunkStrings(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var out [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[i:end])
	}
	return out
}
