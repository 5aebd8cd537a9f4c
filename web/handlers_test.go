package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightly-price/metrics"
	"nightly-price/models"
	"nightly-price/services"
	"nightly-price/storage"
	"nightly-price/utils"
)

type fakeFetcher struct {
	ds   *models.Dataset
	err  error
	opts storage.FetchOptions
}

func (f *fakeFetcher) Fetch(_ context.Context, _ []string, opts storage.FetchOptions) (*models.Dataset, storage.Source, error) {
	f.opts = opts
	if f.err != nil {
		return nil, "", f.err
	}
	if opts.ForceFallback {
		return f.ds, storage.SourceCache, nil
	}
	return f.ds, storage.SourceDB, nil
}

func testDataset() *models.Dataset {
	start := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	var records []*models.PriceRecord
	for _, id := range []string{"1", "2"} {
		for i := 0; i < 500; i++ {
			base, seas, dow, event := 100.0, float64(i%12), float64(i%7), 0.0
			if i%40 == 0 {
				event = 25
			}
			records = append(records, &models.PriceRecord{
				EntityID:    id,
				Date:        start.AddDate(0, 0, i),
				Base:        &base,
				Seasonality: &seas,
				DOW:         &dow,
				Event:       &event,
				Price:       models.Float(base + seas + dow + event),
			})
		}
	}
	return models.NewDataset(models.SourceColumns, records)
}

type testEnv struct {
	srv     *Server
	fetcher *fakeFetcher
	outDir  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := utils.NewNopLogger()
	rec := metrics.New()
	out := t.TempDir()
	f := &fakeFetcher{ds: testDataset()}
	srv, err := NewServer(Deps{
		Fetcher:  f,
		Pipeline: services.NewPipeline(log, services.DefaultParams(), 2, rec),
		Exporter: storage.NewCSVReportWriter(out, log),
		Metrics:  rec,
		RunLimit: 2,
		Logger:   log,
	})
	require.NoError(t, err)
	return &testEnv{srv: srv, fetcher: f, outDir: out}
}

func (e *testEnv) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestHealthAndIndex(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = env.do(t, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nightly Price Dashboard")
}

func TestStepWithoutDataConflicts(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do(t, http.MethodPost, "/api/steps/match")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "no data loaded", body["error"])
}

func TestLoadSources(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/data/load?source=ftp")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", body["status"])

	rec, body = env.do(t, http.MethodPost, "/api/data/load?source=cache")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.fetcher.opts.ForceFallback)
	assert.Equal(t, "cache", body["source"])
	assert.EqualValues(t, 1000, body["rows"])

	rec, _ = env.do(t, http.MethodPost, "/api/data/load?source=db")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.fetcher.opts.UseCache)
	assert.False(t, env.fetcher.opts.ForceFallback)

	rec, body = env.do(t, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["loaded"])
	assert.EqualValues(t, 2, body["entities"])
}

func TestStepsExtendOnDemand(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.do(t, http.MethodPost, "/api/data/load?source=cache")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/datasets/seasonal")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := env.do(t, http.MethodPost, "/api/steps/match")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "match", body["step"])

	rec, _ = env.do(t, http.MethodGet, "/api/datasets/extended")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Greater(t, len(rows), 1000, "extrapolation should add records")
	assert.Contains(t, rows[0], "total_price")

	rec, _ = env.do(t, http.MethodGet, "/api/datasets/matches")
	require.Equal(t, http.StatusOK, rec.Code)
	var matches []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &matches))
	require.NotEmpty(t, matches)
	assert.Contains(t, matches[0], "event_match")
	for _, key := range []string{"base", "seasonality", "dow", "event", "price"} {
		assert.Contains(t, matches[0], key)
	}
	assert.NotNil(t, matches[0]["base"])

	rec, body = env.do(t, http.MethodPost, "/api/steps/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["message"], "distinct event values")

	rec, _ = env.do(t, http.MethodPost, "/api/steps/forecast")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/datasets/nonsense")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunAllStoresRun(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/data/load?source=cache")

	rec, body := env.do(t, http.MethodPost, "/api/steps/all")
	require.Equal(t, http.StatusOK, rec.Code)
	runID, _ := body["run_id"].(string)
	require.NotEmpty(t, runID)

	rec, body = env.do(t, http.MethodGet, "/api/runs/"+runID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, runID, body["run_id"])
	assert.NotNil(t, body["overview"])

	rec, _ = env.do(t, http.MethodGet, "/api/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = env.do(t, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["completed_steps"], 6)

	rec, _ = env.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `nightly_price_pipeline_runs_total{status="ok"} 1`)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := env.do(t, http.MethodPost, "/api/export")
	assert.Equal(t, http.StatusConflict, rec.Code)

	env.do(t, http.MethodPost, "/api/data/load?source=cache")
	env.do(t, http.MethodPost, "/api/steps/summary")

	rec, body := env.do(t, http.MethodPost, "/api/export")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []any{"nightly_prices_complete.csv", "price_summary.csv"}, body["files"])
	_, err := os.Stat(filepath.Join(env.outDir, "price_summary.csv"))
	assert.NoError(t, err)
}

func upload(t *testing.T, env *testEnv, name, content string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/data/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestUploadCSV(t *testing.T) {
	env := newTestEnv(t)

	rec, body := upload(t, env, "prices.csv", "entity_id,date,base,price\n1,2024-05-01,100,100\n1,2024-05-02,100,104\n")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["rows"])

	rec, _ = env.do(t, http.MethodPost, "/api/steps/extrapolate")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = upload(t, env, "broken.csv", "date,price\n2024-05-01,100\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", body["status"])
}

func TestSeasonalWithoutPricesIsEmptyNotMissing(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := upload(t, env, "factors.csv", "entity_id,date,base\n1,2024-05-01,100\n1,2024-05-02,100\n")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/steps/seasonal")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/datasets/seasonal")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	assert.Empty(t, rows)

	rec, body := env.do(t, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["completed_steps"], "seasonal")
}

func TestUploadDuplicateKeysRejectedOnStep(t *testing.T) {
	env := newTestEnv(t)
	rec, _ := upload(t, env, "dup.csv", "entity_id,date,price\n1,2024-05-01,100\n1,2024-05-01,101\n")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := env.do(t, http.MethodPost, "/api/steps/extrapolate")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "duplicate")
}

func TestRunStoreEvicts(t *testing.T) {
	s, err := NewRunStore(2)
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		s.Add(&models.AnalysisResult{RunID: id})
	}
	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.Equal(t, []string{"b", "c"}, s.IDs())
}
