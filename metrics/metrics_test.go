package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nightly-price/models"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.RunFinished("ok")
	r.RunFinished("ok")
	r.RunFinished("error")
	r.AddExtrapolated(31, 2)
	r.AddMatches(map[models.MatchReason]int{models.ReasonEvent: 3, models.ReasonClosestDate: 1})
	r.FetchedFrom("cache")
	r.ObserveStage("extend", 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("error")))
	assert.Equal(t, 31.0, testutil.ToFloat64(r.extrapolated))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.droppedDates))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.matches.WithLabelValues("event_match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetchSource.WithLabelValues("cache")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.stageDuration))
}

func TestRecordersDoNotShareRegistry(t *testing.T) {
	a, b := New(), New()
	a.RunFinished("ok")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.runs.WithLabelValues("ok")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.RunFinished("ok")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `nightly_price_pipeline_runs_total{status="ok"} 1`)
}
