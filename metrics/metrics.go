package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nightly-price/models"
)

// Recorder collects pipeline and fetch metrics on its own registry, so
// several recorders (one per test, one per server) never collide.
type Recorder struct {
	registry      *prometheus.Registry
	runs          *prometheus.CounterVec
	extrapolated  prometheus.Counter
	droppedDates  prometheus.Counter
	matches       *prometheus.CounterVec
	fetchSource   *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightly_price_pipeline_runs_total",
				Help: "Pipeline runs by final status",
			},
			[]string{"status"},
		),
		extrapolated: factory.NewCounter(prometheus.CounterOpts{
			Name: "nightly_price_extrapolated_records_total",
			Help: "Records synthesized by backward extrapolation",
		}),
		droppedDates: factory.NewCounter(prometheus.CounterOpts{
			Name: "nightly_price_extrapolation_dropped_dates_total",
			Help: "Dates skipped by extrapolation because no price could be derived",
		}),
		matches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightly_price_matches_total",
				Help: "Improved matches by match reason",
			},
			[]string{"reason"},
		),
		fetchSource: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nightly_price_fetch_total",
				Help: "Dataset fetches by serving source",
			},
			[]string{"source"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nightly_price_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
	}
}

// ObserveStage records how long one pipeline stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunFinished counts a completed run.
func (r *Recorder) RunFinished(status string) {
	r.runs.WithLabelValues(status).Inc()
}

// AddExtrapolated counts synthesized records and dropped dates.
func (r *Recorder) AddExtrapolated(synthesized, dropped int) {
	r.extrapolated.Add(float64(synthesized))
	r.droppedDates.Add(float64(dropped))
}

// AddMatches counts matches per reason.
func (r *Recorder) AddMatches(counts map[models.MatchReason]int) {
	for reason, n := range counts {
		r.matches.WithLabelValues(string(reason)).Add(float64(n))
	}
}

// FetchedFrom counts the source that served a fetch.
func (r *Recorder) FetchedFrom(source string) {
	r.fetchSource.WithLabelValues(source).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
