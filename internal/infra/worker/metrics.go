package worker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"compintel/internal/domain/entity"
)

// RunMetrics exposes Prometheus metrics for pipeline runs.
//
//   - pipeline_runs_total: runs by final status
//   - pipeline_run_duration_seconds: run duration histogram
//   - pipeline_articles_total: article counts by stage
//   - pipeline_run_last_success_timestamp: unix time of the last
//     successful or partial run
type RunMetrics struct {
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	articlesTotal   *prometheus.CounterVec
	lastSuccessTime prometheus.Gauge
}

var (
	runMetricsOnce sync.Once
	runMetrics     *RunMetrics
)

// NewRunMetrics returns the process-wide metrics instance. promauto
// registers with the default registry, so construction happens once.
func NewRunMetrics() *RunMetrics {
	runMetricsOnce.Do(func() {
		runMetrics = newRunMetrics(nil)
	})
	return runMetrics
}

func newRunMetrics(reg prometheus.Registerer) *RunMetrics {
	factory := promauto.With(prometheus.DefaultRegisterer)
	if reg != nil {
		factory = promauto.With(reg)
	}
	return &RunMetrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total pipeline runs by final status",
		}, []string{"status"}),

		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Duration of pipeline runs in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800},
		}),

		articlesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_articles_total",
			Help: "Article counts per pipeline stage across all runs",
		}, []string{"stage"}),

		lastSuccessTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_run_last_success_timestamp",
			Help: "Unix timestamp of the last run that produced a report",
		}),
	}
}

// RecordRun records the outcome of one pipeline run.
func (m *RunMetrics) RecordRun(run *entity.RunRecord) {
	m.runsTotal.WithLabelValues(string(run.Status)).Inc()
	m.runDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())

	m.articlesTotal.WithLabelValues("collected").Add(float64(run.Counts.Collected))
	m.articlesTotal.WithLabelValues("new").Add(float64(run.Counts.New))
	m.articlesTotal.WithLabelValues("summarized").Add(float64(run.Counts.Summarized))
	m.articlesTotal.WithLabelValues("fallback").Add(float64(run.Counts.FallbackUsed))
	m.articlesTotal.WithLabelValues("delivered").Add(float64(run.Counts.Delivered))

	if run.Status == entity.RunStatusSuccess || run.Status == entity.RunStatusPartialSuccess {
		m.lastSuccessTime.SetToCurrentTime()
	}
}
