package summarizer

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BatchMetricsRecorder abstracts metrics recording so tests can inject a
// mock and providers share one implementation.
type BatchMetricsRecorder interface {
	// RecordBatch records one batch call: how many articles went in and
	// how many summaries parsed back out.
	RecordBatch(size, parsed int)

	// RecordDuration records the time one batch call took.
	RecordDuration(duration time.Duration)
}

// PrometheusBatchMetrics is the production BatchMetricsRecorder.
type PrometheusBatchMetrics struct {
	batchSize     prometheus.Histogram
	parsedItems   prometheus.Counter
	missedItems   prometheus.Counter
	callDurations prometheus.Histogram
}

var (
	prometheusMetricsInstance *PrometheusBatchMetrics
	prometheusMetricsOnce     sync.Once
)

// NewPrometheusBatchMetrics returns the process-wide recorder. A
// singleton avoids duplicate collector registration when several
// providers are constructed.
func NewPrometheusBatchMetrics() *PrometheusBatchMetrics {
	prometheusMetricsOnce.Do(func() {
		prometheusMetricsInstance = &PrometheusBatchMetrics{
			batchSize: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "summarizer_batch_size",
				Help:    "Number of articles per summarization batch",
				Buckets: []float64{1, 2, 5, 10, 20},
			}),
			parsedItems: promauto.NewCounter(prometheus.CounterOpts{
				Name: "summarizer_items_parsed_total",
				Help: "Summaries successfully parsed from provider responses",
			}),
			missedItems: promauto.NewCounter(prometheus.CounterOpts{
				Name: "summarizer_items_missed_total",
				Help: "Batch items missing or unparsable in provider responses",
			}),
			callDurations: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "summarizer_batch_duration_seconds",
				Help:    "Duration of summarization batch calls",
				Buckets: prometheus.DefBuckets,
			}),
		}
	})
	return prometheusMetricsInstance
}

func (m *PrometheusBatchMetrics) RecordBatch(size, parsed int) {
	m.batchSize.Observe(float64(size))
	m.parsedItems.Add(float64(parsed))
	if missed := size - parsed; missed > 0 {
		m.missedItems.Add(float64(missed))
	}
}

func (m *PrometheusBatchMetrics) RecordDuration(duration time.Duration) {
	m.callDurations.Observe(duration.Seconds())
}

// NoOpMetrics discards all recordings. Used in tests.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordBatch(int, int)         {}
func (NoOpMetrics) RecordDuration(time.Duration) {}
