package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's prometheus collectors.
type Metrics struct {
	DocumentsExtracted *prometheus.CounterVec
	DocumentsFailed    prometheus.Counter
	BatchesClosed      *prometheus.CounterVec
	Fallbacks          prometheus.Counter
	CycleDuration      prometheus.Histogram
}

// New registers the pipeline collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DocumentsExtracted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "extraction_documents_extracted_total",
			Help: "Documents successfully extracted, by extraction method.",
		}, []string{"method"}),
		DocumentsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "extraction_documents_failed_total",
			Help: "Documents whose extraction failed within a batch.",
		}),
		BatchesClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "extraction_batches_closed_total",
			Help: "Batches closed, by terminal status.",
		}, []string{"status"}),
		Fallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "extraction_structured_fallbacks_total",
			Help: "Structured extractions that fell back to the general extractor.",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "extraction_cycle_duration_seconds",
			Help:    "Wall time of one scheduler cycle.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

// NewNop returns metrics bound to a throwaway registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
