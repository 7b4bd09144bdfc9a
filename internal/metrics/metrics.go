// Package metrics holds the Prometheus collectors for the ingestion and
// retrieval pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	DocumentsIngested   *prometheus.CounterVec
	FallbackExtractions prometheus.Counter
	StuckJobsRestarted  prometheus.Counter
	IndexingDegraded    prometheus.Counter
	ExtractionDuration  prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocumentsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paperbase_documents_ingested_total",
			Help: "Documents that finished an extraction attempt, by final status.",
		}, []string{"status"}),
		FallbackExtractions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperbase_fallback_extractions_total",
			Help: "Extractions served by the local fallback parser.",
		}),
		StuckJobsRestarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperbase_stuck_jobs_restarted_total",
			Help: "Extraction jobs redispatched by the stuck-job sweep.",
		}),
		IndexingDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperbase_indexing_degraded_total",
			Help: "Indexing runs that completed without persisting vectors.",
		}),
		ExtractionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paperbase_extraction_duration_seconds",
			Help:    "Wall time of one document extraction attempt.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	reg.MustRegister(
		m.DocumentsIngested,
		m.FallbackExtractions,
		m.StuckJobsRestarted,
		m.IndexingDegraded,
		m.ExtractionDuration,
	)
	return m
}
