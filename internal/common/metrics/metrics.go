// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Total number of hybrid search requests by outcome",
		},
		[]string{"source", "status"},
	)

	SearchPathDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_path_duration_seconds",
			Help:    "Duration of each retrieval path in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"path"},
	)

	SearchPathDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_path_degraded_total",
			Help: "Retrieval paths skipped or failed, by reason",
		},
		[]string{"path", "reason"},
	)

	SearchResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_results_returned",
			Help:    "Number of results returned per request page",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		},
		[]string{"source"},
	)

	MalformedEmbeddings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_malformed_embeddings_total",
			Help: "Stored embeddings skipped because of wrong dimensionality",
		},
		[]string{"store"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cache_lookups_total",
			Help: "Search response cache lookups by result",
		},
		[]string{"result"},
	)

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Duration of attribute lookups served to workflows",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"store", "query_type"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)
)
