package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DiagnosisRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagnosis_requests_total",
			Help: "Diagnose calls by outcome",
		},
		[]string{"outcome", "source"},
	)

	DiagnosisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diagnosis_duration_seconds",
			Help:    "End-to-end Diagnose latency in seconds",
			Buckets: []float64{.005, .025, .1, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"source"},
	)

	ModelAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagnosis_model_attempts_total",
			Help: "Model invocations by model key and result",
		},
		[]string{"model", "result"},
	)

	ModelLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diagnosis_model_latency_seconds",
			Help:    "Latency of individual model invocations",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		},
		[]string{"model"},
	)

	CircuitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagnosis_circuit_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"model", "from", "to"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagnosis_cache_lookups_total",
			Help: "Cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	SemanticSimilarity = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "diagnosis_semantic_similarity",
			Help:    "Similarity score of semantic cache hits",
			Buckets: []float64{.9, .92, .94, .95, .96, .97, .98, .99, 1},
		},
	)

	WorkerTasksDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagnosis_worker_tasks_dropped_total",
			Help: "Background tasks dropped by the worker pool",
		},
		[]string{"task", "reason"},
	)
)
