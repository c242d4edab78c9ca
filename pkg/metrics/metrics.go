// Package metrics exposes Prometheus instrumentation for the workflow
// runtime, activity dispatcher, graph executor, memory layer, and cron
// scheduler (spec.md §6's /metrics surface).
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the runtime records into.
// One instance is constructed at startup and threaded through the
// components that report into it.
type Metrics struct {
	WorkflowExecutions *prometheus.CounterVec
	WorkflowDuration   *prometheus.HistogramVec
	WorkflowsInFlight  *prometheus.GaugeVec

	ActivityCalls    *prometheus.CounterVec
	ActivityDuration *prometheus.HistogramVec
	ActivityRetries  *prometheus.CounterVec

	GraphStepsTotal   *prometheus.CounterVec
	GraphStepDuration *prometheus.HistogramVec

	MemoryCacheHits   *prometheus.CounterVec
	MemoryCacheMisses *prometheus.CounterVec
	MemorySearchLatency *prometheus.HistogramVec

	EmbeddingCalls *prometheus.CounterVec

	CronFires     *prometheus.CounterVec
	WorkerPoolSize prometheus.Gauge
}

// New constructs and registers every collector under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "agentrt"
	}

	return &Metrics{
		WorkflowExecutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_executions_total",
				Help:      "Total workflow executions by type and terminal status",
			},
			[]string{"workflow_type", "status"},
		),
		WorkflowDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_duration_seconds",
				Help:      "Workflow execution duration from start to terminal status",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900, 3600},
			},
			[]string{"workflow_type", "status"},
		),
		WorkflowsInFlight: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workflows_in_flight",
				Help:      "Workflow executions currently claimed by a worker",
			},
			[]string{"pod_id"},
		),

		ActivityCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activity_calls_total",
				Help:      "Total activity invocations by activity type and outcome",
			},
			[]string{"activity_type", "outcome"},
		),
		ActivityDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "activity_duration_seconds",
				Help:      "Single activity attempt duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"activity_type"},
		),
		ActivityRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activity_retries_total",
				Help:      "Total activity retry attempts (excludes the first attempt)",
			},
			[]string{"activity_type"},
		),

		GraphStepsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graph_steps_total",
				Help:      "Total graph node executions by graph and node name",
			},
			[]string{"graph_name", "node", "status"},
		),
		GraphStepDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "graph_step_duration_seconds",
				Help:      "Duration of a single graph node execution",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"graph_name", "node"},
		),

		MemoryCacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "memory_cache_hits_total",
				Help:      "Memory layer cache hits by tier",
			},
			[]string{"tier"},
		),
		MemoryCacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "memory_cache_misses_total",
				Help:      "Memory layer cache misses by tier",
			},
			[]string{"tier"},
		),
		MemorySearchLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "memory_search_latency_seconds",
				Help:      "search() latency by collection",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"collection"},
		),

		EmbeddingCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_calls_total",
				Help:      "Total embedding provider calls by outcome",
			},
			[]string{"provider", "outcome"},
		),

		CronFires: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cron_fires_total",
				Help:      "Total schedule firings by overlap policy outcome",
			},
			[]string{"schedule_id", "outcome"},
		),
		WorkerPoolSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_pool_size",
				Help:      "Configured worker count for this pod's worker pool",
			},
		),
	}
}

// RecordWorkflow records a terminal workflow execution.
func (m *Metrics) RecordWorkflow(workflowType, status string, duration time.Duration) {
	m.WorkflowExecutions.WithLabelValues(workflowType, status).Inc()
	m.WorkflowDuration.WithLabelValues(workflowType, status).Observe(duration.Seconds())
}

// RecordActivity records a single activity attempt.
func (m *Metrics) RecordActivity(activityType, outcome string, duration time.Duration, isRetry bool) {
	m.ActivityCalls.WithLabelValues(activityType, outcome).Inc()
	m.ActivityDuration.WithLabelValues(activityType).Observe(duration.Seconds())
	if isRetry {
		m.ActivityRetries.WithLabelValues(activityType).Inc()
	}
}

// RecordGraphStep records a single graph node execution.
func (m *Metrics) RecordGraphStep(graphName, node, status string, duration time.Duration) {
	m.GraphStepsTotal.WithLabelValues(graphName, node, status).Inc()
	m.GraphStepDuration.WithLabelValues(graphName, node).Observe(duration.Seconds())
}

// RecordCacheResult records a memory-layer cache lookup outcome.
func (m *Metrics) RecordCacheResult(tier string, hit bool) {
	if hit {
		m.MemoryCacheHits.WithLabelValues(tier).Inc()
		return
	}
	m.MemoryCacheMisses.WithLabelValues(tier).Inc()
}

// RecordCronFire records a schedule firing decision.
func (m *Metrics) RecordCronFire(scheduleID, outcome string) {
	m.CronFires.WithLabelValues(scheduleID, outcome).Inc()
}

// RegisterHandler mounts the Prometheus scrape endpoint on a gin router.
func RegisterHandler(router *gin.Engine, path string) {
	if path == "" {
		path = "/metrics"
	}
	router.GET(path, gin.WrapH(promhttp.Handler()))
}
