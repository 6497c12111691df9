// Package metrics 提供虚拟助教服务的 Prometheus 业务指标。
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "virtual_ta"

// Metrics 服务指标集合，持有独立的 registry。
type Metrics struct {
	registry *prometheus.Registry

	queries          *prometheus.CounterVec
	queryDuration    *prometheus.HistogramVec
	stageDuration    *prometheus.HistogramVec
	resourceLoads    *prometheus.CounterVec
	resourceLoadTime *prometheus.HistogramVec
	poolRejections   prometheus.Counter
	cacheRequests    *prometheus.CounterVec
	droppedPositions prometheus.Counter
	rerankFailures   prometheus.Counter
	indexChanges     prometheus.Counter
	inflight         prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default 返回进程级指标实例。
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New 创建指标集合并注册 Go 运行时与进程指标。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Resolved queries by outcome.",
		}, []string{"outcome"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End-to-end query latency by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		resourceLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_loads_total",
			Help:      "Resource load attempts by resource and result.",
		}, []string{"resource", "result"}),
		resourceLoadTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resource_load_duration_seconds",
			Help:      "Resource load latency.",
			Buckets:   []float64{.01, .1, .5, 1, 5, 15, 60, 180},
		}, []string{"resource"}),
		poolRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_pool_rejections_total",
			Help:      "Inference tasks rejected because the pool was saturated.",
		}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		droppedPositions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_dropped_positions_total",
			Help:      "Index hits dropped because their position is outside the fragment metadata.",
		}),
		rerankFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rerank_failed_pairs_total",
			Help:      "Query/fragment pairs whose rerank score could not be computed.",
		}),
		indexChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_file_changes_total",
			Help:      "Changes of the index artifacts observed on disk.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queries_in_flight",
			Help:      "Queries currently being resolved.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.queries,
		m.queryDuration,
		m.stageDuration,
		m.resourceLoads,
		m.resourceLoadTime,
		m.poolRejections,
		m.cacheRequests,
		m.droppedPositions,
		m.rerankFailures,
		m.indexChanges,
		m.inflight,
	)
	return m
}

// Registry 返回底层 registry。
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler 返回 /metrics 的 HTTP handler。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// QueryStarted 记录查询开始，返回结束时调用的函数。
func (m *Metrics) QueryStarted() func(outcome string) {
	start := time.Now()
	m.inflight.Inc()
	return func(outcome string) {
		m.inflight.Dec()
		m.queries.WithLabelValues(outcome).Inc()
		m.queryDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}

// ObserveStage 记录流水线阶段耗时。
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordResourceLoad 记录资源加载。
func (m *Metrics) RecordResourceLoad(resource string, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.resourceLoads.WithLabelValues(resource, result).Inc()
	m.resourceLoadTime.WithLabelValues(resource).Observe(d.Seconds())
}

// RecordPoolRejection 记录推理池拒绝。
func (m *Metrics) RecordPoolRejection() { m.poolRejections.Inc() }

// RecordCache 记录缓存命中情况。
func (m *Metrics) RecordCache(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(cache, result).Inc()
}

// RecordDroppedPositions 记录越界被丢弃的命中数。
func (m *Metrics) RecordDroppedPositions(n int) {
	if n > 0 {
		m.droppedPositions.Add(float64(n))
	}
}

// RecordRerankFailures 记录打分失败的候选数。
func (m *Metrics) RecordRerankFailures(n int) {
	if n > 0 {
		m.rerankFailures.Add(float64(n))
	}
}

// RecordIndexChange 记录索引文件变更。
func (m *Metrics) RecordIndexChange() { m.indexChanges.Inc() }

// RegisterPool 以 GaugeFunc 暴露推理池的运行与排队数。
func (m *Metrics) RegisterPool(name string, running, waiting func() int) {
	labels := prometheus.Labels{"pool": name}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "pool_running_workers",
			Help:        "Workers currently running inference tasks.",
			ConstLabels: labels,
		}, func() float64 { return float64(running()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "pool_waiting_tasks",
			Help:        "Inference tasks waiting for a worker.",
			ConstLabels: labels,
		}, func() float64 { return float64(waiting()) }),
	)
}
