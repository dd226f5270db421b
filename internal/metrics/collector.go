// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 运行指标
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec

	// 步骤指标
	stepOutcomes *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec

	// Provider 调用指标
	callsTotal    *prometheus.CounterVec
	callAttempts  *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 进度事件指标
	eventsPublished prometheus.Counter
	eventsDropped   prometheus.Counter

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 运行指标
	c.runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of research runs by terminal status",
		},
		[]string{"status"},
	)

	c.runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Research run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	// 步骤指标
	c.stepOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_outcomes_total",
			Help:      "Total number of step executions by outcome",
		},
		[]string{"step", "status"},
	)

	c.stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	// Provider 调用指标
	c.callsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Total number of provider calls by kind and result",
		},
		[]string{"kind", "provider", "result"},
	)

	c.callAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_call_attempts_total",
			Help:      "Total number of provider call attempts including retries",
		},
		[]string{"kind", "provider"},
	)

	c.callDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Provider call duration in seconds including retries",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind", "provider"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// 进度事件指标
	c.eventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_events_published_total",
			Help:      "Total number of progress events published",
		},
	)

	c.eventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_events_dropped_total",
			Help:      "Total number of progress events dropped due to full buffers",
		},
	)

	return c
}

// RecordRun 记录一次运行的终态与耗时
func (c *Collector) RecordRun(status string, duration time.Duration) {
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStep 记录一次步骤执行
func (c *Collector) RecordStep(step, status string, duration time.Duration) {
	c.stepOutcomes.WithLabelValues(step, status).Inc()
	c.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordCall 记录一次 Provider 调用（含全部重试）
func (c *Collector) RecordCall(kind, provider, result string, attempts int, duration time.Duration) {
	c.callsTotal.WithLabelValues(kind, provider, result).Inc()
	c.callAttempts.WithLabelValues(kind, provider).Add(float64(attempts))
	c.callDuration.WithLabelValues(kind, provider).Observe(duration.Seconds())
}

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cache string) {
	c.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cache string) {
	c.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordEventPublished 记录已发布的进度事件
func (c *Collector) RecordEventPublished() {
	c.eventsPublished.Inc()
}

// RecordEventDropped 记录因队列满而丢弃的进度事件
func (c *Collector) RecordEventDropped() {
	c.eventsDropped.Inc()
}
