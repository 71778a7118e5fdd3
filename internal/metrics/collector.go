// Package metrics holds the Prometheus instruments for SceneFlow and
// exposes typed recording helpers for each subsystem. Every record
// method is a no-op on a nil Collector, so tests can skip metrics wiring.
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

var (
	// 请求/响应体大小：100B 起，指数到 ~1GB
	sizeBuckets = prometheus.ExponentialBuckets(100, 10, 8)

	// 生成任务端到端耗时：秒级到十分钟
	taskBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600}
)

// Collector 持有全部指标向量。记录方法按子系统分组，
// 业务代码不直接接触 prometheus 类型。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 场景存储指标
	storeOpsTotal       *prometheus.CounterVec
	historyDepthPast    prometheus.Gauge
	historyDepthFuture  prometheus.Gauge
	notificationsActive prometheus.Gauge

	// 生成任务指标
	genTasksTotal   *prometheus.CounterVec
	genTaskDuration *prometheus.HistogramVec
	pollCyclesTotal *prometheus.CounterVec

	// 代理指标
	proxyRequestsTotal *prometheus.CounterVec
	proxyBytesTotal    *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// WebSocket 指标
	wsSessionsActive prometheus.Gauge
	wsEventsTotal    *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 建齐全部指标并经 promauto 注册到默认 Registry。
// namespace 隔离多实例（测试里每个用例换一个）。
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: name, Help: help,
		}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: name, Help: help, Buckets: buckets,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help,
		})
	}

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),

		httpRequestsTotal:   counter("http_requests_total", "Total number of HTTP requests", "method", "path", "status"),
		httpRequestDuration: histogram("http_request_duration_seconds", "HTTP request duration in seconds", prometheus.DefBuckets, "method", "path"),
		httpRequestSize:     histogram("http_request_size_bytes", "HTTP request size in bytes", sizeBuckets, "method", "path"),
		httpResponseSize:    histogram("http_response_size_bytes", "HTTP response size in bytes", sizeBuckets, "method", "path"),

		storeOpsTotal:       counter("store_operations_total", "Total number of scene store mutations", "operation"),
		historyDepthPast:    gauge("history_depth_past", "Number of snapshots available for undo"),
		historyDepthFuture:  gauge("history_depth_future", "Number of snapshots available for redo"),
		notificationsActive: gauge("notifications_active", "Number of notifications currently displayed"),

		// kind: image / text；status: completed / failed / cancelled
		genTasksTotal:   counter("generation_tasks_total", "Total number of 3D generation tasks", "kind", "status"),
		genTaskDuration: histogram("generation_task_duration_seconds", "End-to-end generation task duration in seconds", taskBuckets, "kind"),
		// outcome: progress / transient_error / terminal
		pollCyclesTotal: counter("poll_cycles_total", "Total number of task poll cycles", "outcome"),

		proxyRequestsTotal: counter("proxy_requests_total", "Total number of proxied requests", "route", "status"),
		proxyBytesTotal:    counter("proxy_bytes_total", "Total bytes streamed through the proxy", "route"),

		cacheHits:   counter("cache_hits_total", "Total number of cache hits", "cache_type"),
		cacheMisses: counter("cache_misses_total", "Total number of cache misses", "cache_type"),

		wsSessionsActive: gauge("ws_sessions_active", "Number of connected WebSocket sessions"),
		wsEventsTotal:    counter("ws_events_total", "Total number of events broadcast to WebSocket sessions", "event"),
	}

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录一次网关请求。path 应是归一化后的路由模板。
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🎬 场景存储指标记录
// =============================================================================

// RecordStoreOp 记录一次状态仓库变更
func (c *Collector) RecordStoreOp(operation string) {
	if c == nil {
		return
	}
	c.storeOpsTotal.WithLabelValues(operation).Inc()
}

// SetHistoryDepth 记录撤销/重做栈深度
func (c *Collector) SetHistoryDepth(past, future int) {
	if c == nil {
		return
	}
	c.historyDepthPast.Set(float64(past))
	c.historyDepthFuture.Set(float64(future))
}

// SetActiveNotifications 记录当前展示中的通知数量
func (c *Collector) SetActiveNotifications(n int) {
	if c == nil {
		return
	}
	c.notificationsActive.Set(float64(n))
}

// =============================================================================
// 🧱 生成任务指标记录
// =============================================================================

// RecordGenerationTask 记录一次生成任务的终态
func (c *Collector) RecordGenerationTask(kind, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.genTasksTotal.WithLabelValues(kind, status).Inc()
	c.genTaskDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordPollCycle 记录一次轮询周期的结果
func (c *Collector) RecordPollCycle(outcome string) {
	if c == nil {
		return
	}
	c.pollCyclesTotal.WithLabelValues(outcome).Inc()
}

// =============================================================================
// 🔀 代理指标记录
// =============================================================================

// RecordProxyRequest 记录一次代理请求及其下行字节数
func (c *Collector) RecordProxyRequest(route string, status int, bytes int64) {
	if c == nil {
		return
	}
	c.proxyRequestsTotal.WithLabelValues(route, statusCode(status)).Inc()
	if bytes > 0 {
		c.proxyBytesTotal.WithLabelValues(route).Add(float64(bytes))
	}
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🔌 WebSocket 指标记录
// =============================================================================

// WSSessionOpened 记录会话接入
func (c *Collector) WSSessionOpened() {
	if c == nil {
		return
	}
	c.wsSessionsActive.Inc()
}

// WSSessionClosed 记录会话断开
func (c *Collector) WSSessionClosed() {
	if c == nil {
		return
	}
	c.wsSessionsActive.Dec()
}

// RecordWSEvent 记录一次事件广播
func (c *Collector) RecordWSEvent(event string) {
	if c == nil {
		return
	}
	c.wsEventsTotal.WithLabelValues(event).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 把具体状态码压成档位标签，控制序列基数。
func statusCode(code int) string {
	switch code / 100 {
	case 2:
		return "2xx"
	case 3:
		return "3xx"
	case 4:
		return "4xx"
	case 5:
		return "5xx"
	default:
		return "unknown"
	}
}
