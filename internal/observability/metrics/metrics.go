// Package metrics 暴露 HTTP 请求与工具调用的 Prometheus 指标。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	xerrors "AgentWallet-Kit/internal/errors"
)

const namespace = "agentwallet"

var registry = prometheus.NewRegistry()

var (
	httpRequests = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"handler", "method", "code"})

	httpErrors = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "errors_total",
		Help:      "HTTP requests that returned a status >= 500.",
	}, []string{"handler", "method"})

	httpLatency = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"handler", "method"})

	toolInvocations = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tool",
		Name:      "invocations_total",
		Help:      "Tool invocations grouped by outcome code.",
	}, []string{"tool", "mode", "outcome"})

	toolLatency = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tool",
		Name:      "invocation_duration_seconds",
		Help:      "Tool invocation latency in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"tool", "mode"})

	pluginSkips = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "plugin",
		Name:      "skipped_total",
		Help:      "Plugins left out of a tool aggregation, by reason.",
	}, []string{"plugin", "reason"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// 调用模式。
const (
	ModeSync   = "sync"
	ModeQueued = "queued"
)

// OutcomeOK 表示调用成功；失败时 outcome 为错误码。
const OutcomeOK = "ok"

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= http.StatusInternalServerError {
		httpErrors.WithLabelValues(handler, method).Inc()
	}
	httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// UnknownTool 是不存在的工具共用的标签值，工具名来自请求方，不能直接作为标签。
const UnknownTool = "unknown"

// ObserveToolInvocation 记录一次工具调用的结果与耗时。
// 调用方应只传入工具集中存在的名字；TOOL_NOT_FOUND 的结果一律记为 UnknownTool。
func ObserveToolInvocation(tool, mode, outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = OutcomeOK
	}
	if outcome == string(xerrors.CodeToolNotFound) {
		tool = UnknownTool
	}
	toolInvocations.WithLabelValues(tool, mode, outcome).Inc()
	toolLatency.WithLabelValues(tool, mode).Observe(duration.Seconds())
}

// ObservePluginSkipped 记录聚合时被跳过的插件。
func ObservePluginSkipped(plugin, reason string) {
	pluginSkips.WithLabelValues(plugin, reason).Inc()
}

// Handler exposes the collected metrics in Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Gatherer 返回底层的指标收集器，便于测试读取。
func Gatherer() prometheus.Gatherer { return registry }
