package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MCPServerMetrics instruments the stdio tool server. The MCP transport has
// no HTTP surface of its own, so metrics are exposed on a sidecar listener.
type MCPServerMetrics struct {
	registry *prometheus.Registry

	toolCallsTotal *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec

	*SearchMetrics
}

func NewMCPServerMetrics(service string) *MCPServerMetrics {
	registry := prometheus.NewRegistry()

	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msa",
			Subsystem: "mcp",
			Name:      "tool_calls_total",
			Help:      "Total MCP tool calls by tool and status.",
		},
		[]string{"service", "tool", "status"},
	)
	toolDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msa",
			Subsystem: "mcp",
			Name:      "tool_call_duration_seconds",
			Help:      "MCP tool call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "tool"},
	)

	registry.MustRegister(toolCallsTotal, toolDuration)

	return &MCPServerMetrics{
		registry:       registry,
		toolCallsTotal: toolCallsTotal,
		toolDuration:   toolDuration,
		SearchMetrics:  newSearchMetrics(registry),
	}
}

func (m *MCPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MCPServerMetrics) RecordToolCall(service, tool, status string, duration time.Duration) {
	if tool == "" {
		tool = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.toolCallsTotal.WithLabelValues(service, tool, status).Inc()
	m.toolDuration.WithLabelValues(service, tool).Observe(duration.Seconds())
}
