// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PipelineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_requests_total",
			Help: "Total number of pipeline requests by resolved route",
		},
		[]string{"route"},
	)

	PipelineFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_failures_total",
			Help: "Total number of terminal pipeline failures by error code",
		},
		[]string{"error_code"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "pipeline_stage_duration_seconds",
			Help: "Duration of each pipeline stage in seconds",
		},
		[]string{"stage"},
	)

	UpstreamCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_calls_total",
			Help: "Outbound taste-graph calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	FallbackCalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_fallback_total",
			Help: "Fallback entity-search calls triggered by empty or failed primaries",
		},
	)

	SignalsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signals_resolved_total",
			Help: "Interest resolutions by source (cache reuse vs network lookup)",
		},
		[]string{"source"},
	)
)
