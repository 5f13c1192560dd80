// Package observability holds the process-wide Prometheus instruments.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthbridge_requests_total",
		Help: "Gateway requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "healthbridge_rate_limited_total",
		Help: "Requests rejected by the per-client quota.",
	})

	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthbridge_cache_hits_total",
		Help: "Response cache hits by action.",
	}, []string{"action"})

	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthbridge_cache_misses_total",
		Help: "Response cache misses by action.",
	}, []string{"action"})

	UpstreamRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "healthbridge_upstream_retries_total",
		Help: "Retries issued against the chat-completion provider.",
	})

	StatusListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "healthbridge_status_listeners",
		Help: "Currently connected status-event listeners.",
	})
)
