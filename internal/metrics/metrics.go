package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "resource_api"

const (
	LabelMethod    = "method"
	LabelRoute     = "route"
	LabelStatus    = "status"
	LabelOperation = "operation"
	LabelResult    = "result"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultHit   = "hit"
	ResultMiss  = "miss"
)

var HTTPRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code",
		Namespace: Namespace,
	},
	[]string{LabelMethod, LabelRoute, LabelStatus},
)

var HTTPDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Namespace: Namespace,
		Buckets:   prometheus.DefBuckets,
	},
	[]string{LabelMethod, LabelRoute},
)

var Operations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name:      "operations_total",
		Help:      "Resource service operations by outcome",
		Namespace: Namespace,
	},
	[]string{LabelOperation, LabelResult},
)

var CacheLookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name:      "cache_lookups_total",
		Help:      "Read-through cache lookups",
		Namespace: Namespace,
	},
	[]string{LabelResult},
)

var RateLimited = promauto.NewCounter(
	prometheus.CounterOpts{
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
		Namespace: Namespace,
	},
)

// RegisterDBStats экспортирует статистику пула соединений
func RegisterDBStats(db *sql.DB, name string) error {
	return prometheus.Register(collectors.NewDBStatsCollector(db, name))
}
