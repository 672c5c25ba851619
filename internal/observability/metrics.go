package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dexc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"connector", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dexc",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"connector", "method", "path", "status"},
	)
	dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dexc",
			Subsystem: "dispatch",
			Name:      "exchanges_total",
			Help:      "Outbound protocol exchanges by message kind and outcome.",
		},
		[]string{"connector", "kind", "outcome"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dexc",
			Subsystem: "dispatch",
			Name:      "exchange_duration_seconds",
			Help:      "Outbound exchange duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"connector", "kind", "outcome"},
	)
	inboundMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dexc",
			Subsystem: "provider",
			Name:      "messages_total",
			Help:      "Inbound protocol messages by kind and handling result.",
		},
		[]string{"connector", "kind", "result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, dispatches, dispatchDuration, inboundMessages)
	})
}

func RecordHTTPRequest(connector, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(connector, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(connector, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordDispatch(connector, kind, outcome string, duration time.Duration) {
	RegisterMetrics()
	dispatches.WithLabelValues(connector, kind, outcome).Inc()
	dispatchDuration.WithLabelValues(connector, kind, outcome).Observe(duration.Seconds())
}

func RecordInbound(connector, kind, result string) {
	RegisterMetrics()
	inboundMessages.WithLabelValues(connector, kind, result).Inc()
}
