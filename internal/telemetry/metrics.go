package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	// ---- Replication core ----

	WritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgstore",
			Name:      "writes_total",
			Help:      "Replicated write calls by aggregate result.",
		},
		[]string{"result"},
	)

	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgstore",
			Name:      "settlements_total",
			Help:      "Per-target settlements by terminal outcome kind.",
		},
		[]string{"kind"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgstore",
			Name:      "dispatch_retries_total",
			Help:      "Dispatch retries scheduled, by failure kind.",
		},
		[]string{"kind"},
	)

	DeadNodeRemovals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "msgstore",
			Name:      "dead_node_removals_total",
			Help:      "Peers permanently removed from the membership set.",
		},
	)

	PeersConfirmedDead = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "msgstore",
			Name:      "peers_confirmed_dead_total",
			Help:      "Peers the health tracker confirmed dead.",
		},
	)

	// ---- HTTP surface ----

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgstore",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msgstore",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"op"},
	)

	InFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "msgstore",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
		[]string{"op"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "msgstore",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		WritesTotal, SettlementsTotal, RetriesTotal, DeadNodeRemovals, PeersConfirmedDead,
		RequestsTotal, RequestDuration, InFlight, uptime,
	)
}

// MetricsHandler exposes /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the provided
// "op" label.
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		InFlight.WithLabelValues(op).Inc()
		defer InFlight.WithLabelValues(op).Dec()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}
