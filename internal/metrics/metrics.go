package metrics

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestDuration tracks HTTP request duration in seconds by method, path, status.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestTotal counts HTTP requests by method, path, status.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// OutboxPending is the number of queued transactions not yet on the server.
	OutboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiosk_outbox_pending",
			Help: "Queued transactions waiting to be synced",
		},
	)

	// SyncRuns counts sync runs by result (clean, halted, error).
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_sync_runs_total",
			Help: "Total number of outbox sync runs by result",
		},
		[]string{"result"},
	)

	// SyncedTransactions counts outbox entries delivered to the server.
	SyncedTransactions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiosk_synced_transactions_total",
			Help: "Total number of queued transactions delivered",
		},
	)

	// Online is 1 while the kiosk believes the server is reachable.
	Online = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiosk_online",
			Help: "Whether the server is reachable (1) or not (0)",
		},
	)

	// Transitions counts ledger changes by action (checkout, checkin, handoff)
	// and mode (live, queued, server).
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_transitions_total",
			Help: "Total number of checkout state transitions",
		},
		[]string{"action", "mode"},
	)
)

var (
	numericPathSegment = regexp.MustCompile(`/[0-9]+(/|$)`)
	initOnce           sync.Once
)

func init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestDuration, RequestTotal, OutboxPending, SyncRuns,
			SyncedTransactions, Online, Transitions)
	})
}

// NormalizePath reduces cardinality by replacing numeric path segments with {id}.
// E.g. /api/assets/123/active -> /api/assets/{id}/active.
func NormalizePath(path string) string {
	return numericPathSegment.ReplaceAllString(path, "/{id}$1")
}

// RecordRequest records duration and count for an HTTP request. Call from middleware with method, path, statusCode, duration.
func RecordRequest(method, path string, statusCode int, durationSeconds float64) {
	path = NormalizePath(path)
	status := strconv.Itoa(statusCode)
	RequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	RequestTotal.WithLabelValues(method, path, status).Inc()
}

// SetOnline records the monitor's current view of the server.
func SetOnline(online bool) {
	if online {
		Online.Set(1)
		return
	}
	Online.Set(0)
}

// SetOutboxPending records the outbox depth.
func SetOutboxPending(n int) {
	OutboxPending.Set(float64(n))
}

// RecordSyncRun counts one sync run and the entries it delivered.
func RecordSyncRun(result string, synced int) {
	SyncRuns.WithLabelValues(result).Inc()
	SyncedTransactions.Add(float64(synced))
}

// RecordTransition counts one ledger change.
func RecordTransition(action, mode string) {
	Transitions.WithLabelValues(action, mode).Inc()
}
