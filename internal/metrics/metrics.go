package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitedTotal    prometheus.Counter

	OwnershipChecksTotal *prometheus.CounterVec
	HistoryRowsTotal     prometheus.Counter
	AuditWritesTotal     *prometheus.CounterVec
	DenialAlertsTotal    prometheus.Counter
}

// New creates the collectors and registers them on registry. A nil registry
// gets a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grocery_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grocery_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grocery_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
		OwnershipChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grocery_ownership_checks_total",
				Help: "Ownership decisions by resource, check kind and outcome",
			},
			[]string{"resource", "kind", "outcome"},
		),
		HistoryRowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grocery_item_history_rows_total",
			Help: "Grocery item history rows written",
		}),
		AuditWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grocery_audit_writes_total",
				Help: "Audit log writes by outcome",
			},
			[]string{"outcome"},
		),
		DenialAlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grocery_denial_alerts_total",
			Help: "Access denial alert thresholds reached",
		}),
	}
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitedTotal,
		m.OwnershipChecksTotal,
		m.HistoryRowsTotal,
		m.AuditWritesTotal,
		m.DenialAlertsTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request. route is the matched pattern,
// never the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// OwnershipCheck records one decision; outcome is allow, deny or error.
func (m *Metrics) OwnershipCheck(resource, kind, outcome string) {
	if m == nil {
		return
	}
	m.OwnershipChecksTotal.WithLabelValues(resource, kind, outcome).Inc()
}

func (m *Metrics) HistoryRows(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HistoryRowsTotal.Add(float64(n))
}

// AuditWrite records an audit persistence outcome: ok, error or dropped.
func (m *Metrics) AuditWrite(outcome string) {
	if m == nil {
		return
	}
	m.AuditWritesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DenialAlert() {
	if m == nil {
		return
	}
	m.DenialAlertsTotal.Inc()
}
