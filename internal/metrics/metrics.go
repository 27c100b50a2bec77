package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics of the campaign dispatcher
type Metrics struct {
	// Delivery counters
	DeliveriesTotal       *prometheus.CounterVec
	DeliveryFailuresTotal *prometheus.CounterVec
	SendDurationSeconds   prometheus.Histogram

	// Run state
	RunsTotal       *prometheus.CounterVec
	RunActive       prometheus.Gauge
	QuotaHaltsTotal prometheus.Counter
	QuotaSentToday  prometheus.Gauge
	TransportErrors *prometheus.CounterVec
	DeliveriesReset prometheus.Counter

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendry_campaign_deliveries_total",
				Help: "Total number of campaign delivery attempts by outcome",
			},
			[]string{"status", "domain"},
		),
		DeliveryFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendry_campaign_delivery_failures_total",
				Help: "Total number of failed deliveries by class (temporary or permanent)",
			},
			[]string{"class"},
		),
		SendDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sendry_campaign_send_duration_seconds",
				Help:    "Time spent handing one message to the relay",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendry_campaign_runs_total",
				Help: "Total number of finished dispatch passes by halt reason",
			},
			[]string{"halt"},
		),
		RunActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sendry_campaign_run_active",
				Help: "1 while a dispatch pass is running",
			},
		),
		QuotaHaltsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sendry_campaign_quota_halts_total",
				Help: "Total number of passes stopped by the daily send limit",
			},
		),
		QuotaSentToday: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sendry_campaign_quota_sent_today",
				Help: "Sends counted against the daily limit at the last check",
			},
		),
		TransportErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendry_campaign_transport_errors_total",
				Help: "Total number of relay connection failures before a pass",
			},
			[]string{"stage"},
		),
		DeliveriesReset: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sendry_campaign_deliveries_reset_total",
				Help: "Total number of deliveries set back to pending",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendry_campaign_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sendry_campaign_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sendry_campaign_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.DeliveriesTotal,
		m.DeliveryFailuresTotal,
		m.SendDurationSeconds,
		m.RunsTotal,
		m.RunActive,
		m.QuotaHaltsTotal,
		m.QuotaSentToday,
		m.TransportErrors,
		m.DeliveriesReset,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		prometheus.NewGoCollector(),
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// ObserveDelivery records one delivery attempt
func ObserveDelivery(status, domain string, seconds float64) {
	m := Global()
	if m != nil {
		m.DeliveriesTotal.WithLabelValues(status, domain).Inc()
		m.SendDurationSeconds.Observe(seconds)
	}
}

// IncDeliveryFailures counts a failed delivery by class
func IncDeliveryFailures(class string) {
	m := Global()
	if m != nil {
		m.DeliveryFailuresTotal.WithLabelValues(class).Inc()
	}
}

// SetRunActive marks whether a pass is running
func SetRunActive(active bool) {
	m := Global()
	if m != nil {
		if active {
			m.RunActive.Set(1)
		} else {
			m.RunActive.Set(0)
		}
	}
}

// IncRuns counts a finished pass
func IncRuns(halt string) {
	m := Global()
	if m != nil {
		m.RunsTotal.WithLabelValues(halt).Inc()
	}
}

// IncQuotaHalts counts a pass stopped by the daily limit
func IncQuotaHalts() {
	m := Global()
	if m != nil {
		m.QuotaHaltsTotal.Inc()
	}
}

// SetQuotaSentToday records the last quota count
func SetQuotaSentToday(n int) {
	m := Global()
	if m != nil {
		m.QuotaSentToday.Set(float64(n))
	}
}

// IncTransportErrors counts a relay failure at dial or verify
func IncTransportErrors(stage string) {
	m := Global()
	if m != nil {
		m.TransportErrors.WithLabelValues(stage).Inc()
	}
}

// AddDeliveriesReset counts deliveries set back to pending
func AddDeliveriesReset(n int64) {
	m := Global()
	if m != nil {
		m.DeliveriesReset.Add(float64(n))
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
