package fetch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nao1215/ripnft/internal/model"
)

// Metrics holds the Prometheus collectors updated by a Fetcher.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter
	InFlight        prometheus.Gauge
}

// NewMetrics creates the fetch collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ripnft_fetch_items_total",
			Help: "Number of items fetched, by outcome.",
		}, []string{"outcome"}), // ok, network_error, rate_limited, ...
		RequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ripnft_fetch_request_duration_seconds",
			Help:    "Duration of individual metadata requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ripnft_fetch_retries_total",
			Help: "Number of retries issued after rate limiting.",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ripnft_fetch_inflight_requests",
			Help: "Number of metadata requests currently in flight.",
		}),
	}
}

func (m *Metrics) observeOutcome(kind model.ErrorKind) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) observeRequest(start time.Time) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) incRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) inFlight(delta float64) {
	if m == nil {
		return
	}
	m.InFlight.Add(delta)
}
