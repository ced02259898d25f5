// Package metricsvc exposes Prometheus metrics for HTTP traffic & the rental lifecycle.
package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/kenamplan/backend/core/rental"
)

const namespace = "kenamplan"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	checkouts     prometheus.Counter
	checkoutTotal prometheus.Counter
	confirmations prometheus.Counter
	cancellations prometheus.Counter
	returns       *prometheus.CounterVec
	lateHours     prometheus.Histogram
	penalties     prometheus.Counter
}

var _ rental.Metrics = (*Metrics)(nil)

// New registers every metric on a dedicated registry, along with the Go & process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		checkouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rental",
			Name:      "checkouts_total",
			Help:      "Rentals created from a cart",
		}),
		checkoutTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rental",
			Name:      "checkout_amount_total",
			Help:      "Sum of rental prices at checkout",
		}),
		confirmations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rental",
			Name:      "confirmations_total",
			Help:      "Rentals confirmed by an admin",
		}),
		cancellations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rental",
			Name:      "cancellations_total",
			Help:      "Rentals cancelled",
		}),
		returns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rental",
			Name:      "returns_total",
			Help:      "Rentals returned, split by lateness",
		}, []string{"late"}),
		lateHours: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rental",
			Name:      "late_hours",
			Help:      "Hours late of late returns",
			Buckets:   []float64{1, 2, 4, 8, 12, 24, 48, 72, 168},
		}),
		penalties: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rental",
			Name:      "penalty_amount_total",
			Help:      "Sum of late return penalties",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) CheckedOut(total decimal.Decimal) {
	m.checkouts.Inc()
	m.checkoutTotal.Add(total.InexactFloat64())
}

func (m *Metrics) Confirmed() { m.confirmations.Inc() }
func (m *Metrics) Cancelled() { m.cancellations.Inc() }

func (m *Metrics) Returned(lateHours int, penalty decimal.Decimal) {
	if lateHours == 0 {
		m.returns.WithLabelValues("false").Inc()
		return
	}
	m.returns.WithLabelValues("true").Inc()
	m.lateHours.Observe(float64(lateHours))
	m.penalties.Add(penalty.InexactFloat64())
}
