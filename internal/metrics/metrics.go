// Package metrics exposes sale engine counters to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"possale/backend/internal/domain"
)

type Metrics struct {
	salesCommitted *prometheus.CounterVec
	saleFailures   *prometheus.CounterVec
	saleTotal      prometheus.Histogram
	stockReturned  prometheus.Counter
	httpDuration   *prometheus.HistogramVec
}

// New registers the collectors on reg. Tests pass prometheus.NewRegistry() so
// repeated construction does not collide on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		salesCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "possale",
			Name:      "sales_committed_total",
			Help:      "Committed sales by payment status at commit time.",
		}, []string{"payment_status"}),
		saleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "possale",
			Name:      "sale_commit_failures_total",
			Help:      "Sale commits rejected, by reason.",
		}, []string{"reason"}),
		saleTotal: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "possale",
			Name:      "sale_total_amount",
			Help:      "Distribution of committed sale totals.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}),
		stockReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "possale",
			Name:      "stock_units_returned_total",
			Help:      "Units restored to stock by cancellations and returns.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "possale",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.salesCommitted, m.saleFailures, m.saleTotal, m.stockReturned, m.httpDuration)
	}
	return m
}

func (m *Metrics) SaleCommitted(sale domain.Sale) {
	if m == nil {
		return
	}
	m.salesCommitted.WithLabelValues(string(sale.PaymentStatus)).Inc()
	total, _ := sale.TotalAmount.Float64()
	m.saleTotal.Observe(total)
}

func (m *Metrics) SaleFailed(reason string) {
	if m == nil {
		return
	}
	m.saleFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) StockReturned(units int) {
	if m == nil || units <= 0 {
		return
	}
	m.stockReturned.Add(float64(units))
}

func (m *Metrics) ObserveHTTP(method string, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
