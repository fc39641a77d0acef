package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"possale/backend/internal/domain"
)

func TestCountersMove(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SaleCommitted(domain.Sale{PaymentStatus: domain.PaymentPaid, TotalAmount: decimal.NewFromInt(310)})
	m.SaleCommitted(domain.Sale{PaymentStatus: domain.PaymentPaid, TotalAmount: decimal.NewFromInt(10)})
	m.SaleFailed("insufficient_stock")
	m.StockReturned(3)
	m.ObserveHTTP("POST", "/api/v1/sales", 201, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.salesCommitted.WithLabelValues("paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saleFailures.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.stockReturned))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SaleCommitted(domain.Sale{})
	m.SaleFailed("x")
	m.StockReturned(1)
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
}
