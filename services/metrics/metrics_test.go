package metricsvc

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRentalMetrics(t *testing.T) {
	m := New()

	m.CheckedOut(decimal.RequireFromString("150.50"))
	m.CheckedOut(decimal.NewFromInt(50))
	m.Confirmed()
	m.Cancelled()
	m.Returned(0, decimal.Zero)
	m.Returned(5, decimal.RequireFromString("12.25"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.checkouts))
	assert.Equal(t, 200.5, testutil.ToFloat64(m.checkoutTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.confirmations))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.cancellations))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.returns.WithLabelValues("true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.returns.WithLabelValues("false")))
	assert.Equal(t, 12.25, testutil.ToFloat64(m.penalties))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/api/items", http.StatusOK, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `kenamplan_http_requests_total{method="GET",route="/api/items",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
