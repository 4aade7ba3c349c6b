package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dto "github.com/prometheus/client_model/go"
)

func read(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var d dto.Metric
	require.NoError(t, m.Write(&d))
	if d.Counter != nil {
		return d.Counter.GetValue()
	}
	return d.Gauge.GetValue()
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BrokerRequest("binance", "klines", nil)
		m.Order("op", "buy", true)
		m.Score("op", "BTCUSDT", 0.5)
		m.WalletBalance("op", map[string]float64{"USDT": 1})
	})
}

func TestMetrics_Records(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.BrokerRequest("binance", "klines", nil)
	m.BrokerRequest("binance", "klines", errors.New("boom"))
	m.BrokerRequest("binance", "klines", errors.New("boom"))
	m.Order("op", "buy", true)
	m.Score("op", "BTCUSDT", -0.4)
	m.RateLimitHit()

	assert.Equal(t, 1.0, read(t, m.BrokerRequests.WithLabelValues("binance", "klines", "ok")))
	assert.Equal(t, 2.0, read(t, m.BrokerRequests.WithLabelValues("binance", "klines", "error")))
	assert.Equal(t, 1.0, read(t, m.Orders.WithLabelValues("op", "buy", "true")))
	assert.Equal(t, -0.4, read(t, m.MonitorScore.WithLabelValues("op", "BTCUSDT")))
	assert.Equal(t, 1.0, read(t, m.RateLimitHits))
}

func TestHealth_Report(t *testing.T) {
	h := NewHealthStatus()
	_, code := h.Report()
	assert.Equal(t, http.StatusServiceUnavailable, code)

	h.SetBrokerReachable(true)
	h.SetOperationsDBOK(true)
	h.mu.Lock()
	h.KlinesDBOK = true
	h.mu.Unlock()
	h.Tick("op1", time.Unix(0, 0))

	r, code := h.Report()
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", r.Status)
	assert.Equal(t, []string{"op1"}, r.Operations)
	assert.Equal(t, "1970-01-01T00:00:00Z", r.LastTicks["op1"])

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}
