// Package metrics exposes the Prometheus collectors of the trading engine and
// the /healthz status. Every recording method is safe on a nil *Metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics of the engine.
type Metrics struct {
	BrokerRequests *prometheus.CounterVec // labels: broker, op, outcome
	GetterRetries  *prometheus.CounterVec // labels: symbol
	RateLimitHits  prometheus.Counter
	KlinesAppended prometheus.Counter

	TickDuration *prometheus.HistogramVec // labels: operation
	MonitorScore *prometheus.GaugeVec     // labels: operation, symbol
	Orders       *prometheus.CounterVec   // labels: operation, signal, fulfilled
	Wallet       *prometheus.GaugeVec     // labels: operation, asset
	TickErrors   *prometheus.CounterVec   // labels: operation

	NotifierFailures *prometheus.CounterVec // labels: broadcaster

	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisBufferedWrites      prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg
// (the default registerer when reg is nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		BrokerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "didi_broker_requests_total",
			Help: "Broker API calls by operation and outcome",
		}, []string{"broker", "op", "outcome"}),
		GetterRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "didi_getter_retries_total",
			Help: "Klines fetch retries after a broker failure",
		}, []string{"symbol"}),
		RateLimitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "didi_rate_limit_hits_total",
			Help: "Times the request weight limit was reached",
		}),
		KlinesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "didi_klines_appended_total",
			Help: "Klines written to the klines store",
		}),
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "didi_tick_duration_seconds",
			Help:    "Duration of one operation tick (analysis + coordination)",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		MonitorScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "didi_monitor_score",
			Help: "Latest classifier score per monitor",
		}, []string{"operation", "symbol"}),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "didi_orders_total",
			Help: "Executed orders by signal and fulfillment",
		}, []string{"operation", "signal", "fulfilled"}),
		Wallet: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "didi_wallet_balance",
			Help: "Wallet balance per asset",
		}, []string{"operation", "asset"}),
		TickErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "didi_tick_errors_total",
			Help: "Ticks aborted by an error",
		}, []string{"operation"}),
		NotifierFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "didi_notifier_failures_total",
			Help: "Messages a broadcaster failed to deliver",
		}, []string{"broadcaster"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "didi_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "didi_redis_buffered_writes_total",
			Help: "Series writes buffered locally while the Redis circuit was open",
		}),
	}

	reg.MustRegister(
		m.BrokerRequests,
		m.GetterRetries,
		m.RateLimitHits,
		m.KlinesAppended,
		m.TickDuration,
		m.MonitorScore,
		m.Orders,
		m.Wallet,
		m.TickErrors,
		m.NotifierFailures,
		m.RedisCircuitBreakerState,
		m.RedisBufferedWrites,
	)
	return m
}

func (m *Metrics) BrokerRequest(broker, op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.BrokerRequests.WithLabelValues(broker, op, outcome).Inc()
}

func (m *Metrics) GetterRetry(symbol string) {
	if m == nil {
		return
	}
	m.GetterRetries.WithLabelValues(symbol).Inc()
}

func (m *Metrics) RateLimitHit() {
	if m == nil {
		return
	}
	m.RateLimitHits.Inc()
}

func (m *Metrics) Appended(n int) {
	if m == nil {
		return
	}
	m.KlinesAppended.Add(float64(n))
}

func (m *Metrics) ObserveTick(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.TickDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) TickError(operation string) {
	if m == nil {
		return
	}
	m.TickErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) Score(operation, symbol string, score float64) {
	if m == nil {
		return
	}
	m.MonitorScore.WithLabelValues(operation, symbol).Set(score)
}

func (m *Metrics) Order(operation, signal string, fulfilled bool) {
	if m == nil {
		return
	}
	m.Orders.WithLabelValues(operation, signal, strconv.FormatBool(fulfilled)).Inc()
}

func (m *Metrics) WalletBalance(operation string, wallet map[string]float64) {
	if m == nil {
		return
	}
	for asset, v := range wallet {
		m.Wallet.WithLabelValues(operation, asset).Set(v)
	}
}

func (m *Metrics) NotifierFailure(broadcaster string) {
	if m == nil {
		return
	}
	m.NotifierFailures.WithLabelValues(broadcaster).Inc()
}

func (m *Metrics) BreakerState(state int) {
	if m == nil {
		return
	}
	m.RedisCircuitBreakerState.Set(float64(state))
}

func (m *Metrics) BufferedWrite() {
	if m == nil {
		return
	}
	m.RedisBufferedWrites.Inc()
}
