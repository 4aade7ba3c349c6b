package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"didibot/internal/model"
)

func order(sym string, sig model.Signal, qty, price float64) model.Order {
	return model.Order{Ticker: model.Ticker{Symbol: sym}, Signal: sig, Quantity: qty, Price: price, Fulfilled: true}
}

func TestPnLLongRoundTrip(t *testing.T) {
	p := NewPnLTracker()
	assert.Zero(t, p.RecordOrder(order("BTCUSDT", model.SignalBuy, 1, 100)))
	assert.Zero(t, p.RecordOrder(order("BTCUSDT", model.SignalBuy, 1, 200)))
	assert.InDelta(t, 150, p.UnrealizedPnL(map[string]float64{"BTCUSDT": 225}), 1e-9)

	assert.InDelta(t, 100, p.RecordOrder(order("BTCUSDT", model.SignalSell, 2, 200)), 1e-9)
	s := p.Summary(nil)
	assert.InDelta(t, 100, s.TotalPnL, 1e-9)
	assert.Equal(t, 3, s.TotalOrders)
	assert.Equal(t, 1, s.Wins)
	require.Len(t, s.BySymbol, 1)
	assert.Zero(t, s.BySymbol[0].OpenQty)
}

func TestPnLShortAndFlip(t *testing.T) {
	p := NewPnLTracker()
	p.RecordOrder(order("ETHUSDT", model.SignalNakedSell, 2, 50))
	// cover 2 at 40 and open 1 long at 40
	assert.InDelta(t, 20, p.RecordOrder(order("ETHUSDT", model.SignalDoubleBuy, 3, 40)), 1e-9)

	s := p.Summary(map[string]float64{"ETHUSDT": 45})
	require.Len(t, s.BySymbol, 1)
	assert.InDelta(t, 1, s.BySymbol[0].OpenQty, 1e-9)
	assert.InDelta(t, 40, s.BySymbol[0].AvgPrice, 1e-9)
	assert.InDelta(t, 5, s.UnrealizedPnL, 1e-9)
}

func TestPnLIgnoresUnfulfilled(t *testing.T) {
	p := NewPnLTracker()
	o := order("BTCUSDT", model.SignalBuy, 1, 100)
	o.Fulfilled = false
	p.RecordOrder(o)
	assert.Empty(t, p.Orders())
}

func TestEquityDrawdownAndReturn(t *testing.T) {
	e := NewEquity()
	for i, v := range []float64{100, 120, 90, 110} {
		e.Mark(int64(i), v)
	}
	assert.InDelta(t, 25, e.MaxDrawdown(), 1e-9)
	assert.InDelta(t, 10, e.Return(), 1e-9)
	assert.Len(t, e.Points(), 4)
}

func TestValue(t *testing.T) {
	w := map[string]float64{"USDT": 100, "BTC": 0.5, "ETH": 2}
	assert.InDelta(t, 100+0.5*20000, Value(w, "USDT", map[string]float64{"BTC": 20000}), 1e-9)
}
