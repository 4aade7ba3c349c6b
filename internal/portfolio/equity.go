package portfolio

import (
	"log"
	"sync"
)

// EquityPoint is the wallet value at one tick.
type EquityPoint struct {
	Timestamp int64   `json:"timestamp"`
	Equity    float64 `json:"equity"`
}

// Equity records the equity curve and its drawdown.
type Equity struct {
	mu          sync.RWMutex
	points      []EquityPoint
	peak        float64
	maxDrawdown float64 // percent, 0-100
}

func NewEquity() *Equity { return &Equity{} }

// Value is the wallet expressed in base: base balance plus every other
// asset at its price in base. Assets without a price are skipped.
func Value(wallet map[string]float64, base string, prices map[string]float64) float64 {
	v := wallet[base]
	for asset, amount := range wallet {
		if asset == base {
			continue
		}
		if price, ok := prices[asset]; ok {
			v += amount * price
		}
	}
	return v
}

// Mark appends a point and updates the peak and maximum drawdown.
func (e *Equity) Mark(ts int64, equity float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.points = append(e.points, EquityPoint{Timestamp: ts, Equity: equity})
	if equity > e.peak {
		e.peak = equity
	}
	if e.peak > 0 {
		if dd := (e.peak - equity) / e.peak * 100; dd > e.maxDrawdown {
			e.maxDrawdown = dd
			log.Printf("[equity] new max drawdown %.2f%% at %d (equity %.2f, peak %.2f)", dd, ts, equity, e.peak)
		}
	}
}

func (e *Equity) Points() []EquityPoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cp := make([]EquityPoint, len(e.points))
	copy(cp, e.points)
	return cp
}

// MaxDrawdown is the largest peak-to-trough fall seen, in percent.
func (e *Equity) MaxDrawdown() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.maxDrawdown
}

// Return is the percent change from the first to the last point.
func (e *Equity) Return() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.points) < 2 || e.points[0].Equity == 0 {
		return 0
	}
	first, last := e.points[0].Equity, e.points[len(e.points)-1].Equity
	return (last - first) / first * 100
}
