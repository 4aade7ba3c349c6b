// Package portfolio tracks realized P&L and the equity curve of a backtest.
package portfolio

import (
	"math"
	"sort"
	"sync"

	"didibot/internal/model"
)

// costEntry is the open exposure of one symbol. Qty is signed: negative is short.
type costEntry struct {
	Qty      float64
	AvgPrice float64
}

// PnLTracker accumulates fulfilled orders and their realized P&L in the
// currency prices are quoted in.
type PnLTracker struct {
	mu          sync.RWMutex
	orders      []model.Order
	realized    map[string]float64
	fees        float64
	costBasis   map[string]costEntry
	wins, loses int
}

func NewPnLTracker() *PnLTracker {
	return &PnLTracker{
		orders:    make([]model.Order, 0, 500),
		realized:  make(map[string]float64),
		costBasis: make(map[string]costEntry),
	}
}

// RecordOrder applies a fulfilled order and returns the P&L it realized.
// Unfulfilled orders are ignored.
func (p *PnLTracker) RecordOrder(o model.Order) float64 {
	if !o.Fulfilled || o.Quantity == 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.orders = append(p.orders, o)
	p.fees += o.Fee * o.Price

	qty := math.Abs(o.Quantity)
	if o.Signal.IsSell() {
		qty = -qty
	}
	sym := o.Ticker.Symbol
	entry := p.costBasis[sym]

	var pnl float64
	switch {
	case entry.Qty == 0 || sameSign(entry.Qty, qty):
		total := entry.AvgPrice*math.Abs(entry.Qty) + o.Price*math.Abs(qty)
		entry.Qty += qty
		entry.AvgPrice = total / math.Abs(entry.Qty)
	default:
		closed := math.Min(math.Abs(qty), math.Abs(entry.Qty))
		if entry.Qty > 0 {
			pnl = (o.Price - entry.AvgPrice) * closed
		} else {
			pnl = (entry.AvgPrice - o.Price) * closed
		}
		rest := entry.Qty + qty
		switch {
		case math.Abs(rest) < 1e-12:
			entry = costEntry{}
		case sameSign(rest, entry.Qty):
			entry.Qty = rest
		default:
			// flipped through zero: the remainder opens at this price
			entry = costEntry{Qty: rest, AvgPrice: o.Price}
		}
		p.realized[sym] += pnl
		if pnl > 0 {
			p.wins++
		} else {
			p.loses++
		}
	}
	p.costBasis[sym] = entry
	return pnl
}

func sameSign(a, b float64) bool { return (a > 0) == (b > 0) }

func (p *PnLTracker) RealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var sum float64
	for _, v := range p.realized {
		sum += v
	}
	return sum
}

// UnrealizedPnL values the open exposure at prices (symbol -> price).
func (p *PnLTracker) UnrealizedPnL(prices map[string]float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var sum float64
	for sym, e := range p.costBasis {
		if price, ok := prices[sym]; ok && e.Qty != 0 {
			sum += (price - e.AvgPrice) * e.Qty
		}
	}
	return sum
}

func (p *PnLTracker) Orders() []model.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]model.Order, len(p.orders))
	copy(cp, p.orders)
	return cp
}

// SymbolPnL is the realized P&L of one symbol.
type SymbolPnL struct {
	Symbol   string  `json:"symbol"`
	Realized float64 `json:"realized"`
	OpenQty  float64 `json:"open_qty"`
	AvgPrice float64 `json:"avg_price"`
}

// PnLSummary is the P&L state at a point in time.
type PnLSummary struct {
	RealizedPnL   float64     `json:"realized_pnl"`
	UnrealizedPnL float64     `json:"unrealized_pnl"`
	TotalPnL      float64     `json:"total_pnl"`
	Fees          float64     `json:"fees"`
	TotalOrders   int         `json:"total_orders"`
	Wins          int         `json:"wins"`
	Losses        int         `json:"losses"`
	BySymbol      []SymbolPnL `json:"by_symbol"`
}

func (p *PnLTracker) Summary(prices map[string]float64) PnLSummary {
	realized := p.RealizedPnL()
	unrealized := p.UnrealizedPnL(prices)

	p.mu.RLock()
	defer p.mu.RUnlock()
	s := PnLSummary{
		RealizedPnL:   realized,
		UnrealizedPnL: unrealized,
		TotalPnL:      realized + unrealized,
		Fees:          p.fees,
		TotalOrders:   len(p.orders),
		Wins:          p.wins,
		Losses:        p.loses,
	}
	syms := make(map[string]bool)
	for sym := range p.costBasis {
		syms[sym] = true
	}
	for sym := range p.realized {
		syms[sym] = true
	}
	for sym := range syms {
		e := p.costBasis[sym]
		s.BySymbol = append(s.BySymbol, SymbolPnL{Symbol: sym, Realized: p.realized[sym], OpenQty: e.Qty, AvgPrice: e.AvgPrice})
	}
	sort.Slice(s.BySymbol, func(i, j int) bool { return s.BySymbol[i].Symbol < s.BySymbol[j].Symbol })
	return s
}
