package model

import "fmt"

// OrderType is the broker order kind.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// Signal is the trading instruction derived from a side transition.
type Signal string

const (
	SignalHold            Signal = "hold"
	SignalBuy             Signal = "buy"
	SignalSell            Signal = "sell"
	SignalNakedSell       Signal = "naked_sell"
	SignalDoubleBuy       Signal = "double_buy"
	SignalDoubleNakedSell Signal = "double_naked_sell"
	SignalLongStopped     Signal = "long_stopped"
	SignalShortStopped    Signal = "short_stopped"
)

// IsBuy reports whether the signal buys the quote asset.
func (s Signal) IsBuy() bool {
	return s == SignalBuy || s == SignalDoubleBuy || s == SignalShortStopped
}

// IsSell reports whether the signal sells the quote asset.
func (s Signal) IsSell() bool {
	return s == SignalSell || s == SignalNakedSell || s == SignalDoubleNakedSell || s == SignalLongStopped
}

// IsNaked reports whether the signal may leave the quote balance negative.
func (s Signal) IsNaked() bool {
	return s == SignalNakedSell || s == SignalDoubleNakedSell
}

// Naked reports whether the order may leave the quote balance negative: a
// naked signal, or a sell that grows an open short.
func (o Order) Naked() bool {
	return o.Signal.IsNaked() || (o.Signal == SignalSell && o.From.Side == SideShort)
}

// SideScore is one end of a proposed side transition.
type SideScore struct {
	Side  Side    `json:"side"`
	Score float64 `json:"score"`
}

// Order is a proposed or executed trade. Quantity is expressed in quote units.
type Order struct {
	ID         string    `json:"id"`
	Ticker     Ticker    `json:"ticker"`
	Timestamp  int64     `json:"timestamp"`
	OrderType  OrderType `json:"order_type"`
	Leverage   float64   `json:"leverage"`
	Signal     Signal    `json:"signal"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	Fulfilled  bool      `json:"fulfilled"`
	Fee        float64   `json:"fee"`
	Warnings   []string  `json:"warnings,omitempty"`
	From       SideScore `json:"from"`
	To         SideScore `json:"to"`
	ByStop     bool      `json:"by_stop,omitempty"`
	IDByBroker string    `json:"id_by_broker,omitempty"`
}

// Warn appends a warning and marks the order as not fulfilled.
func (o *Order) Warn(format string, args ...any) {
	o.Warnings = append(o.Warnings, fmt.Sprintf(format, args...))
	o.Fulfilled = false
}

func (o Order) String() string {
	return fmt.Sprintf("%s %s qty=%.8f price=%.8f fulfilled=%t (%s %.3f -> %s %.3f)",
		o.Signal, o.Ticker.Symbol, o.Quantity, o.Price, o.Fulfilled,
		o.From.Side, o.From.Score, o.To.Side, o.To.Score)
}
