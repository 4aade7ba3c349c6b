// Package execution sizes and places the orders of one tick: the Executor
// prices and sizes a single order, the Coordinator arbitrates a whole batch.
package execution

import (
	"context"
	"fmt"
	"math"

	"didibot/internal/broker"
	"didibot/internal/model"
)

// Executor prices, sizes and places single orders on a broker.
type Executor struct {
	broker model.Broker
	// priceAtTimestamp prices orders at their own timestamp instead of now.
	priceAtTimestamp bool
}

// NewExecutor places orders on b. Replays set priceAtTimestamp so orders
// fill at the virtual time they were proposed.
func NewExecutor(b model.Broker, priceAtTimestamp bool) *Executor {
	return &Executor{broker: b, priceAtTimestamp: priceAtTimestamp}
}

// Validate rejects orders the executor cannot size.
func Validate(o model.Order) error {
	switch {
	case o.Ticker.Symbol == "" || o.Ticker.Base == "" || o.Ticker.Quote == "":
		return fmt.Errorf("%w: order without ticker", model.ErrValue)
	case !o.Signal.IsBuy() && !o.Signal.IsSell():
		return fmt.Errorf("%w: signal %q does not trade", model.ErrValue, o.Signal)
	case o.Leverage <= 0:
		return fmt.Errorf("%w: leverage must be positive, got %g", model.ErrValue, o.Leverage)
	}
	return nil
}

// Execute places o. allocation is the base amount a queued buy may spend;
// pass a negative allocation to size from the whole available base.
// Rejections are reported on the returned order.
func (e *Executor) Execute(ctx context.Context, o model.Order, allocation float64) (model.Order, error) {
	if err := Validate(o); err != nil {
		o.Warn("%v", err)
		return o, nil
	}

	at := int64(0)
	if e.priceAtTimestamp {
		at = o.Timestamp
	}
	price, err := e.broker.GetPrice(ctx, o.Ticker, at)
	if err != nil {
		return o, fmt.Errorf("price %s: %w", o.Ticker.Symbol, err)
	}
	if price <= 0 || math.IsNaN(price) {
		o.Warn("Invalid price %g.", price)
		return o, nil
	}
	o.Price = price

	pf, err := e.broker.GetPortfolio(ctx, o.Ticker)
	if err != nil {
		return o, fmt.Errorf("portfolio %s: %w", o.Ticker.Symbol, err)
	}
	o.Quantity = Quantity(o, pf, allocation)
	if o.Quantity <= 0 {
		o.Warn("Nothing to trade: quote %g base %g.", pf.Quote, pf.Base)
		return o, nil
	}
	return e.broker.Execute(ctx, o)
}

// Quantity sizes o in quote units at o.Price:
//
//	sell, long_stopped    the whole quote balance
//	naked_sell            leverage × base / price
//	sell from short       leverage × base / price, growing the short
//	double_naked_sell     the quote balance plus leverage × base / price
//	buy from short        the short quote balance
//	short_stopped         the short quote balance
//	double_buy            the short plus leverage × remaining base / price
//	buy                   leverage × allocation / price
//
// Every size except a cover is shaved by the safety factor; covers are
// enlarged by it so fees do not leave a residual short.
func Quantity(o model.Order, pf model.Portfolio, allocation float64) float64 {
	if o.Price <= 0 {
		return 0
	}
	base := pf.Base
	if allocation >= 0 && allocation < base {
		base = allocation
	}
	if base < 0 {
		base = 0
	}
	long := func(b float64) float64 { return o.Leverage * b / o.Price * broker.SafetyFactor }
	cover := 0.0
	if pf.Quote < 0 {
		cover = -pf.Quote / broker.SafetyFactor
	}
	held := math.Max(pf.Quote, 0) * broker.SafetyFactor

	switch o.Signal {
	case model.SignalSell:
		if o.From.Side == model.SideShort {
			return long(base)
		}
		return held
	case model.SignalLongStopped:
		return held
	case model.SignalNakedSell:
		return long(base)
	case model.SignalDoubleNakedSell:
		return held + long(base)
	case model.SignalShortStopped:
		return cover
	case model.SignalDoubleBuy:
		return cover + long(math.Max(base-cover*o.Price, 0))
	case model.SignalBuy:
		if o.From.Side == model.SideShort {
			return cover
		}
		return long(base)
	}
	return 0
}
