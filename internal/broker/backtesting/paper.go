package backtesting

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"didibot/internal/model"
)

// walletPlaces is the precision balances are rounded to after every fill.
const walletPlaces = 8

// Paper executes orders against a wallet instead of an exchange. Market data
// comes from the wrapped query side: the stored replay when backtesting, the
// live broker in test mode.
type Paper struct {
	model.BrokerQuery

	mu      sync.Mutex
	wallet  map[string]float64
	feeRate decimal.Decimal
	fills   []model.Order
}

// NewPaper simulates fills with a fee of feeRate per unit of quantity.
// wallet is updated in place; it is usually the Operation's own map.
func NewPaper(market model.BrokerQuery, wallet map[string]float64, feeRate float64) (*Paper, error) {
	if feeRate < 0 || feeRate >= 1 {
		return nil, fmt.Errorf("%w: fee rate must be in [0, 1), got %g", model.ErrValue, feeRate)
	}
	if wallet == nil {
		wallet = map[string]float64{}
	}
	return &Paper{BrokerQuery: market, wallet: wallet, feeRate: decimal.NewFromFloat(feeRate)}, nil
}

// GetPortfolio reads the simulated balances.
func (p *Paper) GetPortfolio(_ context.Context, t model.Ticker) (model.Portfolio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return model.Portfolio{Quote: p.wallet[t.Quote], Base: p.wallet[t.Base]}, nil
}

// GetMinLotSize is the fixed simulated floor at the current price.
func (p *Paper) GetMinLotSize(ctx context.Context, t model.Ticker) (float64, error) {
	price, err := p.GetPrice(ctx, t, 0)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: non positive price %g for %s", model.ErrValue, price, t.Symbol)
	}
	return MinNotional / price, nil
}

// Wallet returns a copy of the balances.
func (p *Paper) Wallet() map[string]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]float64, len(p.wallet))
	for k, v := range p.wallet {
		out[k] = v
	}
	return out
}

// Fills returns the fulfilled orders in execution order.
func (p *Paper) Fills() []model.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Order(nil), p.fills...)
}

// Execute fills o at its price, or at the market price of its timestamp.
// Buys spend quantity × price of base and receive quantity − fee of quote;
// sells spend quantity of quote and receive (quantity − fee) × price of base.
// Naked sells, and sells growing an open short, may take the quote balance
// negative.
func (p *Paper) Execute(ctx context.Context, o model.Order) (model.Order, error) {
	o.Fulfilled = false
	if o.Price <= 0 {
		price, err := p.GetPrice(ctx, o.Ticker, o.Timestamp)
		if err != nil {
			return o, err
		}
		o.Price = price
	}
	if o.Quantity <= 0 {
		o.Warn("Quantity must be positive.")
		return o, nil
	}
	if !o.Signal.IsBuy() && !o.Signal.IsSell() {
		o.Warn("Signal %s does not trade.", o.Signal)
		return o, nil
	}
	if minLot := MinNotional / o.Price; o.Quantity < minLot {
		o.Warn("Quantity %g below the minimum lot %g.", o.Quantity, minLot)
		return o, nil
	}

	qty := decimal.NewFromFloat(o.Quantity)
	price := decimal.NewFromFloat(o.Price)
	fee := p.feeRate.Mul(qty)

	p.mu.Lock()
	defer p.mu.Unlock()
	base := decimal.NewFromFloat(p.wallet[o.Ticker.Base])
	quote := decimal.NewFromFloat(p.wallet[o.Ticker.Quote])

	if o.Signal.IsBuy() {
		cost := qty.Mul(price)
		if cost.GreaterThan(base) {
			o.Warn("Insufficient balance.")
			return o, nil
		}
		base = base.Sub(cost)
		quote = quote.Add(qty.Sub(fee))
	} else {
		if !o.Naked() && qty.GreaterThan(quote) {
			o.Warn("Insufficient balance.")
			return o, nil
		}
		quote = quote.Sub(qty)
		base = base.Add(qty.Sub(fee).Mul(price))
	}

	p.wallet[o.Ticker.Base] = base.Round(walletPlaces).InexactFloat64()
	p.wallet[o.Ticker.Quote] = quote.Round(walletPlaces).InexactFloat64()
	o.Fee = fee.InexactFloat64()
	o.Fulfilled = true
	o.IDByBroker = "PAPER-" + uuid.NewString()
	p.fills = append(p.fills, o)

	log.Printf("[paper] %s %s qty=%s price=%s fee=%s order=%s",
		o.Signal, o.Ticker.Symbol, qty, price, fee, o.IDByBroker)
	return o, nil
}
