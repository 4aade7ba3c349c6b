// Package broker holds the pieces shared by every broker adapter: order
// sanitation against exchange filters and the supported time frames.
package broker

import (
	"fmt"

	"github.com/shopspring/decimal"

	"didibot/internal/model"
)

// SafetyFactor shaves order quantities to leave room for fees and slippage.
const SafetyFactor = 0.998

// MinNotionalMargin is applied over the exchange minimum notional.
const MinNotionalMargin = 1.03

// TimeFrames is the enumeration exposed by Binance-compatible exchanges, finest first.
var TimeFrames = []string{"1m", "3m", "5m", "15m", "30m", "1h", "2h", "4h", "6h", "8h", "12h", "1d", "3d", "1w", "1M"}

// Filters are the trading rules of one symbol.
type Filters struct {
	StepSize    decimal.Decimal // lot step in quote units
	TickSize    decimal.Decimal // price step
	MinQuantity decimal.Decimal
	MinNotional decimal.Decimal // in base units
}

// Snap rounds v down to a multiple of step. A zero step leaves v untouched.
func Snap(v, step decimal.Decimal) decimal.Decimal {
	if step.IsZero() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// MinLotSize converts the minimum notional to quote units at price.
func (f Filters) MinLotSize(price float64) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("%w: price must be positive, got %g", model.ErrValue, price)
	}
	lot := f.MinNotional.Mul(decimal.NewFromFloat(MinNotionalMargin)).Div(decimal.NewFromFloat(price))
	if lot.LessThan(f.MinQuantity) {
		lot = f.MinQuantity
	}
	return lot.InexactFloat64(), nil
}

// Sanitize snaps quantity and price to the symbol steps and rejects quantities
// below the minimum lot. The returned strings are ready for the exchange API.
func (f Filters) Sanitize(quantity, price float64) (qty, px string, err error) {
	q := Snap(decimal.NewFromFloat(quantity), f.StepSize)
	p := Snap(decimal.NewFromFloat(price), f.TickSize)
	minLot, err := f.MinLotSize(price)
	if err != nil {
		return "", "", err
	}
	if q.IsZero() || q.LessThan(decimal.NewFromFloat(minLot)) {
		return "", "", fmt.Errorf("%w: quantity %s below minimum lot %g", model.ErrOrderRejected, q, minLot)
	}
	return q.String(), p.String(), nil
}
