package strategy

import (
	"fmt"

	"didibot/internal/model"
)

// TrailingName is the registry name of the trailing stop.
const TrailingName = "stop_trailing"

// CheckEvery is the minimum spacing of stop checks, in seconds.
const CheckEvery = int64(60)

// StopLoss decides whether an open position must be closed at price.
type StopLoss interface {
	Name() string
	// Check ratchets the position's exit reference and reports whether the
	// stop fired.
	Check(pos model.Position, price float64) (model.Position, bool)
}

// NewStopLoss builds the stop named in setup.
func NewStopLoss(setup model.StoplossSetup) (StopLoss, error) {
	switch setup.Name {
	case TrailingName:
		if setup.Percent <= 0 || setup.Percent >= 100 {
			return nil, fmt.Errorf("%w: trailing stop percent must be in (0, 100), got %g", model.ErrValue, setup.Percent)
		}
		return &Trailing{fraction: setup.Percent / 100}, nil
	}
	return nil, fmt.Errorf("%w: unknown stop loss %q", model.ErrValue, setup.Name)
}

// Trailing follows the best price since entry and fires when price retraces
// by a fixed fraction of it.
type Trailing struct {
	fraction float64
}

func (t *Trailing) Name() string { return TrailingName }

func (t *Trailing) Check(pos model.Position, price float64) (model.Position, bool) {
	ref := pos.ExitReferencePrice
	if ref == 0 {
		ref = pos.EnterPrice
	}
	switch pos.Side {
	case model.SideLong:
		if price > ref {
			ref = price
		}
		pos.ExitReferencePrice = ref
		return pos, price <= ref*(1-t.fraction)
	case model.SideShort:
		if ref == 0 || price < ref {
			ref = price
		}
		pos.ExitReferencePrice = ref
		return pos, price >= ref*(1+t.fraction)
	}
	return pos, false
}

// StopOrder is the zeroing order a fired stop hands to the coordinator.
func StopOrder(m *model.Monitor, setup model.TradingSetup, now int64) model.Order {
	return model.Order{
		Ticker:    m.Ticker,
		Timestamp: now,
		OrderType: model.OrderMarket,
		Leverage:  setup.Leverage,
		From:      model.SideScore{Side: m.Position.Side, Score: m.Position.ByScore},
		To:        model.SideScore{Side: model.SideZeroed},
		ByStop:    true,
	}
}
