// Package strategy turns classifier scores and stop checks into trading
// signals.
package strategy

import "didibot/internal/model"

// SideFor maps a score onto the side the trading setup asks for.
func SideFor(score float64, t model.TradingSetup) model.Side {
	switch {
	case score >= t.ScoreLong:
		return model.SideLong
	case score <= t.ScoreShort:
		return model.SideShort
	}
	return model.SideZeroed
}

// Generator derives signals from proposed side transitions.
type Generator struct {
	AllowNakedSells bool
}

// Target is the side an order will actually move to: short proposals are
// zeroed when naked sells are disabled.
func (g Generator) Target(to model.Side) model.Side {
	if to == model.SideShort && !g.AllowNakedSells {
		return model.SideZeroed
	}
	return to
}

// Signal maps (from, to, byStop) to a signal:
//
//	from \ to | zeroed                  | long       | short
//	zeroed    | hold                    | buy        | naked_sell
//	long      | sell / long_stopped     | buy|hold   | double_naked_sell
//	short     | buy / short_stopped     | double_buy | sell|hold
//
// A same-side transition trades only when it intensifies the score.
func (g Generator) Signal(from, to model.SideScore, byStop bool) model.Signal {
	target := g.Target(to.Side)
	switch from.Side {
	case model.SideLong:
		switch target {
		case model.SideZeroed:
			if byStop {
				return model.SignalLongStopped
			}
			return model.SignalSell
		case model.SideLong:
			if abs(to.Score) > abs(from.Score) {
				return model.SignalBuy
			}
			return model.SignalHold
		case model.SideShort:
			return model.SignalDoubleNakedSell
		}
	case model.SideShort:
		switch target {
		case model.SideZeroed:
			if byStop {
				return model.SignalShortStopped
			}
			return model.SignalBuy
		case model.SideLong:
			return model.SignalDoubleBuy
		case model.SideShort:
			if abs(to.Score) > abs(from.Score) {
				return model.SignalSell
			}
			return model.SignalHold
		}
	default:
		switch target {
		case model.SideLong:
			return model.SignalBuy
		case model.SideShort:
			return model.SignalNakedSell
		}
	}
	return model.SignalHold
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
