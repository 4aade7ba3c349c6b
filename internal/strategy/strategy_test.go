package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"didibot/internal/model"
)

func ss(side model.Side, score float64) model.SideScore {
	return model.SideScore{Side: side, Score: score}
}

func TestSignalTable(t *testing.T) {
	g := Generator{AllowNakedSells: true}
	z, l, s := model.SideZeroed, model.SideLong, model.SideShort

	tests := []struct {
		from, to model.SideScore
		byStop   bool
		want     model.Signal
	}{
		{ss(z, 0), ss(z, 0), false, model.SignalHold},
		{ss(z, 0), ss(l, 0.5), false, model.SignalBuy},
		{ss(z, 0), ss(s, -0.5), false, model.SignalNakedSell},
		{ss(l, 0.5), ss(z, 0), false, model.SignalSell},
		{ss(l, 0.5), ss(z, 0), true, model.SignalLongStopped},
		{ss(l, 0.5), ss(l, 0.7), false, model.SignalBuy},
		{ss(l, 0.5), ss(l, 0.4), false, model.SignalHold},
		{ss(l, 0.5), ss(l, 0.5), false, model.SignalHold},
		{ss(l, 0.5), ss(s, -0.5), false, model.SignalDoubleNakedSell},
		{ss(s, -0.5), ss(z, 0), false, model.SignalBuy},
		{ss(s, -0.5), ss(z, 0), true, model.SignalShortStopped},
		{ss(s, -0.5), ss(l, 0.5), false, model.SignalDoubleBuy},
		{ss(s, -0.5), ss(s, -0.8), false, model.SignalSell},
		{ss(s, -0.5), ss(s, -0.3), false, model.SignalHold},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, g.Signal(tt.from, tt.to, tt.byStop), "%s -> %s stop=%t", tt.from.Side, tt.to.Side, tt.byStop)
	}
}

func TestSignal_NakedSellsDisabled(t *testing.T) {
	g := Generator{}
	assert.Equal(t, model.SignalHold, g.Signal(ss(model.SideZeroed, 0), ss(model.SideShort, -0.5), false))
	assert.Equal(t, model.SignalSell, g.Signal(ss(model.SideLong, 0.5), ss(model.SideShort, -0.5), false))
	assert.Equal(t, model.SideZeroed, g.Target(model.SideShort))
}

func TestSideFor(t *testing.T) {
	setup := model.TradingSetup{ScoreLong: 0.3, ScoreShort: -0.3}
	assert.Equal(t, model.SideLong, SideFor(0.3, setup))
	assert.Equal(t, model.SideZeroed, SideFor(0.29, setup))
	assert.Equal(t, model.SideZeroed, SideFor(0, setup))
	assert.Equal(t, model.SideShort, SideFor(-0.3, setup))
}

func TestSideTransitionSequence(t *testing.T) {
	setup := model.TradingSetup{ScoreLong: 0.3, ScoreShort: -0.3}
	run := func(g Generator) ([]model.Side, []model.Signal) {
		from := ss(model.SideZeroed, 0)
		var sides []model.Side
		var signals []model.Signal
		for _, score := range []float64{0.1, 0.5, -0.5, 0.0} {
			to := ss(SideFor(score, setup), score)
			sides = append(sides, to.Side)
			signals = append(signals, g.Signal(from, to, false))
			from = ss(g.Target(to.Side), score)
		}
		return sides, signals
	}

	sides, signals := run(Generator{AllowNakedSells: true})
	assert.Equal(t, []model.Side{model.SideZeroed, model.SideLong, model.SideShort, model.SideZeroed}, sides)
	assert.Equal(t, []model.Signal{model.SignalHold, model.SignalBuy, model.SignalDoubleNakedSell, model.SignalBuy}, signals)

	_, signals = run(Generator{})
	assert.Equal(t, []model.Signal{model.SignalHold, model.SignalBuy, model.SignalSell, model.SignalHold}, signals)
}

func TestTrailingStop_Long(t *testing.T) {
	stop, err := NewStopLoss(model.StoplossSetup{IsOn: true, Name: TrailingName, Percent: 5})
	require.NoError(t, err)

	pos := model.Position{Side: model.SideLong, EnterPrice: 100}
	pos, fired := stop.Check(pos, 110)
	assert.False(t, fired)
	assert.Equal(t, 110.0, pos.ExitReferencePrice)

	pos, fired = stop.Check(pos, 105)
	assert.False(t, fired)
	assert.Equal(t, 110.0, pos.ExitReferencePrice)

	_, fired = stop.Check(pos, 104)
	assert.True(t, fired)
}

func TestTrailingStop_Short(t *testing.T) {
	stop, err := NewStopLoss(model.StoplossSetup{IsOn: true, Name: TrailingName, Percent: 10})
	require.NoError(t, err)

	pos := model.Position{Side: model.SideShort, EnterPrice: 100}
	pos, fired := stop.Check(pos, 90)
	assert.False(t, fired)
	assert.Equal(t, 90.0, pos.ExitReferencePrice)

	_, fired = stop.Check(pos, 99.5)
	assert.True(t, fired)
}

func TestTrailingStop_ZeroedNeverFires(t *testing.T) {
	stop, err := NewStopLoss(model.StoplossSetup{IsOn: true, Name: TrailingName, Percent: 1})
	require.NoError(t, err)
	_, fired := stop.Check(model.ZeroedPosition(), 1)
	assert.False(t, fired)
}

func TestNewStopLoss_Invalid(t *testing.T) {
	_, err := NewStopLoss(model.StoplossSetup{IsOn: true, Name: "stop_trailing_3t", Percent: 1})
	assert.ErrorIs(t, err, model.ErrValue)
	_, err = NewStopLoss(model.StoplossSetup{IsOn: true, Name: TrailingName})
	assert.ErrorIs(t, err, model.ErrValue)
}

func TestStopOrder(t *testing.T) {
	m := &model.Monitor{Ticker: model.Ticker{Symbol: "BTCUSDT"}, Position: model.Position{Side: model.SideLong, ByScore: 0.6}}
	o := StopOrder(m, model.TradingSetup{Leverage: 1}, 123)
	assert.True(t, o.ByStop)
	assert.Equal(t, model.SideZeroed, o.To.Side)
	assert.Equal(t, ss(model.SideLong, 0.6), o.From)
	assert.Equal(t, model.SignalLongStopped, Generator{}.Signal(o.From, o.To, o.ByStop))
}
