package analyzer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"didibot/internal/model"
	"didibot/internal/store/redis"
	"didibot/internal/strategy"
)

const hour = int64(3600)

var btc = model.Ticker{Symbol: "BTCUSDT", Base: "USDT", Quote: "BTC"}

type fakeGetter struct {
	tf   string
	sels []model.Selection
}

func (g *fakeGetter) TimeFrame() string                             { return g.tf }
func (g *fakeGetter) OldestOpenTime(context.Context) (int64, error) { return 0, nil }
func (g *fakeGetter) NewestOpenTime(context.Context) (int64, error) { return 0, nil }
func (g *fakeGetter) Get(_ context.Context, sel model.Selection) ([]model.Kline, error) {
	g.sels = append(g.sels, sel)
	return make([]model.Kline, sel.NumberSamples), nil
}

// scripted returns the next score of its script on every call.
type scripted struct {
	scores []float64
	calls  int
}

func (c *scripted) Name() string      { return "scripted" }
func (c *scripted) TimeFrame() string { return "1h" }
func (c *scripted) MinimumRows() int  { return 5 }
func (c *scripted) Classify(ks []model.Kline) ([]model.AnalysisResult, error) {
	if len(ks) < c.MinimumRows() {
		return nil, model.ErrIndex
	}
	s := c.scores[c.calls%len(c.scores)]
	c.calls++
	return []model.AnalysisResult{{OpenTime: int64(c.calls) * hour, Score: s}}, nil
}

func newAnalyzer(t *testing.T, scores ...float64) (*Analyzer, *fakeGetter, *redis.Memory) {
	t.Helper()
	op := &model.Operation{
		Name: "op",
		Setup: model.OperationalSetup{Trading: model.TradingSetup{
			ScoreLong: 0.3, ScoreShort: -0.3, Leverage: 1, DefaultOrderType: "market",
		}},
	}
	m := &model.Monitor{Ticker: btc, IsActive: true, Position: model.ZeroedPosition()}
	g := &fakeGetter{tf: "1h"}
	mem := redis.NewMemory(100)
	a, err := New(op, m, &scripted{scores: scores}, g)
	require.NoError(t, err)
	return a.WithSeries(mem), g, mem
}

func TestNew_TimeFrameMismatch(t *testing.T) {
	_, err := New(&model.Operation{}, &model.Monitor{}, &scripted{}, &fakeGetter{tf: "5m"})
	assert.ErrorIs(t, err, model.ErrValue)
}

func TestTick_ProposesSideFromScore(t *testing.T) {
	a, g, mem := newAnalyzer(t, 0.1, 0.5, -0.5)
	ctx := context.Background()

	want := []model.Side{model.SideZeroed, model.SideLong, model.SideShort}
	for i, side := range want {
		now := int64(i+1) * hour
		o, err := a.Tick(ctx, now)
		require.NoError(t, err)
		require.NotNil(t, o)
		assert.True(t, a.Updated())
		assert.Equal(t, side, o.To.Side)
		assert.Equal(t, now, o.Timestamp)
		assert.Equal(t, model.OrderMarket, o.OrderType)
		assert.Equal(t, model.SideZeroed, o.From.Side)
		assert.Equal(t, now, a.Monitor().LastCheck.ByClassifierAt)
	}
	assert.Equal(t, model.Selection{Until: 2 * hour, NumberSamples: 5}, g.sels[2])

	results, err := mem.Results(ctx, "op", "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, -0.5, results[2].Score)
}

func TestTick_SkipsUntilTimeFramePassed(t *testing.T) {
	a, g, _ := newAnalyzer(t, 0.5)
	ctx := context.Background()

	_, err := a.Tick(ctx, 10*hour)
	require.NoError(t, err)

	o, err := a.Tick(ctx, 11*hour-1)
	require.NoError(t, err)
	assert.Nil(t, o)
	assert.False(t, a.Updated())
	assert.Len(t, g.sels, 1)

	o, err = a.Tick(ctx, 11*hour)
	require.NoError(t, err)
	assert.NotNil(t, o)
}

type fixedPrice float64

func (p fixedPrice) GetPrice(context.Context, model.Ticker, int64) (float64, error) {
	return float64(p), nil
}

func TestCheckStop(t *testing.T) {
	a, _, _ := newAnalyzer(t, 0.5)
	stop, err := strategy.NewStopLoss(model.StoplossSetup{IsOn: true, Name: strategy.TrailingName, Percent: 5})
	require.NoError(t, err)
	ctx := context.Background()

	a.WithStop(stop, fixedPrice(120), true)
	o, err := a.CheckStop(ctx, 1000)
	require.NoError(t, err)
	assert.Nil(t, o, "zeroed positions have no stop")

	a.Monitor().Position = model.Position{Side: model.SideLong, EnterPrice: 100, ByScore: 0.5}
	o, err = a.CheckStop(ctx, 1000)
	require.NoError(t, err)
	assert.Nil(t, o)
	assert.Equal(t, 120.0, a.Monitor().Position.ExitReferencePrice)

	a.WithStop(stop, fixedPrice(110), true)
	o, err = a.CheckStop(ctx, 1030)
	require.NoError(t, err)
	assert.Nil(t, o, "checks are spaced by a minute")

	o, err = a.CheckStop(ctx, 1060)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.True(t, o.ByStop)
	assert.Equal(t, model.SideZeroed, o.To.Side)
	assert.Equal(t, int64(1060), a.Monitor().LastCheck.ByStoplossAt)
}
