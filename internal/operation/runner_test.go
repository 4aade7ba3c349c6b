package operation

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"didibot/internal/clock"
	"didibot/internal/model"
	redisstore "didibot/internal/store/redis"
	"didibot/internal/store/sqlite"
)

const base = int64(1_700_002_800) // aligned to the hour

var (
	btc = model.Ticker{Symbol: "BTCUSDT", Base: "USDT", Quote: "BTC"}
	eth = model.Ticker{Symbol: "ETHUSDT", Base: "USDT", Quote: "ETH"}
)

type fakeNotifier struct {
	mu      sync.Mutex
	debug   []string
	errors  []string
	trades  []string
	flushes int
}

func (n *fakeNotifier) Debug(_ context.Context, m string) {
	n.mu.Lock()
	n.debug = append(n.debug, m)
	n.mu.Unlock()
}
func (n *fakeNotifier) Error(_ context.Context, m string) {
	n.mu.Lock()
	n.errors = append(n.errors, m)
	n.mu.Unlock()
}
func (n *fakeNotifier) Trade(_ context.Context, m string) {
	n.mu.Lock()
	n.trades = append(n.trades, m)
	n.mu.Unlock()
}
func (n *fakeNotifier) Flush(context.Context) { n.flushes++ }

type memState struct {
	running []bool
	wallets int
	logs    map[string][]model.Order
}

func (s *memState) SaveMonitor(context.Context, *model.Monitor) error { return nil }
func (s *memState) AppendTradingLog(_ context.Context, id string, o model.Order) error {
	if s.logs == nil {
		s.logs = map[string][]model.Order{}
	}
	s.logs[id] = append(s.logs[id], o)
	return nil
}
func (s *memState) SaveWallet(context.Context, string, map[string]float64) error {
	s.wallets++
	return nil
}
func (s *memState) SetRunning(_ context.Context, _ string, running bool) error {
	s.running = append(s.running, running)
	return nil
}

// openKlines stores 48h of 1m bars for btc and eth: a sine wave when fill
// is set, nothing otherwise.
func openKlines(t *testing.T, fill bool) *sqlite.Store {
	t.Helper()
	if !fill {
		return openKlinesWith(t, nil)
	}
	return openKlinesWith(t, func(i, j int) model.Kline {
		p := 100 + 10*math.Sin(float64(i)/120+float64(j))
		return model.Kline{Open: p, High: p + 0.5, Low: p - 0.5, Close: p + 0.1, Volume: 1}
	})
}

// openKlinesWith builds bar i of ticker j with bar; a nil bar leaves the tables empty.
func openKlinesWith(t *testing.T, bar func(i, j int) model.Kline) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(sqlite.Config{DBPath: filepath.Join(t.TempDir(), "klines.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	if bar == nil {
		return s
	}
	ctx := context.Background()
	for j, tk := range []model.Ticker{btc, eth} {
		tbl, err := s.Table(ctx, "binance", tk, "1m")
		require.NoError(t, err)
		var ks []model.Kline
		for i := 0; i < 48*60; i++ {
			k := bar(i, j)
			k.OpenTime = base + int64(i)*60
			ks = append(ks, k)
		}
		require.NoError(t, tbl.Append(ctx, ks))
	}
	return s
}

func backtestOperation() *model.Operation {
	op := &model.Operation{
		ID:     "op-1",
		Name:   "alpha",
		Mode:   model.ModeBacktesting,
		Broker: "binance",
		Wallet: map[string]float64{"USDT": 1000},
		Setup: model.OperationalSetup{
			Classifier: model.ClassifierSetup{
				Name:      "didi_classifier",
				TimeFrame: "1h",
				Setup: model.ClassifierParams{
					DidiIndex:                  model.DidiParams{NumberSamples: []int{3, 5, 8}, PriceMetrics: "c"},
					BollingerBands:             model.BollingerParams{NumberSamples: 5, NumberSTDs: 2, PriceMetrics: "c"},
					WeightIfOnlyUpperBBOpened:  0.5,
					WeightIfOnlyBottomBBOpened: 0.5,
					ResultLength:               1,
				},
			},
			Stoploss: model.StoplossSetup{IsOn: true, Name: "stop_trailing", Percent: 5},
			Trading: model.TradingSetup{
				ScoreLong: 0.2, ScoreShort: -0.2, Leverage: 1, DefaultOrderType: model.OrderMarket,
			},
			Backtesting: model.BacktestingSetup{
				PriceMetrics:   "o",
				FeeRateDecimal: 0.001,
				Since:          clock.FormatTimestamp(base + 30*3600),
				Until:          clock.FormatTimestamp(base + 40*3600),
			},
		},
	}
	for i, tk := range []model.Ticker{btc, eth} {
		op.Monitors = append(op.Monitors, &model.Monitor{
			ID: tk.Symbol, OperationID: op.ID, Ticker: tk, IsMaster: i == 0, IsActive: true, Position: model.ZeroedPosition(),
		})
	}
	return op
}

func TestBacktestRunsToTheEnd(t *testing.T) {
	op := backtestOperation()
	n := &fakeNotifier{}
	st := &memState{}
	r, err := Build(context.Background(), op, Deps{Klines: openKlines(t, true), Notifier: n, State: st})
	require.NoError(t, err)

	var reports []TickReport
	r.WithObserver(func(rep TickReport) { reports = append(reports, rep) })
	require.NoError(t, r.Run(context.Background()))

	require.Len(t, reports, 11)
	assert.Equal(t, base+30*3600, reports[0].Now)
	assert.Equal(t, base+40*3600, reports[10].Now)
	assert.Len(t, reports[0].Results, 2)
	for _, rep := range reports {
		assert.NotEmpty(t, rep.Results)
		assert.NotNil(t, rep.Wallet)
		for _, o := range rep.Executed {
			assert.True(t, o.Fulfilled || len(o.Warnings) > 0, "order %s", o)
		}
	}
	for _, e := range n.errors {
		assert.NotContains(t, e, "tick at")
	}
	assert.Equal(t, 11, n.flushes)
	assert.Equal(t, []bool{true, false}, st.running)
	assert.False(t, op.IsRunning)
	assert.GreaterOrEqual(t, op.Wallet["USDT"], 0.0)
}

func TestBacktestHoldsKeepTheWallet(t *testing.T) {
	op := backtestOperation()
	op.Wallet = map[string]float64{"USDT": 1000, "BTC": 0.25}
	flat := func(int, int) model.Kline {
		return model.Kline{Open: 128, High: 128, Low: 128, Close: 128, Volume: 1}
	}
	n := &fakeNotifier{}
	r, err := Build(context.Background(), op, Deps{Klines: openKlinesWith(t, flat), Notifier: n})
	require.NoError(t, err)

	var reports []TickReport
	r.WithObserver(func(rep TickReport) { reports = append(reports, rep) })
	require.NoError(t, r.Run(context.Background()))

	require.Len(t, reports, 11)
	for _, rep := range reports {
		for sym, res := range rep.Results {
			assert.Zero(t, res.Score, "%s at %d", sym, rep.Now)
		}
		assert.Empty(t, rep.Executed)
		assert.Equal(t, map[string]float64{"USDT": 1000, "BTC": 0.25}, rep.Wallet)
	}
	assert.Equal(t, map[string]float64{"USDT": 1000, "BTC": 0.25}, op.Wallet)
	assert.Empty(t, n.trades)
	assert.Empty(t, n.errors)
}

func TestBacktestWritesSeries(t *testing.T) {
	op := backtestOperation()
	series := redisstore.NewMemory(0)
	r, err := Build(context.Background(), op, Deps{Klines: openKlines(t, true), Notifier: &fakeNotifier{}, Series: series})
	require.NoError(t, err)

	executed := map[string]int{}
	r.WithObserver(func(rep TickReport) {
		for _, o := range rep.Executed {
			executed[o.Ticker.Symbol]++
		}
	})
	require.NoError(t, r.Run(context.Background()))

	ctx := context.Background()
	for _, tk := range []model.Ticker{btc, eth} {
		results, err := series.Results(ctx, op.Name, tk.Symbol, 100)
		require.NoError(t, err)
		require.Len(t, results, 11, tk.Symbol)
		assert.Equal(t, base+29*3600, results[0].OpenTime)
		assert.Equal(t, base+39*3600, results[10].OpenTime)

		orders, err := series.Orders(ctx, op.Name, tk.Symbol, 100)
		require.NoError(t, err)
		assert.Len(t, orders, executed[tk.Symbol], tk.Symbol)
	}
}

func TestBacktestReportsTickErrors(t *testing.T) {
	op := backtestOperation()
	n := &fakeNotifier{}
	r, err := Build(context.Background(), op, Deps{Klines: openKlines(t, false), Notifier: n})
	require.NoError(t, err)

	calls := 0
	r.WithObserver(func(TickReport) { calls++ })
	require.NoError(t, r.Run(context.Background()))

	assert.Zero(t, calls)
	// one failed tick every cooldown across the ten hour window
	assert.Len(t, n.errors, 10*3600/300+1)
}

func TestRealModeNeedsExchange(t *testing.T) {
	op := backtestOperation()
	op.Mode = model.ModeReal
	_, err := Build(context.Background(), op, Deps{Klines: openKlines(t, false), Notifier: &fakeNotifier{}})
	assert.ErrorIs(t, err, model.ErrValue)
}

func TestRunStopsOnCancel(t *testing.T) {
	r, err := Build(context.Background(), backtestOperation(), Deps{Klines: openKlines(t, true), Notifier: &fakeNotifier{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, RunAll(ctx, r), context.Canceled)
}
