package operation

import (
	"context"
	"fmt"

	"didibot/internal/analyzer"
	"didibot/internal/broker"
	"didibot/internal/broker/backtesting"
	"didibot/internal/classifier"
	"didibot/internal/clock"
	"didibot/internal/execution"
	"didibot/internal/klines"
	"didibot/internal/metrics"
	"didibot/internal/model"
	"didibot/internal/store/sqlite"
	"didibot/internal/strategy"
)

// Deps are the shared collaborators a Runner is built from.
type Deps struct {
	// Exchange serves market data in real and test modes and executes real orders.
	Exchange model.Broker
	Klines   *sqlite.Store
	Notifier Notifier

	State   State              // optional
	Series  model.SeriesWriter // optional
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
	Getter  klines.BrokerOptions
	Sleeper clock.Sleeper
}

// finestTF is the grain the klines store keeps.
var finestTF = broker.TimeFrames[0]

// Build wires the analyzers and the coordinator of op for its mode. Any
// error here is a setup error and the Operation must not run.
func Build(ctx context.Context, op *model.Operation, d Deps) (*Runner, error) {
	if d.Notifier == nil || d.Klines == nil {
		return nil, fmt.Errorf("%w: operation %s needs a notifier and a klines store", model.ErrValue, op.Name)
	}
	if op.Master() == nil {
		return nil, fmt.Errorf("%w: operation %s has no master monitor", model.ErrValue, op.Name)
	}
	tfs, err := clock.SecondsIn(op.Setup.Classifier.TimeFrame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValue, err)
	}

	r := &Runner{
		op:       op,
		notifier: d.Notifier,
		state:    d.State,
		metrics:  d.Metrics,
		health:   d.Health,
		clock:    clock.System{},
		sleeper:  d.Sleeper,
		tfs:      tfs,
	}
	if r.sleeper == nil {
		r.sleeper = clock.RealSleeper{}
	}

	var (
		market   model.BrokerQuery
		exec     model.Broker
		priceAt  bool
		getterOf func(m *model.Monitor) (model.KlinesGetter, error)
	)

	switch op.Mode {
	case model.ModeBacktesting:
		since, err := clock.ParseTimestamp(op.Setup.Backtesting.Since)
		if err != nil {
			return nil, err
		}
		until, err := clock.ParseTimestamp(op.Setup.Backtesting.Until)
		if err != nil {
			return nil, err
		}
		v := clock.NewVirtual(clock.Align(since, tfs))
		r.clock, r.virtual, r.until = v, v, until

		stored, err := backtesting.NewStored(op.Broker, op.Setup.Backtesting.PriceMetrics, v,
			func(ctx context.Context, t model.Ticker) (backtesting.Table, error) {
				return d.Klines.Table(ctx, op.Broker, t, finestTF)
			})
		if err != nil {
			return nil, err
		}
		market, priceAt = stored, true
		getterOf = func(m *model.Monitor) (model.KlinesGetter, error) {
			table, err := d.Klines.Table(ctx, op.Broker, m.Ticker, finestTF)
			if err != nil {
				return nil, err
			}
			g, err := klines.NewStorageGetter(table, op.Setup.Classifier.TimeFrame, false)
			if err != nil {
				return nil, err
			}
			return g.WithClock(v), nil
		}

	case model.ModeReal, model.ModeTest:
		if d.Exchange == nil {
			return nil, fmt.Errorf("%w: %s mode needs an exchange", model.ErrValue, op.Mode)
		}
		market = d.Exchange
		getterOf = func(m *model.Monitor) (model.KlinesGetter, error) {
			table, err := d.Klines.Table(ctx, op.Broker, m.Ticker, finestTF)
			if err != nil {
				return nil, err
			}
			g, err := klines.NewSyncedGetter(d.Exchange, m.Ticker, table, op.Setup.Classifier.TimeFrame, d.Getter)
			if err != nil {
				return nil, err
			}
			g.Remote().WithMetrics(d.Metrics).WithSleeper(r.sleeper)
			return g, nil
		}

	default:
		return nil, fmt.Errorf("%w: unknown mode %q", model.ErrValue, op.Mode)
	}

	if op.Mode == model.ModeReal {
		exec = d.Exchange
	} else {
		paper, err := backtesting.NewPaper(market, op.Wallet, op.Setup.Backtesting.FeeRateDecimal)
		if err != nil {
			return nil, err
		}
		exec, r.wallet = paper, paper
	}

	var stop strategy.StopLoss
	if op.Setup.Stoploss.IsOn {
		if stop, err = strategy.NewStopLoss(op.Setup.Stoploss); err != nil {
			return nil, err
		}
	}

	for _, m := range op.Monitors {
		cls, err := classifier.New(op.Setup.Classifier)
		if err != nil {
			return nil, err
		}
		getter, err := getterOf(m)
		if err != nil {
			return nil, fmt.Errorf("getter %s: %w", m.Ticker.Symbol, err)
		}
		a, err := analyzer.New(op, m, cls, getter)
		if err != nil {
			return nil, err
		}
		a.WithMetrics(d.Metrics)
		if d.Series != nil {
			a.WithSeries(d.Series)
		}
		if stop != nil {
			a.WithStop(stop, exec, priceAt)
		}
		r.analyzers = append(r.analyzers, a)
	}

	r.coord = execution.NewCoordinator(op, exec, execution.NewExecutor(exec, priceAt)).
		WithNotifier(d.Notifier).
		WithMetrics(d.Metrics)
	if d.State != nil {
		r.coord.WithJournal(d.State)
	}
	if d.Series != nil {
		r.coord.WithSeries(d.Series)
	}
	return r, nil
}
