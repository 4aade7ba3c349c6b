// Package analyzer runs the per-ticker analysis of an Operation: decide
// whether a fresh analysis is due, classify the latest window and propose
// a side transition.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"

	"didibot/internal/clock"
	"didibot/internal/logger"
	"didibot/internal/metrics"
	"didibot/internal/model"
	"didibot/internal/strategy"
)

// Pricer quotes the price used by stop checks.
type Pricer interface {
	GetPrice(ctx context.Context, ticker model.Ticker, atTime int64) (float64, error)
}

// Analyzer holds one monitor and its classifier.
type Analyzer struct {
	operation string
	setup     model.OperationalSetup
	monitor   *model.Monitor
	cls       model.Classifier
	getter    model.KlinesGetter
	tfs       int64

	series  model.SeriesWriter
	metrics *metrics.Metrics

	stop    strategy.StopLoss
	pricer  Pricer
	priceAt bool

	updated bool
	last    model.AnalysisResult
}

// New pairs a monitor with its classifier; getter must serve the
// classifier's time frame.
func New(op *model.Operation, m *model.Monitor, cls model.Classifier, getter model.KlinesGetter) (*Analyzer, error) {
	if getter.TimeFrame() != cls.TimeFrame() {
		return nil, fmt.Errorf("%w: getter serves %s, classifier needs %s", model.ErrValue, getter.TimeFrame(), cls.TimeFrame())
	}
	tfs, err := clock.SecondsIn(cls.TimeFrame())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValue, err)
	}
	return &Analyzer{
		operation: op.Name,
		setup:     op.Setup,
		monitor:   m,
		cls:       cls,
		getter:    getter,
		tfs:       tfs,
	}, nil
}

// WithSeries persists every classifier result.
func (a *Analyzer) WithSeries(s model.SeriesWriter) *Analyzer { a.series = s; return a }

func (a *Analyzer) WithMetrics(m *metrics.Metrics) *Analyzer { a.metrics = m; return a }

// WithStop enables stop checks priced by p. With priceAtTimestamp the
// price is read at the tick time instead of now.
func (a *Analyzer) WithStop(s strategy.StopLoss, p Pricer, priceAtTimestamp bool) *Analyzer {
	a.stop, a.pricer, a.priceAt = s, p, priceAtTimestamp
	return a
}

func (a *Analyzer) Monitor() *model.Monitor { return a.monitor }

// Updated reports whether the last tick ran an analysis.
func (a *Analyzer) Updated() bool { return a.updated }

// Last is the most recent classifier result.
func (a *Analyzer) Last() model.AnalysisResult { return a.last }

// NeedsAnalysis is true once a full time frame passed since the last check.
func (a *Analyzer) NeedsAnalysis(now int64) bool {
	return now >= a.monitor.LastCheck.ByClassifierAt+a.tfs
}

// Tick analyzes the monitor if due and returns the proposed order, or nil.
func (a *Analyzer) Tick(ctx context.Context, now int64) (*model.Order, error) {
	a.updated = false
	if !a.NeedsAnalysis(now) {
		return nil, nil
	}
	ctx = logger.WithTicker(ctx, a.monitor.Ticker.Symbol)

	// the bar opened at now is still forming
	until := clock.LastClosedOpenTime(a.tfs, now)
	ks, err := a.getter.Get(ctx, model.Selection{Until: until, NumberSamples: a.cls.MinimumRows()})
	if err != nil {
		return nil, fmt.Errorf("klines %s: %w", a.monitor.Ticker.Symbol, err)
	}
	results, err := a.cls.Classify(ks)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", a.monitor.Ticker.Symbol, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: classifier %s returned no rows", model.ErrIndex, a.cls.Name())
	}
	r := results[len(results)-1]

	if a.series != nil {
		if err := a.series.WriteResult(ctx, a.operation, a.monitor.Ticker.Symbol, r); err != nil {
			slog.Warn("[analyzer] result series write failed", append([]any{"error", err}, logger.Attrs(ctx)...)...)
		}
	}
	a.metrics.Score(a.operation, a.monitor.Ticker.Symbol, r.Score)

	o := model.Order{
		Ticker:    a.monitor.Ticker,
		Timestamp: now,
		OrderType: model.OrderType(a.setup.Trading.DefaultOrderType),
		Leverage:  a.setup.Trading.Leverage,
		From:      model.SideScore{Side: a.monitor.Position.Side, Score: a.monitor.Position.ByScore},
		To:        model.SideScore{Side: strategy.SideFor(r.Score, a.setup.Trading), Score: r.Score},
	}
	a.monitor.LastCheck.ByClassifierAt = now
	a.updated = true
	a.last = r

	slog.Debug("[analyzer] analyzed", append([]any{
		"open_time", clock.FormatTimestamp(r.OpenTime), "score", r.Score, "to", o.To.Side,
	}, logger.Attrs(ctx)...)...)
	return &o, nil
}

// CheckStop ratchets the monitor's exit reference and returns a zeroing
// order when the stop fires. Checks are spaced by strategy.CheckEvery.
func (a *Analyzer) CheckStop(ctx context.Context, now int64) (*model.Order, error) {
	m := a.monitor
	if a.stop == nil || m.Position.Side == model.SideZeroed {
		return nil, nil
	}
	if now < m.LastCheck.ByStoplossAt+strategy.CheckEvery {
		return nil, nil
	}
	at := int64(0)
	if a.priceAt {
		at = now
	}
	price, err := a.pricer.GetPrice(ctx, m.Ticker, at)
	if err != nil {
		return nil, fmt.Errorf("stop price %s: %w", m.Ticker.Symbol, err)
	}
	pos, fired := a.stop.Check(m.Position, price)
	m.Position = pos
	m.LastCheck.ByStoplossAt = now
	if !fired {
		return nil, nil
	}
	slog.Info("[analyzer] stop fired", append([]any{
		"price", price, "reference", pos.ExitReferencePrice, "side", pos.Side,
	}, logger.Attrs(logger.WithTicker(ctx, m.Ticker.Symbol))...)...)
	o := strategy.StopOrder(m, a.setup.Trading, now)
	return &o, nil
}
