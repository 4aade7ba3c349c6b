// Package backtesting replays stored klines as a broker and simulates order
// execution against the Operation wallet.
package backtesting

import (
	"context"
	"fmt"
	"sync"

	"didibot/internal/broker"
	"didibot/internal/clock"
	"didibot/internal/indicator"
	"didibot/internal/marketdata/tfbuilder"
	"didibot/internal/model"
)

// MinNotional is the fixed floor of simulated lots, in base units.
const MinNotional = 10.3

// priceWindow bounds the stored bars read around an interpolated price.
const priceWindow = int64(3600)

// Table is the stored finest series of one ticker.
type Table interface {
	OldestOpenTime(ctx context.Context) (int64, bool, error)
	NewestOpenTime(ctx context.Context) (int64, bool, error)
	Raw(ctx context.Context, since, until int64) ([]model.Kline, error)
	GetByTimeRange(ctx context.Context, since, until int64, tf string, now int64) ([]model.Kline, error)
}

// Opener returns the stored table of a ticker.
type Opener func(ctx context.Context, ticker model.Ticker) (Table, error)

// Stored answers broker queries from the klines store as seen at the
// virtual clock's now.
type Stored struct {
	name   string
	metric string
	clock  clock.Clock
	open   Opener
	mu     sync.Mutex
	tables map[string]Table
}

// NewStored replays the klines stored for the named broker. metric selects
// the price used by GetPrice.
func NewStored(name, metric string, c clock.Clock, open Opener) (*Stored, error) {
	if !indicator.ValidMetric(metric) {
		return nil, fmt.Errorf("%w: unknown price metric %q", model.ErrValue, metric)
	}
	return &Stored{name: name, metric: metric, clock: c, open: open, tables: map[string]Table{}}, nil
}

func (s *Stored) Name() string         { return s.name }
func (s *Stored) TimeFrames() []string { return broker.TimeFrames }

func (s *Stored) ServerTime(context.Context) (int64, error) { return s.clock.Now(), nil }

// MaxRequestsLimitHit is always false; the store has no request weight.
func (s *Stored) MaxRequestsLimitHit(context.Context) (bool, error) { return false, nil }

func (s *Stored) table(ctx context.Context, t model.Ticker) (Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tbl, ok := s.tables[t.Symbol]; ok {
		return tbl, nil
	}
	tbl, err := s.open(ctx, t)
	if err != nil {
		return nil, err
	}
	s.tables[t.Symbol] = tbl
	return tbl, nil
}

// GetKlines aggregates the stored bars of [req.Since, req.Until] into tf.
// Bars not closed at the virtual now are left out.
func (s *Stored) GetKlines(ctx context.Context, t model.Ticker, tf string, req model.KlinesRequest) ([]model.Kline, error) {
	tbl, err := s.table(ctx, t)
	if err != nil {
		return nil, err
	}
	until := req.Until
	if until == 0 {
		until = s.clock.Now()
	}
	ks, err := tbl.GetByTimeRange(ctx, req.Since, until, tf, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(ks) > req.Limit {
		ks = ks[:req.Limit]
	}
	return ks, nil
}

// OldestKline is the first full tf bar of the stored series.
func (s *Stored) OldestKline(ctx context.Context, t model.Ticker, tf string) (model.Kline, error) {
	tfs, err := clock.SecondsIn(tf)
	if err != nil {
		return model.Kline{}, fmt.Errorf("%w: %v", model.ErrValue, err)
	}
	tbl, err := s.table(ctx, t)
	if err != nil {
		return model.Kline{}, err
	}
	oldest, ok, err := tbl.OldestOpenTime(ctx)
	if err != nil {
		return model.Kline{}, err
	}
	if !ok {
		return model.Kline{}, fmt.Errorf("%w: no klines stored for %s", model.ErrNotFound, t.Symbol)
	}
	first := clock.Align(oldest+tfs-1, tfs)
	ks, err := tbl.GetByTimeRange(ctx, first, first, tf, s.clock.Now())
	if err != nil {
		return model.Kline{}, err
	}
	if len(ks) == 0 {
		return model.Kline{}, fmt.Errorf("%w: no closed %s kline stored for %s", model.ErrNotFound, tf, t.Symbol)
	}
	return ks[0], nil
}

// GetPrice interpolates the metric price of the stored bars at atTime,
// or at the virtual now when atTime is 0.
func (s *Stored) GetPrice(ctx context.Context, t model.Ticker, atTime int64) (float64, error) {
	if atTime == 0 {
		atTime = s.clock.Now()
	}
	tbl, err := s.table(ctx, t)
	if err != nil {
		return 0, err
	}
	ks, err := tbl.Raw(ctx, atTime-priceWindow, atTime+priceWindow)
	if err != nil {
		return 0, err
	}
	p, ok := tfbuilder.Interpolate(ks, atTime, func(k model.Kline) float64 {
		v, _ := indicator.Price(k, s.metric)
		return v
	})
	if !ok {
		return 0, fmt.Errorf("%w: no stored price for %s around %s", model.ErrNotFound, t.Symbol, clock.FormatTimestamp(atTime))
	}
	return p, nil
}

// GetPortfolio has no wallet of its own; Paper supplies it.
func (s *Stored) GetPortfolio(context.Context, model.Ticker) (model.Portfolio, error) {
	return model.Portfolio{}, nil
}

func (s *Stored) GetMinLotSize(ctx context.Context, t model.Ticker) (float64, error) {
	p, err := s.GetPrice(ctx, t, 0)
	if err != nil {
		return 0, err
	}
	return MinNotional / p, nil
}
