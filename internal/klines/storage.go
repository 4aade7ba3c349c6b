package klines

import (
	"context"
	"fmt"

	"didibot/internal/clock"
	"didibot/internal/model"
)

// Table is the storage side of a getter, implemented by the sqlite klines table.
type Table interface {
	Append(ctx context.Context, ks []model.Kline) error
	OldestOpenTime(ctx context.Context) (int64, bool, error)
	NewestOpenTime(ctx context.Context) (int64, bool, error)
	GetByTimeRange(ctx context.Context, since, until int64, tf string, now int64) ([]model.Kline, error)
	FinestTimeFrame() string
}

// StorageGetter reads aggregated bars out of a klines table.
type StorageGetter struct {
	table Table
	tf    string
	tfs   int64
	step  int64
	clock clock.Clock
	human bool
}

// NewStorageGetter returns a getter for tf over table; tf must be a multiple
// of the stored grain.
func NewStorageGetter(table Table, tf string, humanReadable bool) (*StorageGetter, error) {
	tfs, err := clock.SecondsIn(tf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValue, err)
	}
	step, err := clock.SecondsIn(table.FinestTimeFrame())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValue, err)
	}
	if tfs < step || tfs%step != 0 {
		return nil, fmt.Errorf("%w: time frame %s is not a multiple of the stored %s", model.ErrValue, tf, table.FinestTimeFrame())
	}
	return &StorageGetter{table: table, tf: tf, tfs: tfs, step: step, clock: clock.System{}, human: humanReadable}, nil
}

// WithClock replaces the wall clock; backtests pass their virtual clock.
func (g *StorageGetter) WithClock(c clock.Clock) *StorageGetter { g.clock = c; return g }

func (g *StorageGetter) TimeFrame() string { return g.tf }

// OldestOpenTime is the first bucket fully inside the stored data.
func (g *StorageGetter) OldestOpenTime(ctx context.Context) (int64, error) {
	ts, ok, err := g.table.OldestOpenTime(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: no klines stored", model.ErrNotFound)
	}
	return clock.Align(ts+g.tfs-1, g.tfs), nil
}

// NewestOpenTime is the last closed bucket fully covered by the stored data.
func (g *StorageGetter) NewestOpenTime(ctx context.Context) (int64, error) {
	ts, ok, err := g.table.NewestOpenTime(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: no klines stored", model.ErrNotFound)
	}
	covered := clock.Align(ts+g.step-g.tfs, g.tfs)
	if closed := clock.LastClosedOpenTime(g.tfs, g.clock.Now()); closed < covered {
		return closed, nil
	}
	return covered, nil
}

// Get returns the selected bars, ascending and without the unclosed last bar.
func (g *StorageGetter) Get(ctx context.Context, sel model.Selection) ([]model.Kline, error) {
	oldest, err := g.OldestOpenTime(ctx)
	if err != nil {
		return nil, err
	}
	newest, err := g.NewestOpenTime(ctx)
	if err != nil {
		return nil, err
	}
	since, until := Sanitize(sel, g.tfs, oldest, newest)
	if since > until {
		return nil, nil
	}
	ks, err := g.table.GetByTimeRange(ctx, since, until, g.tf, g.clock.Now())
	if err != nil {
		return nil, err
	}
	if g.human {
		ks = model.Humanize(ks)
	}
	return ks, nil
}
