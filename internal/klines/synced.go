package klines

import (
	"context"
	"errors"
	"fmt"
	"log"

	"didibot/internal/clock"
	"didibot/internal/model"
)

// SyncedGetter serves bars from storage after backfilling the stored grain
// from the broker for whatever part of the selection is missing.
type SyncedGetter struct {
	remote  *BrokerGetter
	storage *StorageGetter
	table   Table
	tf      string
	tfs     int64
	step    int64
	clock   clock.Clock
}

// NewSyncedGetter wires a broker getter on the table's grain to a storage
// getter on tf. opts apply to the broker side.
func NewSyncedGetter(b model.BrokerQuery, ticker model.Ticker, table Table, tf string, opts BrokerOptions) (*SyncedGetter, error) {
	storage, err := NewStorageGetter(table, tf, opts.ReturnAsHumanReadable)
	if err != nil {
		return nil, err
	}
	finest := opts
	finest.ReturnAsHumanReadable = false
	remote, err := NewBrokerGetter(b, ticker, table.FinestTimeFrame(), finest)
	if err != nil {
		return nil, err
	}
	remote.WithStore(table)
	return &SyncedGetter{
		remote:  remote,
		storage: storage,
		table:   table,
		tf:      tf,
		tfs:     storage.tfs,
		step:    storage.step,
		clock:   clock.System{},
	}, nil
}

// Remote exposes the broker side for option tweaks such as a sleeper.
func (g *SyncedGetter) Remote() *BrokerGetter { return g.remote }

// WithClock sets the clock on both sides.
func (g *SyncedGetter) WithClock(c clock.Clock) *SyncedGetter {
	g.clock = c
	g.remote.WithClock(c)
	g.storage.WithClock(c)
	return g
}

func (g *SyncedGetter) TimeFrame() string { return g.tf }

// OldestOpenTime is the first full bucket the broker can provide.
func (g *SyncedGetter) OldestOpenTime(ctx context.Context) (int64, error) {
	ts, err := g.remote.OldestOpenTime(ctx)
	if err != nil {
		return 0, err
	}
	return clock.Align(ts+g.tfs-1, g.tfs), nil
}

// NewestOpenTime is the last closed bucket.
func (g *SyncedGetter) NewestOpenTime(context.Context) (int64, error) {
	return clock.LastClosedOpenTime(g.tfs, g.clock.Now()), nil
}

// Get backfills the selection's window and then reads it from storage.
func (g *SyncedGetter) Get(ctx context.Context, sel model.Selection) ([]model.Kline, error) {
	oldest, err := g.OldestOpenTime(ctx)
	if err != nil {
		return nil, err
	}
	newest, _ := g.NewestOpenTime(ctx)
	since, until := Sanitize(sel, g.tfs, oldest, newest)
	if since > until {
		return nil, nil
	}
	if err := g.Sync(ctx, since, until+g.tfs-g.step); err != nil {
		return nil, err
	}
	return g.storage.Get(ctx, model.Selection{Since: since, Until: until})
}

// Sync makes sure the stored grain covers [since, until], fetching only the
// edges missing from the table.
func (g *SyncedGetter) Sync(ctx context.Context, since, until int64) error {
	stOldest, okOld, err := g.table.OldestOpenTime(ctx)
	if err != nil {
		return err
	}
	stNewest, _, err := g.table.NewestOpenTime(ctx)
	if err != nil {
		return err
	}

	if !okOld {
		return g.backfill(ctx, since, until)
	}
	if since < stOldest {
		if err := g.backfill(ctx, since, stOldest-g.step); err != nil {
			return err
		}
	}
	if until > stNewest {
		if err := g.backfill(ctx, stNewest+g.step, until); err != nil {
			return err
		}
	}
	return nil
}

func (g *SyncedGetter) backfill(ctx context.Context, since, until int64) error {
	if since > until {
		return nil
	}
	ks, err := g.remote.Range(ctx, since, until)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("backfill %s [%d,%d]: %w", g.remote.tf, since, until, err)
	}
	log.Printf("[getter] backfilled %d %s bars in [%s, %s]", len(ks), g.remote.tf,
		clock.FormatTimestamp(since), clock.FormatTimestamp(until))
	return nil
}
