package klines

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"didibot/internal/clock"
	"didibot/internal/logger"
	"didibot/internal/metrics"
	"didibot/internal/model"
)

const (
	DefaultRecordsPerRequest = 1000
	DefaultRateLimitPause    = 10 * time.Second
	DefaultMaxAttempts       = 10
)

// Appender receives every fetched page, in open_time order.
type Appender interface {
	Append(ctx context.Context, ks []model.Kline) error
}

// BrokerOptions tunes a BrokerGetter. Zero values take the defaults.
type BrokerOptions struct {
	RecordsPerRequest int
	// InfiniteRetry keeps retrying failed pages; otherwise MaxAttempts bounds them.
	InfiniteRetry bool
	MaxAttempts   int
	MaxCooldown   time.Duration
	// RateLimitPause is slept whenever the broker reports its weight limit reached.
	RateLimitPause        time.Duration
	ReturnAsHumanReadable bool
}

// BrokerGetter pages klines out of a broker, waiting out rate limits and
// retrying failures with the asymptotic cooldown. With a store attached it
// writes every page through before moving on.
type BrokerGetter struct {
	broker  model.BrokerQuery
	ticker  model.Ticker
	tf      string
	tfs     int64
	opts    BrokerOptions
	store   Appender
	clock   clock.Clock
	sleeper clock.Sleeper
	metrics *metrics.Metrics

	oldest int64
}

// NewBrokerGetter validates tf against the broker's time frames.
func NewBrokerGetter(b model.BrokerQuery, ticker model.Ticker, tf string, opts BrokerOptions) (*BrokerGetter, error) {
	tfs, err := clock.SecondsIn(tf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValue, err)
	}
	if !supports(b, tf) {
		return nil, fmt.Errorf("%w: broker %s does not support time frame %s", model.ErrValue, b.Name(), tf)
	}
	if opts.RecordsPerRequest <= 0 {
		opts.RecordsPerRequest = DefaultRecordsPerRequest
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.MaxCooldown <= 0 {
		opts.MaxCooldown = clock.DefaultMaxCooldown
	}
	if opts.RateLimitPause <= 0 {
		opts.RateLimitPause = DefaultRateLimitPause
	}
	return &BrokerGetter{
		broker:  b,
		ticker:  ticker,
		tf:      tf,
		tfs:     tfs,
		opts:    opts,
		clock:   clock.System{},
		sleeper: clock.RealSleeper{},
	}, nil
}

func supports(b model.BrokerQuery, tf string) bool {
	for _, t := range b.TimeFrames() {
		if t == tf {
			return true
		}
	}
	return false
}

// WithStore writes every fetched page to s.
func (g *BrokerGetter) WithStore(s Appender) *BrokerGetter { g.store = s; return g }

// WithClock replaces the wall clock.
func (g *BrokerGetter) WithClock(c clock.Clock) *BrokerGetter { g.clock = c; return g }

// WithSleeper replaces the real sleeper, mostly for tests.
func (g *BrokerGetter) WithSleeper(s clock.Sleeper) *BrokerGetter { g.sleeper = s; return g }

// WithMetrics records requests and retries.
func (g *BrokerGetter) WithMetrics(m *metrics.Metrics) *BrokerGetter { g.metrics = m; return g }

func (g *BrokerGetter) TimeFrame() string { return g.tf }

// OldestOpenTime asks the broker once for its first bar and caches it.
func (g *BrokerGetter) OldestOpenTime(ctx context.Context) (int64, error) {
	if g.oldest != 0 {
		return g.oldest, nil
	}
	k, err := g.broker.OldestKline(ctx, g.ticker, g.tf)
	g.metrics.BrokerRequest(g.broker.Name(), "oldest_kline", err)
	if err != nil {
		return 0, err
	}
	g.oldest = k.OpenTime
	return g.oldest, nil
}

// NewestOpenTime is the open time of the last closed bar.
func (g *BrokerGetter) NewestOpenTime(context.Context) (int64, error) {
	return clock.LastClosedOpenTime(g.tfs, g.clock.Now()), nil
}

// Get fetches the selected bars, ascending and without the unclosed last bar.
func (g *BrokerGetter) Get(ctx context.Context, sel model.Selection) ([]model.Kline, error) {
	oldest, err := g.OldestOpenTime(ctx)
	if err != nil {
		return nil, err
	}
	newest, _ := g.NewestOpenTime(ctx)
	since, until := Sanitize(sel, g.tfs, oldest, newest)
	return g.Range(ctx, since, until)
}

// Range fetches the bars with open_time in [since, until] page by page.
func (g *BrokerGetter) Range(ctx context.Context, since, until int64) ([]model.Kline, error) {
	if since > until {
		return nil, nil
	}
	step := int64(g.opts.RecordsPerRequest) * g.tfs
	var out []model.Kline
	last := int64(-1)
	for start := since; start <= until; start += step {
		end := start + step - g.tfs
		if end > until {
			end = until
		}
		page, err := g.fetch(ctx, start, end)
		if err != nil {
			return nil, err
		}
		page = ordered(page, start, end, last)
		if len(page) == 0 {
			continue
		}
		last = page[len(page)-1].OpenTime
		for i := range page {
			page[i] = page[i].WithCloseTime(g.tfs)
		}
		if g.store != nil {
			if err := g.store.Append(ctx, page); err != nil {
				return nil, err
			}
			g.metrics.Appended(len(page))
		}
		out = append(out, page...)
	}

	out = model.DropUnclosed(out, g.tfs, g.clock.Now())
	if g.opts.ReturnAsHumanReadable {
		out = model.Humanize(out)
	}
	return out, nil
}

// ordered keeps the bars inside [start, end] that are newer than last.
func ordered(page []model.Kline, start, end, last int64) []model.Kline {
	out := page[:0:0]
	for _, k := range page {
		if k.OpenTime < start || k.OpenTime > end || k.OpenTime <= last {
			continue
		}
		out = append(out, k)
		last = k.OpenTime
	}
	return out
}

// fetch asks one page, pausing on rate limits and retrying on failures.
func (g *BrokerGetter) fetch(ctx context.Context, start, end int64) ([]model.Kline, error) {
	attempt := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hit, err := g.broker.MaxRequestsLimitHit(ctx)
		if err != nil {
			log.Printf("[getter] %s rate limit probe failed: %v", g.ticker.Symbol, err)
		}
		if hit {
			g.metrics.RateLimitHit()
			log.Printf("[getter] %s request weight limit reached, pausing %s", g.ticker.Symbol, g.opts.RateLimitPause)
			if err := g.sleeper.Sleep(ctx, g.opts.RateLimitPause); err != nil {
				return nil, err
			}
			continue
		}

		ks, err := g.broker.GetKlines(ctx, g.ticker, g.tf, model.KlinesRequest{
			Since: start,
			Until: end,
			Limit: g.opts.RecordsPerRequest,
		})
		g.metrics.BrokerRequest(g.broker.Name(), "klines", err)
		if err == nil {
			return ks, nil
		}
		if !g.opts.InfiniteRetry && attempt >= g.opts.MaxAttempts {
			return nil, fmt.Errorf("klines %s %s [%d,%d] after %d attempts: %w", g.ticker.Symbol, g.tf, start, end, attempt, err)
		}

		wait := clock.CooldownTime(attempt, g.opts.MaxCooldown)
		g.metrics.GetterRetry(g.ticker.Symbol)
		slog.Warn("[getter] klines request failed, cooling down",
			append([]any{"symbol", g.ticker.Symbol, "attempt", attempt, "cooldown", wait.String(), "error", err}, logger.Attrs(ctx)...)...)
		if err := g.sleeper.Sleep(ctx, wait); err != nil {
			return nil, err
		}
		attempt++
	}
}
