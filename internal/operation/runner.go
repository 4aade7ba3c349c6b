// Package operation schedules the ticks of Operations: stop checks and
// analyses for every monitor, then serialized order coordination.
package operation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"didibot/internal/analyzer"
	"didibot/internal/clock"
	"didibot/internal/execution"
	"didibot/internal/logger"
	"didibot/internal/metrics"
	"didibot/internal/model"
)

// ErrorCooldown is the pause after a failed tick, virtual in backtesting.
const ErrorCooldown = 5 * time.Minute

// Notifier is the notifier of one Operation. Flush closes a tick.
type Notifier interface {
	model.Notifier
	Flush(ctx context.Context)
}

// State persists Operation level changes.
type State interface {
	execution.Journal
	SaveWallet(ctx context.Context, operationID string, wallet map[string]float64) error
	SetRunning(ctx context.Context, operationID string, running bool) error
}

// Wallet exposes a simulated wallet.
type Wallet interface {
	Wallet() map[string]float64
}

// TickReport is what one tick observed and did.
type TickReport struct {
	Now      int64
	Results  map[string]model.AnalysisResult // updated monitors only
	Executed []model.Order
	Wallet   map[string]float64 // nil in real mode
}

// Runner drives one Operation.
type Runner struct {
	op        *model.Operation
	analyzers []*analyzer.Analyzer
	coord     *execution.Coordinator
	notifier  Notifier
	state     State
	wallet    Wallet
	metrics   *metrics.Metrics
	health    *metrics.HealthStatus
	observer  func(TickReport)

	clock   clock.Clock
	sleeper clock.Sleeper
	virtual *clock.Virtual // backtesting only
	until   int64
	tfs     int64
}

func (r *Runner) Operation() *model.Operation { return r.op }

// WithObserver calls fn after every successful tick.
func (r *Runner) WithObserver(fn func(TickReport)) *Runner { r.observer = fn; return r }

// Tick runs one iteration at the clock's now. Stop checks come first; a
// monitor whose stop fired is not analyzed this tick. Analyses run in
// parallel, coordination runs once over the gathered batch.
func (r *Runner) Tick(ctx context.Context) (TickReport, error) {
	now := r.clock.Now()
	rep := TickReport{Now: now, Results: map[string]model.AnalysisResult{}}

	proposals := make([]*model.Order, len(r.analyzers))
	for i, a := range r.analyzers {
		if !a.Monitor().IsActive {
			continue
		}
		o, err := a.CheckStop(ctx, now)
		if err != nil {
			return rep, err
		}
		proposals[i] = o
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range r.analyzers {
		if !a.Monitor().IsActive || proposals[i] != nil {
			continue
		}
		i, a := i, a
		g.Go(func() error {
			o, err := a.Tick(gctx, now)
			proposals[i] = o
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}

	var batch []model.Order
	var digest []string
	for i, a := range r.analyzers {
		if a.Updated() {
			rep.Results[a.Monitor().Ticker.Symbol] = a.Last()
			digest = append(digest, fmt.Sprintf("%s score=%.3f", a.Monitor().Ticker.Symbol, a.Last().Score))
		}
		if proposals[i] != nil {
			batch = append(batch, *proposals[i])
		}
	}

	executed, err := r.coord.Run(ctx, batch)
	rep.Executed = executed
	if err != nil {
		return rep, err
	}

	if len(digest) > 0 {
		r.notifier.Debug(ctx, fmt.Sprintf("%s analyzed: %s", clock.FormatTimestamp(now), strings.Join(digest, ", ")))
	}
	r.notifier.Flush(ctx)

	if r.wallet != nil {
		rep.Wallet = r.wallet.Wallet()
		r.op.Wallet = rep.Wallet
		r.metrics.WalletBalance(r.op.Name, rep.Wallet)
		if len(executed) > 0 && r.state != nil {
			if err := r.state.SaveWallet(ctx, r.op.ID, rep.Wallet); err != nil {
				log.Printf("[operation] %s save wallet: %v", r.op.Name, err)
			}
		}
	}
	return rep, nil
}

// Run ticks until ctx is done or, in backtesting, until the virtual clock
// passes the configured end. Tick errors are reported and followed by
// ErrorCooldown.
func (r *Runner) Run(ctx context.Context) error {
	ctx = logger.WithOperation(ctx, r.op.Name)
	r.setRunning(ctx, true)
	defer r.setRunning(context.WithoutCancel(ctx), false)

	slog.Info("[operation] started", append([]any{"mode", r.op.Mode, "monitors", len(r.op.Monitors)}, logger.Attrs(ctx)...)...)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.virtual != nil && r.clock.Now() > r.until {
			slog.Info("[operation] backtesting finished", logger.Attrs(ctx)...)
			return nil
		}

		tickCtx := logger.NewTrace(ctx)
		started := time.Now()
		rep, err := r.Tick(tickCtx)
		r.metrics.ObserveTick(r.op.Name, time.Since(started))
		r.health.Tick(r.op.Name, time.Now())

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			r.metrics.TickError(r.op.Name)
			slog.Error("[operation] tick failed", append([]any{"error", err}, logger.Attrs(tickCtx)...)...)
			r.notifier.Error(ctx, fmt.Sprintf("tick at %s failed: %v", clock.FormatTimestamp(rep.Now), err))
			if err := r.wait(ctx, int64(ErrorCooldown/time.Second)); err != nil {
				return err
			}
			continue
		}
		if r.observer != nil {
			r.observer(rep)
		}

		delay := r.tfs
		if r.virtual == nil {
			delay = clock.NextClosedCandleDelay(r.tfs, clock.LastClosedOpenTime(r.tfs, rep.Now), rep.Now)
		}
		if err := r.wait(ctx, delay); err != nil {
			return err
		}
	}
}

func (r *Runner) wait(ctx context.Context, secs int64) error {
	if r.virtual != nil {
		r.virtual.Advance(secs)
		return ctx.Err()
	}
	return r.sleeper.Sleep(ctx, time.Duration(secs)*time.Second)
}

func (r *Runner) setRunning(ctx context.Context, running bool) {
	r.op.IsRunning = running
	if r.state == nil {
		return
	}
	if err := r.state.SetRunning(ctx, r.op.ID, running); err != nil {
		log.Printf("[operation] %s set running=%t: %v", r.op.Name, running, err)
	}
}

// RunAll runs every runner in its own task. The first failure cancels the rest.
func RunAll(ctx context.Context, runners ...*Runner) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		r := r
		g.Go(func() error { return r.Run(gctx) })
	}
	return g.Wait()
}
