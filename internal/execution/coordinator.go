package execution

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"didibot/internal/metrics"
	"didibot/internal/model"
	"didibot/internal/strategy"
)

// Journal persists what the coordinator changes on a monitor.
type Journal interface {
	SaveMonitor(ctx context.Context, m *model.Monitor) error
	AppendTradingLog(ctx context.Context, monitorID string, o model.Order) error
}

// Coordinator turns a tick's proposed orders into executed trades. Every
// signal but buy executes immediately in input order; buys are queued by
// base asset and share that asset's balance in proportion to their scores,
// master first.
type Coordinator struct {
	op       *model.Operation
	broker   model.BrokerQuery
	exec     *Executor
	gen      strategy.Generator
	journal  Journal
	series   model.SeriesWriter
	notifier model.Notifier
	metrics  *metrics.Metrics
}

// NewCoordinator serializes order execution for op.
func NewCoordinator(op *model.Operation, b model.Broker, exec *Executor) *Coordinator {
	return &Coordinator{
		op:     op,
		broker: b,
		exec:   exec,
		gen:    strategy.Generator{AllowNakedSells: op.Setup.Trading.AllowNakedSells},
	}
}

func (c *Coordinator) WithJournal(j Journal) *Coordinator           { c.journal = j; return c }
func (c *Coordinator) WithSeries(s model.SeriesWriter) *Coordinator { c.series = s; return c }
func (c *Coordinator) WithNotifier(n model.Notifier) *Coordinator   { c.notifier = n; return c }
func (c *Coordinator) WithMetrics(m *metrics.Metrics) *Coordinator  { c.metrics = m; return c }

// Generator exposes the signal generator of the operation.
func (c *Coordinator) Generator() strategy.Generator { return c.gen }

// Run executes the batch and returns the orders that reached the broker,
// in execution order. Hold signals are dropped.
func (c *Coordinator) Run(ctx context.Context, batch []model.Order) ([]model.Order, error) {
	var (
		executed []model.Order
		queues   = map[string][]model.Order{}
		bases    []string
	)

	for _, o := range batch {
		o.Signal = c.gen.Signal(o.From, o.To, o.ByStop)
		switch o.Signal {
		case model.SignalHold:
			continue
		case model.SignalBuy:
			if _, ok := queues[o.Ticker.Base]; !ok {
				bases = append(bases, o.Ticker.Base)
			}
			queues[o.Ticker.Base] = append(queues[o.Ticker.Base], o)
			continue
		}
		done, err := c.execute(ctx, o, -1)
		if err != nil {
			return executed, err
		}
		executed = append(executed, done)
	}

	for _, base := range bases {
		done, err := c.runQueue(ctx, queues[base])
		executed = append(executed, done...)
		if err != nil {
			return executed, err
		}
	}
	return executed, nil
}

// runQueue splits the queue's base balance, read once, by score weight.
func (c *Coordinator) runQueue(ctx context.Context, queue []model.Order) ([]model.Order, error) {
	sort.SliceStable(queue, func(i, j int) bool {
		return c.isMaster(queue[i]) && !c.isMaster(queue[j])
	})

	pf, err := c.broker.GetPortfolio(ctx, queue[0].Ticker)
	if err != nil {
		return nil, fmt.Errorf("portfolio %s: %w", queue[0].Ticker.Base, err)
	}
	weights := Weights(queue)

	var out []model.Order
	for i, o := range queue {
		done, err := c.execute(ctx, o, weights[i]*pf.Base)
		if err != nil {
			return out, err
		}
		out = append(out, done)
	}
	return out, nil
}

// Weights are |score_i| / Σ|score|, or equal shares when every score is zero.
func Weights(queue []model.Order) []float64 {
	ws := make([]float64, len(queue))
	total := 0.0
	for _, o := range queue {
		total += math.Abs(o.To.Score)
	}
	for i, o := range queue {
		if total == 0 {
			ws[i] = 1 / float64(len(queue))
			continue
		}
		ws[i] = math.Abs(o.To.Score) / total
	}
	return ws
}

func (c *Coordinator) isMaster(o model.Order) bool {
	m := c.op.MonitorBySymbol(o.Ticker.Symbol)
	return m != nil && m.IsMaster
}

func (c *Coordinator) execute(ctx context.Context, o model.Order, allocation float64) (model.Order, error) {
	m := c.op.MonitorBySymbol(o.Ticker.Symbol)
	if m == nil {
		return o, fmt.Errorf("%w: no monitor for %s in %s", model.ErrNotFound, o.Ticker.Symbol, c.op.Name)
	}

	done, err := c.exec.Execute(ctx, o, allocation)
	if err != nil {
		return done, err
	}
	c.metrics.Order(c.op.Name, string(done.Signal), done.Fulfilled)

	if done.Fulfilled {
		m.Position = c.nextPosition(m.Position, done)
	}
	m.TradingLog = append(m.TradingLog, done)
	c.record(ctx, m, done)
	return done, nil
}

// nextPosition applies a fulfilled order. A same-side order grows the
// position at the weighted entry price.
func (c *Coordinator) nextPosition(pos model.Position, o model.Order) model.Position {
	side := c.gen.Target(o.To.Side)
	switch {
	case side == model.SideZeroed:
		return model.Position{Side: model.SideZeroed, ByScore: o.To.Score, EnterTimestamp: o.Timestamp}
	case side == pos.Side:
		size := pos.Size + o.Quantity
		pos.EnterPrice = (pos.EnterPrice*pos.Size + o.Price*o.Quantity) / size
		pos.Size = size
		pos.ByScore = o.To.Score
		return pos
	}
	return model.Position{
		Side:               side,
		Size:               o.Quantity,
		EnterPrice:         o.Price,
		EnterTimestamp:     o.Timestamp,
		ExitReferencePrice: o.Price,
		ByScore:            o.To.Score,
	}
}

// record persists and announces an executed order. Failures are logged only.
func (c *Coordinator) record(ctx context.Context, m *model.Monitor, o model.Order) {
	if c.journal != nil {
		if err := c.journal.AppendTradingLog(ctx, m.ID, o); err != nil {
			log.Printf("[coordinator] trading log %s: %v", m.Ticker.Symbol, err)
		}
		if err := c.journal.SaveMonitor(ctx, m); err != nil {
			log.Printf("[coordinator] save monitor %s: %v", m.Ticker.Symbol, err)
		}
	}
	if c.series != nil {
		if err := c.series.WriteOrder(ctx, c.op.Name, m.Ticker.Symbol, o); err != nil {
			log.Printf("[coordinator] order series %s: %v", m.Ticker.Symbol, err)
		}
	}
	if c.notifier == nil {
		return
	}
	if o.Fulfilled {
		c.notifier.Trade(ctx, fmt.Sprintf("%s %s: %s", c.op.Name, m.Ticker, o))
	} else {
		c.notifier.Error(ctx, fmt.Sprintf("%s %s order not fulfilled: %s %v", c.op.Name, m.Ticker, o, o.Warnings))
	}
}
