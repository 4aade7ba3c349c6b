package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"didibot/internal/classifier"
	"didibot/internal/clock"
	"didibot/internal/model"
	"didibot/internal/operation"
	"didibot/internal/portfolio"
)

// report accumulates what the backtest observed tick by tick.
type report struct {
	base   string
	master string
	pnl    *portfolio.PnLTracker
	equity *portfolio.Equity
	quotes map[string]string  // symbol -> quote asset
	prices map[string]float64 // quote asset -> last close
	orders []model.Order
	wallet map[string]float64

	times  []string
	closes []opts.LineData
	scores []opts.LineData
	buys   []opts.ScatterData
	sells  []opts.ScatterData
}

func newReport(op *model.Operation) *report {
	m := op.Master()
	r := &report{
		base:   m.Ticker.Base,
		master: m.Ticker.Symbol,
		pnl:    portfolio.NewPnLTracker(),
		equity: portfolio.NewEquity(),
		quotes: make(map[string]string, len(op.Monitors)),
		prices: map[string]float64{},
		wallet: op.Wallet,
	}
	for _, mon := range op.Monitors {
		r.quotes[mon.Ticker.Symbol] = mon.Ticker.Quote
	}
	return r
}

func (r *report) observe(rep operation.TickReport) {
	for sym, res := range rep.Results {
		if px, ok := res.Values[classifier.ColClose]; ok {
			r.prices[r.quotes[sym]] = px
		}
	}
	r.orders = append(r.orders, rep.Executed...)
	for _, o := range rep.Executed {
		r.pnl.RecordOrder(o)
		if o.Fulfilled {
			r.prices[o.Ticker.Quote] = o.Price
		}
	}
	if rep.Wallet != nil {
		r.wallet = rep.Wallet
		r.equity.Mark(rep.Now, portfolio.Value(rep.Wallet, r.base, r.prices))
	}

	res, ok := rep.Results[r.master]
	if !ok {
		return
	}
	r.times = append(r.times, clock.FormatTimestamp(rep.Now))
	r.closes = append(r.closes, opts.LineData{Value: res.Values[classifier.ColClose]})
	r.scores = append(r.scores, opts.LineData{Value: res.Score})
	buy, sell := opts.ScatterData{Value: "-"}, opts.ScatterData{Value: "-"}
	for _, o := range rep.Executed {
		if o.Ticker.Symbol != r.master || !o.Fulfilled {
			continue
		}
		if o.Signal.IsBuy() {
			buy.Value = o.Price
		} else {
			sell.Value = o.Price
		}
	}
	r.buys = append(r.buys, buy)
	r.sells = append(r.sells, sell)
}

func (r *report) print(w io.Writer, initial map[string]float64) {
	final := r.wallet
	orders := table.NewWriter()
	orders.SetOutputMirror(w)
	orders.SetTitle("Orders")
	orders.AppendHeader(table.Row{"Time", "Symbol", "Signal", "Quantity", "Price", "Fee", "Fulfilled", "Warnings"})
	for _, o := range r.orders {
		orders.AppendRow(table.Row{clock.FormatTimestamp(o.Timestamp), o.Ticker.Symbol, o.Signal,
			fmt.Sprintf("%.8f", o.Quantity), fmt.Sprintf("%.4f", o.Price), fmt.Sprintf("%.8f", o.Fee), o.Fulfilled, o.Warnings})
	}
	orders.SetStyle(table.StyleLight)
	orders.Render()

	s := r.pnl.Summary(nil)
	pnl := table.NewWriter()
	pnl.SetOutputMirror(w)
	pnl.SetTitle("P&L by symbol (" + r.base + ")")
	pnl.AppendHeader(table.Row{"Symbol", "Realized", "Open qty", "Avg price"})
	for _, sp := range s.BySymbol {
		pnl.AppendRow(table.Row{sp.Symbol, fmt.Sprintf("%.4f", sp.Realized), fmt.Sprintf("%.8f", sp.OpenQty), fmt.Sprintf("%.4f", sp.AvgPrice)})
	}
	pnl.AppendFooter(table.Row{"Total", fmt.Sprintf("%.4f", s.RealizedPnL), "", ""})
	pnl.SetStyle(table.StyleLight)
	pnl.Render()

	wallet := table.NewWriter()
	wallet.SetOutputMirror(w)
	wallet.SetTitle("Wallet")
	wallet.AppendHeader(table.Row{"Asset", "Initial", "Final"})
	assets := make([]string, 0, len(final))
	for a := range final {
		assets = append(assets, a)
	}
	for a := range initial {
		if _, ok := final[a]; !ok {
			assets = append(assets, a)
		}
	}
	sort.Strings(assets)
	for _, a := range assets {
		wallet.AppendRow(table.Row{a, fmt.Sprintf("%.8f", initial[a]), fmt.Sprintf("%.8f", final[a])})
	}
	wallet.AppendFooter(table.Row{"Equity " + r.base,
		fmt.Sprintf("%.4f", portfolio.Value(initial, r.base, r.prices)),
		fmt.Sprintf("%.4f", portfolio.Value(final, r.base, r.prices))})
	wallet.SetStyle(table.StyleLight)
	wallet.Render()

	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetTitle("Summary")
	summary.AppendRows([]table.Row{
		{"Orders", s.TotalOrders},
		{"Winning / losing closes", fmt.Sprintf("%d / %d", s.Wins, s.Losses)},
		{"Fees (" + r.base + ")", fmt.Sprintf("%.4f", s.Fees)},
		{"Return", fmt.Sprintf("%.2f%%", r.equity.Return())},
		{"Max drawdown", fmt.Sprintf("%.2f%%", r.equity.MaxDrawdown())},
	})
	summary.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	summary.SetStyle(table.StyleLight)
	summary.Render()
}

// lastResults is how many series entries per monitor the report shows.
const lastResults = 5

// printLastResults shows the tail of each monitor's result series as written
// during the run.
func (r *report) printLastResults(ctx context.Context, w io.Writer, series model.SeriesReader, op *model.Operation) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Last %d results", lastResults))
	t.AppendHeader(table.Row{"Symbol", "Open time", "Close", "Score"})
	for _, m := range op.Monitors {
		results, err := series.Results(ctx, op.Name, m.Ticker.Symbol, lastResults)
		if err != nil {
			fmt.Fprintf(w, "results of %s: %v\n", m.Ticker.Symbol, err)
			continue
		}
		for _, res := range results {
			t.AppendRow(table.Row{m.Ticker.Symbol, clock.FormatTimestamp(res.OpenTime),
				fmt.Sprintf("%.4f", res.Values[classifier.ColClose]), fmt.Sprintf("%+.3f", res.Score)})
		}
		t.AppendSeparator()
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

// chart writes the master's close, score and fills, and the equity curve,
// as an HTML page.
func (r *report) chart(path string) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: r.master, Subtitle: "close, score and fills"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: r.base, Scale: opts.Bool(true)}),
	)
	line.ExtendYAxis(opts.YAxis{Name: "score", Min: -1, Max: 1})
	line.SetXAxis(r.times).
		AddSeries("close", r.closes).
		AddSeries("score", r.scores, charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}))

	fills := charts.NewScatter()
	fills.SetXAxis(r.times).
		AddSeries("buy", r.buys).
		AddSeries("sell", r.sells)
	line.Overlap(fills)

	points := r.equity.Points()
	stamps := make([]string, len(points))
	values := make([]opts.LineData, len(points))
	for i, p := range points {
		stamps[i] = clock.FormatTimestamp(p.Timestamp)
		values[i] = opts.LineData{Value: p.Equity}
	}
	equity := charts.NewLine()
	equity.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Equity", Subtitle: fmt.Sprintf("max drawdown %.2f%%", r.equity.MaxDrawdown())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: r.base, Scale: opts.Bool(true)}),
	)
	equity.SetXAxis(stamps).AddSeries("equity", values)

	page := components.NewPage()
	page.PageTitle = "backtest " + r.master
	page.AddCharts(line, equity)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return page.Render(f)
}
