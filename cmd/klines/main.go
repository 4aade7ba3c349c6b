// cmd/klines backfills the klines store from the exchange so backtests can
// run offline.
//
// Usage:
//
//	go run ./cmd/klines --pairs=BTC/USDT,ETH/USDT --since="2024-01-01 00:00:00"
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"

	"didibot/config"
	"didibot/internal/broker"
	"didibot/internal/broker/binance"
	"didibot/internal/clock"
	"didibot/internal/klines"
	"didibot/internal/logger"
	"didibot/internal/model"
	sqlitestore "didibot/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	pairs := flag.String("pairs", "", "Comma-separated QUOTE/BASE pairs, e.g. BTC/USDT")
	sinceStr := flag.String("since", "", "First open time (YYYY-MM-DD HH:MM:SS, UTC)")
	untilStr := flag.String("until", "", "Last open time; defaults to now")
	envPath := flag.String("env", ".env", "Optional .env file")
	flag.Parse()

	cfg := config.Load(*envPath)
	logger.Init("klines", logger.ParseLevel(cfg.LogLevel))

	tickers, err := parsePairs(*pairs)
	if err != nil {
		log.Fatalf("[klines] %v", err)
	}
	since, err := clock.ParseTimestamp(*sinceStr)
	if err != nil {
		log.Fatalf("[klines] --since: %v", err)
	}
	until := clock.System{}.Now()
	if *untilStr != "" {
		if until, err = clock.ParseTimestamp(*untilStr); err != nil {
			log.Fatalf("[klines] --until: %v", err)
		}
	}
	if since >= until {
		log.Fatal("[klines] --since must be before --until")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	os.MkdirAll(filepath.Dir(cfg.KlinesDBPath), 0o755)
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.KlinesDBPath})
	if err != nil {
		log.Fatalf("[klines] store: %v", err)
	}
	defer store.Close()

	exchange := binance.New(binance.Config{
		BaseURL:                cfg.BinanceBaseURL,
		RequestWeightPerMinute: cfg.RequestWeightPerMinute,
		HTTPTimeout:            cfg.HTTPTimeout,
	})

	finest := broker.TimeFrames[0]
	out := table.NewWriter()
	out.SetOutputMirror(os.Stdout)
	out.SetTitle("Stored klines (" + finest + ")")
	out.AppendHeader(table.Row{"Pair", "Table", "Oldest", "Newest"})
	for _, t := range tickers {
		tbl, err := store.Table(ctx, "binance", t, finest)
		if err != nil {
			log.Fatalf("[klines] %s: %v", t, err)
		}
		g, err := klines.NewSyncedGetter(exchange, t, tbl, finest, klines.BrokerOptions{
			RecordsPerRequest: cfg.RecordsPerRequest,
			InfiniteRetry:     cfg.InfiniteRetry,
		})
		if err != nil {
			log.Fatalf("[klines] %s: %v", t, err)
		}
		log.Printf("[klines] syncing %s", t)
		if err := g.Sync(ctx, since, until); err != nil {
			log.Fatalf("[klines] %s: %v", t, err)
		}
		oldest, _, _ := tbl.OldestOpenTime(ctx)
		newest, _, _ := tbl.NewestOpenTime(ctx)
		out.AppendRow(table.Row{t.String(), tbl.Name(), clock.FormatTimestamp(oldest), clock.FormatTimestamp(newest)})
	}
	out.SetStyle(table.StyleLight)
	out.Render()
}

func parsePairs(s string) ([]model.Ticker, error) {
	var out []model.Ticker
	for _, p := range strings.Split(s, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		quote, base, ok := strings.Cut(p, "/")
		if !ok || quote == "" || base == "" || quote == base {
			return nil, fmt.Errorf("%w: pair %q is not QUOTE/BASE", model.ErrValue, p)
		}
		out = append(out, model.Ticker{Symbol: quote + base, Base: base, Quote: quote})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no pairs given", model.ErrValue)
	}
	return out, nil
}
