// cmd/backtest replays stored klines through a backtesting Operation and
// prints the resulting trades, P&L and equity drawdown.
//
// Usage:
//
//	go run ./cmd/backtest --operation=ops/alpha.toml --sync --chart=alpha.html
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"didibot/config"
	"didibot/internal/broker"
	"didibot/internal/broker/binance"
	"didibot/internal/classifier"
	"didibot/internal/clock"
	"didibot/internal/klines"
	"didibot/internal/logger"
	"didibot/internal/model"
	"didibot/internal/notification"
	"didibot/internal/operation"
	"didibot/internal/store/operations"
	redisstore "didibot/internal/store/redis"
	sqlitestore "didibot/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	opPath := flag.String("operation", "", "Backtesting Operation TOML file")
	envPath := flag.String("env", ".env", "Optional .env file")
	doSync := flag.Bool("sync", false, "Backfill missing klines from the exchange first")
	chartPath := flag.String("chart", "", "Write an HTML chart to this path")
	flag.Parse()

	cfg := config.Load(*envPath)
	logger.Init("backtest", logger.ParseLevel(cfg.LogLevel))

	op, err := config.LoadOperation(*opPath)
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}
	if op.Mode != model.ModeBacktesting {
		log.Fatalf("[backtest] %s is a %s operation", op.Name, op.Mode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	os.MkdirAll(filepath.Dir(cfg.KlinesDBPath), 0o755)
	klinesDB, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.KlinesDBPath})
	if err != nil {
		log.Fatalf("[backtest] klines store: %v", err)
	}
	defer klinesDB.Close()

	if *doSync {
		if err := backfill(ctx, cfg, klinesDB, op); err != nil {
			log.Fatalf("[backtest] backfill: %v", err)
		}
	}

	opsDB, err := operations.Open(ctx, cfg.OperationsDSN)
	if err != nil {
		log.Fatalf("[backtest] operations store: %v", err)
	}
	defer opsDB.Close()
	if op, err = operation.Resume(ctx, opsDB, op); err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	bs, err := notification.Build(op.Setup.Notifier.Broadcasters, notification.Deps{
		TelegramToken:  cfg.TelegramBotToken,
		TelegramChatID: cfg.TelegramChatID,
		WhatsAppURL:    cfg.WhatsAppWebhookURL,
		Email: notification.EmailConfig{
			Addr: cfg.SMTPAddr, User: cfg.SMTPUser, Password: cfg.SMTPPassword,
			From: cfg.EmailFrom, To: cfg.EmailTo,
		},
	})
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	series, reader, closeSeries := openSeries(cfg)
	defer closeSeries()
	r, err := operation.Build(ctx, op, operation.Deps{
		Klines:   klinesDB,
		Notifier: notification.New(op.Name, op.Setup.Notifier, bs),
		State:    opsDB,
		Series:   series,
	})
	if err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	rep := newReport(op)
	r.WithObserver(rep.observe)
	initial := make(map[string]float64, len(op.Wallet))
	for k, v := range op.Wallet {
		initial[k] = v
	}

	log.Printf("[backtest] %s: %s -> %s on %s", op.Name, op.Setup.Backtesting.Since, op.Setup.Backtesting.Until, op.Setup.Classifier.TimeFrame)
	if err := r.Run(ctx); err != nil {
		log.Printf("[backtest] interrupted: %v", err)
	}

	rep.print(os.Stdout, initial)
	rep.printLastResults(ctx, os.Stdout, reader, op)
	if *chartPath != "" {
		if err := rep.chart(*chartPath); err != nil {
			log.Fatalf("[backtest] chart: %v", err)
		}
		log.Printf("[backtest] chart written to %s", *chartPath)
	}
}

// openSeries writes the result and order series to redis when configured,
// in memory otherwise.
func openSeries(cfg *config.Config) (model.SeriesWriter, model.SeriesReader, func()) {
	if cfg.RedisAddr != "" {
		rs, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err == nil {
			log.Println("[backtest] writing series to redis")
			return rs, rs, func() { rs.Close() }
		}
		log.Printf("[backtest] WARNING: redis init failed: %v (keeping series in memory)", err)
	}
	mem := redisstore.NewMemory(0)
	return mem, mem, func() {}
}

// backfill syncs the stored grain of every monitor over the backtest window
// plus the classifier warmup.
func backfill(ctx context.Context, cfg *config.Config, store *sqlitestore.Store, op *model.Operation) error {
	cls, err := classifier.New(op.Setup.Classifier)
	if err != nil {
		return err
	}
	tfs := clock.MustSecondsIn(op.Setup.Classifier.TimeFrame)
	since, _ := clock.ParseTimestamp(op.Setup.Backtesting.Since)
	until, _ := clock.ParseTimestamp(op.Setup.Backtesting.Until)
	since -= int64(cls.MinimumRows()+1) * tfs

	exchange := binance.New(binance.Config{
		BaseURL:                cfg.BinanceBaseURL,
		RequestWeightPerMinute: cfg.RequestWeightPerMinute,
		HTTPTimeout:            cfg.HTTPTimeout,
	})
	for _, m := range op.Monitors {
		table, err := store.Table(ctx, op.Broker, m.Ticker, broker.TimeFrames[0])
		if err != nil {
			return err
		}
		g, err := klines.NewSyncedGetter(exchange, m.Ticker, table, op.Setup.Classifier.TimeFrame, klines.BrokerOptions{
			RecordsPerRequest: cfg.RecordsPerRequest,
			InfiniteRetry:     cfg.InfiniteRetry,
		})
		if err != nil {
			return err
		}
		log.Printf("[backtest] syncing %s from %s", m.Ticker.Symbol, clock.FormatTimestamp(since))
		if err := g.Sync(ctx, since, until); err != nil {
			return err
		}
	}
	return nil
}
