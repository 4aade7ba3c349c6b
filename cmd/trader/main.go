// cmd/trader runs real and test Operations against the exchange and serves
// the status API with the websocket push stream.
//
// Usage:
//
//	go run ./cmd/trader --operation=ops/alpha.toml,ops/beta.toml
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"didibot/config"
	"didibot/internal/api"
	"didibot/internal/broker/binance"
	"didibot/internal/gateway"
	"didibot/internal/klines"
	"didibot/internal/logger"
	"didibot/internal/metrics"
	"didibot/internal/model"
	"didibot/internal/notification"
	"didibot/internal/operation"
	"didibot/internal/store/operations"
	redisstore "didibot/internal/store/redis"
	sqlitestore "didibot/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	opPaths := flag.String("operation", "", "Comma-separated Operation TOML files")
	envPath := flag.String("env", ".env", "Optional .env file")
	flag.Parse()

	cfg := config.Load(*envPath)
	logger.Init("trader", logger.ParseLevel(cfg.LogLevel))
	log.Println("[trader] starting...")

	var defs []*model.Operation
	for _, p := range strings.Split(*opPaths, ",") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		op, err := config.LoadOperation(p)
		if err != nil {
			log.Fatalf("[trader] %s: %v", p, err)
		}
		if op.Mode == model.ModeBacktesting {
			log.Fatalf("[trader] %s is a backtesting operation, use cmd/backtest", p)
		}
		if op.Mode == model.ModeReal {
			cfg.RequireExchangeKeys()
		}
		defs = append(defs, op)
	}
	if len(defs) == 0 {
		log.Fatal("[trader] no operations given")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.NewMetrics(reg)
	health := metrics.NewHealthStatus()

	// ---- Stores ----
	os.MkdirAll(filepath.Dir(cfg.KlinesDBPath), 0o755)
	klinesDB, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.KlinesDBPath})
	if err != nil {
		log.Fatalf("[trader] klines store: %v", err)
	}
	defer klinesDB.Close()

	opsDB, err := operations.Open(ctx, cfg.OperationsDSN)
	if err != nil {
		log.Fatalf("[trader] operations store: %v", err)
	}
	defer opsDB.Close()

	var (
		series   model.SeriesWriter
		reader   model.SeriesReader
		relaySrc gateway.Source
		rdb      *goredis.Client
	)
	if cfg.RedisAddr != "" {
		rs, err := redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[trader] WARNING: redis init failed: %v (continuing without series)", err)
		} else {
			defer rs.Close()
			cb := redisstore.NewCircuitBreaker(5, 30*time.Second)
			cb.OnStateChange = func(_, to redisstore.State) { prom.BreakerState(int(to)) }
			bw := redisstore.NewBufferedWriter(ctx, rs, cb, 10000)
			bw.OnBuffer = prom.BufferedWrite
			series, reader, relaySrc, rdb = bw, rs, rs, rs.Client()
			health.RedisEnabled = true
			log.Println("[trader] redis series ready")
		}
	}
	health.StartLivenessChecker(ctx, rdb, klinesDB.DB(), opsDB.DB().DB, 10*time.Second)

	// ---- Exchange ----
	exchange := binance.New(binance.Config{
		APIKey:                 cfg.BinanceAPIKey,
		SecretKey:              cfg.BinanceSecretKey,
		BaseURL:                cfg.BinanceBaseURL,
		RequestWeightPerMinute: cfg.RequestWeightPerMinute,
		HTTPTimeout:            cfg.HTTPTimeout,
	})
	go watchExchange(ctx, exchange, health)

	// ---- Push hub & API ----
	hub := gateway.NewHub()
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewRouter(api.Deps{
			Health:     health,
			Gatherer:   reg,
			Operations: opsDB,
			Series:     reader,
			Hub:        hub,
		}),
	}
	go func() {
		log.Printf("[trader] status API on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[trader] http server: %v", err)
		}
	}()

	// ---- Operations ----
	var runners []*operation.Runner
	for _, def := range defs {
		op, err := operation.Resume(ctx, opsDB, def)
		if err != nil {
			log.Fatalf("[trader] %s: %v", def.Name, err)
		}
		bs, err := notification.Build(op.Setup.Notifier.Broadcasters, notification.Deps{
			TelegramToken:  cfg.TelegramBotToken,
			TelegramChatID: cfg.TelegramChatID,
			WhatsAppURL:    cfg.WhatsAppWebhookURL,
			Email: notification.EmailConfig{
				Addr: cfg.SMTPAddr, User: cfg.SMTPUser, Password: cfg.SMTPPassword,
				From: cfg.EmailFrom, To: cfg.EmailTo,
			},
			Pusher: gateway.Push{Hub: hub},
		})
		if err != nil {
			log.Fatalf("[trader] %s: %v", op.Name, err)
		}
		r, err := operation.Build(ctx, op, operation.Deps{
			Exchange: exchange,
			Klines:   klinesDB,
			Notifier: notification.New(op.Name, op.Setup.Notifier, bs).WithMetrics(prom),
			State:    opsDB,
			Series:   series,
			Metrics:  prom,
			Health:   health,
			Getter: klines.BrokerOptions{
				RecordsPerRequest: cfg.RecordsPerRequest,
				InfiniteRetry:     cfg.InfiniteRetry,
			},
		})
		if err != nil {
			log.Fatalf("[trader] %s: %v", op.Name, err)
		}
		if relaySrc != nil {
			go gateway.Relay(ctx, relaySrc, op.Name, hub)
		}
		runners = append(runners, r)
	}

	err = operation.RunAll(ctx, runners...)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("[trader] operations stopped", "error", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	srv.Shutdown(shutdownCtx)
	log.Println("[trader] stopped")
}

// watchExchange records whether the exchange answers.
func watchExchange(ctx context.Context, b *binance.Broker, health *metrics.HealthStatus) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := b.ServerTime(probeCtx)
		cancel()
		health.SetBrokerReachable(err == nil)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
