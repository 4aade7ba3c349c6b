// Package redis keeps the per-monitor time series (classifier results and
// orders) in Redis streams, behind a circuit breaker with a local buffer.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"

	"didibot/internal/model"
)

const (
	defaultStreamMaxLen = 50000
	defaultLatestTTL    = 24 * time.Hour
)

// Kinds of series.
const (
	KindResults = "results"
	KindOrders  = "orders"
)

// StreamKey is the stream of one (kind, operation, symbol).
func StreamKey(kind, operation, symbol string) string {
	return "didi:" + kind + ":" + operation + ":" + symbol
}

// LatestKey holds the latest entry of a stream.
func LatestKey(kind, operation, symbol string) string {
	return StreamKey(kind, operation, symbol) + ":latest"
}

// Channel is the pubsub channel mirroring a stream.
func Channel(kind, operation string) string {
	return "pub:didi:" + kind + ":" + operation
}

// Config configures the Redis series.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	MaxLen   int64
}

// Series writes results and orders to Redis streams and reads them back.
type Series struct {
	client *goredis.Client
	maxLen int64
}

// New connects and pings the server.
func New(cfg Config) (*Series, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis ping: %v", model.ErrStorage, err)
	}

	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Series{client: client, maxLen: maxLen}, nil
}

// Client returns the underlying Redis client for health checks.
func (s *Series) Client() *goredis.Client { return s.client }

// Close closes the Redis client.
func (s *Series) Close() error { return s.client.Close() }

// WriteResult appends a classifier result.
func (s *Series) WriteResult(ctx context.Context, operation, symbol string, r model.AnalysisResult) error {
	return s.write(ctx, KindResults, operation, symbol, r)
}

// WriteOrder appends an order.
func (s *Series) WriteOrder(ctx context.Context, operation, symbol string, o model.Order) error {
	return s.write(ctx, KindOrders, operation, symbol, o)
}

// write pipelines XADD + SET latest + PUBLISH in one roundtrip.
func (s *Series) write(ctx context.Context, kind, operation, symbol string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	jsonData := string(data)

	pipe := s.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: StreamKey(kind, operation, symbol),
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{"symbol": symbol, "data": jsonData},
	})
	pipe.Set(ctx, LatestKey(kind, operation, symbol), jsonData, defaultLatestTTL)
	pipe.Publish(ctx, Channel(kind, operation), jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: redis %s pipeline for %s/%s: %v", model.ErrStorage, kind, operation, symbol, err)
	}
	return nil
}
