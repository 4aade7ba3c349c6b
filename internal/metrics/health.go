package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"sort"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	json "github.com/goccy/go-json"
)

// HealthStatus tracks the dependencies and the tick loop liveness.
type HealthStatus struct {
	mu sync.RWMutex

	BrokerReachable bool
	RedisConnected  bool
	RedisEnabled    bool
	KlinesDBOK      bool
	OperationsDBOK  bool
	LastTickAt      map[string]time.Time

	RedisLatencyMs  float64
	KlinesLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt:  time.Now(),
		LastTickAt: make(map[string]time.Time),
	}
}

func (h *HealthStatus) SetBrokerReachable(v bool) {
	h.mu.Lock()
	h.BrokerReachable = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetOperationsDBOK(v bool) {
	h.mu.Lock()
	h.OperationsDBOK = v
	h.mu.Unlock()
}

// Tick records a completed tick of an operation.
func (h *HealthStatus) Tick(operation string, at time.Time) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.LastTickAt[operation] = at
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the klines database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.KlinesDBOK = err == nil
	h.KlinesLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. rdb may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, klinesDB, operationsDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if rdb != nil {
				h.CheckRedis(probeCtx, rdb)
			}
			if klinesDB != nil {
				h.CheckSQLite(probeCtx, klinesDB)
			}
			if operationsDB != nil {
				h.SetOperationsDBOK(operationsDB.PingContext(probeCtx) == nil)
			}
			cancel()

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Report is the JSON body of /healthz.
type Report struct {
	Status          string            `json:"status"`
	Uptime          string            `json:"uptime"`
	BrokerReachable bool              `json:"broker_reachable"`
	RedisConnected  bool              `json:"redis_connected"`
	RedisLatencyMs  float64           `json:"redis_latency_ms"`
	KlinesDBOK      bool              `json:"klines_db_ok"`
	KlinesLatencyMs float64           `json:"klines_latency_ms"`
	OperationsDBOK  bool              `json:"operations_db_ok"`
	LastTicks       map[string]string `json:"last_ticks"`
	Operations      []string          `json:"operations"`
	LastCheckAt     string            `json:"last_check_at"`
}

// Report computes the overall status. Redis only counts when it is configured.
func (h *HealthStatus) Report() (Report, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status, code := "healthy", http.StatusOK
	redisOK := !h.RedisEnabled || h.RedisConnected
	if !h.BrokerReachable || !redisOK || !h.KlinesDBOK {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	if !h.KlinesDBOK && !h.OperationsDBOK {
		status = "unhealthy"
	}

	r := Report{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		BrokerReachable: h.BrokerReachable,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		KlinesDBOK:      h.KlinesDBOK,
		KlinesLatencyMs: h.KlinesLatencyMs,
		OperationsDBOK:  h.OperationsDBOK,
		LastTicks:       make(map[string]string, len(h.LastTickAt)),
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}
	for op, at := range h.LastTickAt {
		r.LastTicks[op] = at.UTC().Format(time.RFC3339)
		r.Operations = append(r.Operations, op)
	}
	sort.Strings(r.Operations)
	return r, code
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	report, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}
