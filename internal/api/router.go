// Package api serves the read-only status surface: health, prometheus
// metrics, operation snapshots and the websocket push stream.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"didibot/internal/gateway"
	"didibot/internal/metrics"
	"didibot/internal/model"
)

// Operations reads persisted operations.
type Operations interface {
	ListOperations(ctx context.Context) ([]string, error)
	LoadOperation(ctx context.Context, name string) (*model.Operation, error)
	TradingLog(ctx context.Context, monitorID string, limit int) ([]model.Order, error)
}

// Deps are the collaborators of the router. Series and Hub are optional.
type Deps struct {
	Health     *metrics.HealthStatus
	Gatherer   prometheus.Gatherer
	Operations Operations
	Series     model.SeriesReader
	Hub        *gateway.Hub
}

const defaultLimit = 20

// NewRouter builds the gin engine with every route mounted.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if d.Health != nil {
		r.GET("/healthz", gin.WrapH(d.Health))
	}
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	if d.Hub != nil {
		gateway.Register(r, d.Hub)
	}

	h := &handlers{d: d}
	v1 := r.Group("/api/v1")
	v1.GET("/operations", h.listOperations)
	v1.GET("/operations/:name", h.operation)
	v1.GET("/operations/:name/monitors", h.monitors)
	return r
}

type handlers struct {
	d Deps
}

func (h *handlers) listOperations(c *gin.Context) {
	names, err := h.d.Operations.ListOperations(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": names})
}

func (h *handlers) operation(c *gin.Context) {
	op, err := h.d.Operations.LoadOperation(c.Request.Context(), c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, op)
}

// monitorView is a monitor with its recent trading log and series.
type monitorView struct {
	*model.Monitor
	Results []model.AnalysisResult `json:"results,omitempty"`
	Orders  []model.Order          `json:"orders,omitempty"`
}

func (h *handlers) monitors(c *gin.Context) {
	ctx := c.Request.Context()
	limit := defaultLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	op, err := h.d.Operations.LoadOperation(ctx, c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}

	views := make([]monitorView, 0, len(op.Monitors))
	for _, m := range op.Monitors {
		v := monitorView{Monitor: m}
		if m.TradingLog, err = h.d.Operations.TradingLog(ctx, m.ID, limit); err != nil {
			fail(c, err)
			return
		}
		if h.d.Series != nil {
			// series are best effort: redis may be down while the store is fine
			if v.Results, err = h.d.Series.Results(ctx, op.Name, m.Ticker.Symbol, limit); err != nil {
				log.Printf("[api] results of %s/%s: %v", op.Name, m.Ticker.Symbol, err)
			}
			if v.Orders, err = h.d.Series.Orders(ctx, op.Name, m.Ticker.Symbol, limit); err != nil {
				log.Printf("[api] orders of %s/%s: %v", op.Name, m.Ticker.Symbol, err)
			}
		}
		views = append(views, v)
	}
	c.JSON(http.StatusOK, gin.H{"operation": op.Name, "monitors": views})
}

func fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, model.ErrNotFound) {
		code = http.StatusNotFound
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
