package statushttp

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradecouncil/internal/risk"
	"tradecouncil/internal/store"

	"github.com/gin-gonic/gin"
)

type CycleReader interface {
	LatestCycle(ctx context.Context) (store.CycleRecord, bool, error)
}

type TradeLister interface {
	ListTrades(ctx context.Context, limit int) ([]store.TradeRecord, error)
}

type RiskReader interface {
	Config() risk.Config
}

type Router struct {
	cycles CycleReader
	trades TradeLister
	risk   RiskReader
}

func NewRouter(cycles CycleReader, trades TradeLister, rk RiskReader) *Router {
	return &Router{cycles: cycles, trades: trades, risk: rk}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/cycles/latest", r.handleLatestCycle)
	if r.trades != nil {
		group.GET("/trades", r.handleTrades)
	}
	if r.risk != nil {
		group.GET("/risk", r.handleRisk)
	}
}

type cycleResponse struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Status    string          `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Log       []string        `json:"log"`
	Decision  json.RawMessage `json:"decision,omitempty"`
}

func (r *Router) handleLatestCycle(c *gin.Context) {
	rec, ok, err := r.cycles.LatestCycle(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no cycle recorded yet"})
		return
	}
	resp := cycleResponse{
		ID:        rec.ID,
		Symbol:    rec.Symbol,
		Status:    string(rec.Status),
		StartedAt: rec.StartedAt,
		Log:       splitLog(rec.Log),
	}
	if !rec.EndedAt.IsZero() {
		ended := rec.EndedAt
		resp.EndedAt = &ended
	}
	if len(rec.Decision) > 0 && json.Valid(rec.Decision) {
		resp.Decision = rec.Decision
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleTrades(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > 500 {
		limit = 500
	}
	trades, err := r.trades.ListTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	items := make([]gin.H, 0, len(trades))
	for _, t := range trades {
		items = append(items, gin.H{
			"order_id":      t.OrderID,
			"cycle_id":      t.CycleID,
			"symbol":        t.Symbol,
			"side":          string(t.Side),
			"filled_size":   t.FilledSize,
			"average_price": t.AveragePrice,
			"completed_at":  t.CompletedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"trades": items})
}

func (r *Router) handleRisk(c *gin.Context) {
	cfg := r.risk.Config()
	c.JSON(http.StatusOK, gin.H{
		"max_position_size":  cfg.MaxPositionSize,
		"per_trade_risk_cap": cfg.PerTradeRiskCap,
	})
}

func splitLog(log string) []string {
	log = strings.TrimSpace(log)
	if log == "" {
		return []string{}
	}
	return strings.Split(log, "\n")
}
