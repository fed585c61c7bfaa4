package adminhttp

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ballast/internal/decision"
	"ballast/internal/monitor"
	"ballast/internal/position"
	"ballast/internal/store/tradelog"
	"ballast/internal/trader"
)

type handlers struct {
	ledger   *position.Ledger
	executor *trader.Executor
	monitor  *monitor.Monitor
	audit    *tradelog.Store
}

func registerRoutes(group *gin.RouterGroup, cfg ServerConfig) {
	h := &handlers{
		ledger:   cfg.Ledger,
		executor: cfg.Executor,
		monitor:  cfg.Monitor,
		audit:    cfg.Audit,
	}

	group.GET("/positions", h.listPositions)
	group.GET("/positions/:id", h.getPosition)
	group.POST("/positions/:id/close", h.closePosition)
	group.GET("/budget", h.budget)
	group.GET("/portfolio", h.portfolio)
	group.GET("/stats", h.stats)
	group.GET("/emergency", h.emergency)
	group.POST("/emergency/reset", h.resetEmergency)

	if h.executor != nil {
		group.POST("/trades", h.ingestTrade)
	}
	if h.monitor != nil {
		group.POST("/monitor/run", h.runMonitorPass)
	}
	if h.audit != nil {
		group.GET("/tradelog/trades", h.recentTrades)
		group.GET("/tradelog/vetoes", h.recentVetoes)
	}
}

func (h *handlers) listPositions(c *gin.Context) {
	status := position.Status(c.Query("status"))
	switch status {
	case "", position.StatusOpen, position.StatusClosed, position.StatusStopped:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(status)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": h.ledger.List(status)})
}

func (h *handlers) getPosition(c *gin.Context) {
	pos, ok := h.ledger.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "position not found"})
		return
	}
	c.JSON(http.StatusOK, pos)
}

type closeRequest struct {
	ExitPrice float64 `json:"exit_price" binding:"required,gt=0"`
	Reason    string  `json:"reason"`
}

func (h *handlers) closePosition(c *gin.Context) {
	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Reason == "" {
		req.Reason = position.CloseReasonManual
	}
	closed, err := h.ledger.Close(c.Request.Context(), c.Param("id"), req.ExitPrice, req.Reason)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, closed)
}

func (h *handlers) budget(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.BudgetStats())
}

func (h *handlers) portfolio(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.PortfolioState())
}

func (h *handlers) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.Statistics())
}

func (h *handlers) emergency(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.Emergency())
}

func (h *handlers) resetEmergency(c *gin.Context) {
	if err := h.ledger.ResetEmergency(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.ledger.Emergency())
}

type ingestRequest struct {
	// Raw is the upstream agent output, possibly fenced markdown. Trade is
	// the structured alternative; exactly one must be set.
	Raw   string                  `json:"raw"`
	Trade *decision.ProposedTrade `json:"trade"`
	ATR   float64                 `json:"atr"`
}

func (h *handlers) ingestTrade(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var trade decision.ProposedTrade
	switch {
	case req.Raw != "" && req.Trade == nil:
		parsed, err := decision.Parse(req.Raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		trade = parsed
	case req.Raw == "" && req.Trade != nil:
		trade = *req.Trade
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide exactly one of raw or trade"})
		return
	}

	out, err := h.executor.Execute(c.Request.Context(), trader.Request{Trade: trade, ATR: req.ATR})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) runMonitorPass(c *gin.Context) {
	report, err := h.monitor.RunOnce(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *handlers) recentTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.audit.RecentTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": records})
}

func (h *handlers) recentVetoes(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.audit.RecentVetoes(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vetoes": records})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, position.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, position.ErrPositionNotOpen),
		errors.Is(err, position.ErrEmergencyActive),
		errors.Is(err, position.ErrStrategyDisabled),
		errors.Is(err, position.ErrBudgetExceeded):
		return http.StatusConflict
	case errors.Is(err, position.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
