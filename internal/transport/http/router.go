package alerthttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vigil/internal/logger"
	"vigil/internal/memory"
	"vigil/internal/report"
	"vigil/internal/signal"

	"github.com/gin-gonic/gin"
)

// Router 暴露告警相关的查询接口。
type Router struct {
	feed    *report.Store
	memory  memory.Store
	symbols func() []string
}

// NewRouter 构造告警查询 router。
func NewRouter(feed *report.Store, mem memory.Store, symbols func() []string) *Router {
	return &Router{feed: feed, memory: mem, symbols: symbols}
}

// Register 将 /api/alerts 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("", r.handleRecent)
	group.GET("/history", r.handleHistory)
	group.GET("/summary", r.handleSummary)
	group.GET("/export.csv", r.handleExportCSV)
	if r.memory != nil {
		group.GET("/thresholds/:symbol", r.handleThresholds)
		group.GET("/memory/:symbol", r.handleMemory)
	}
}

func (r *Router) handleRecent(c *gin.Context) {
	page, _ := strconv.Atoi(strings.TrimSpace(c.Query("page")))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))
	if pageSize <= 0 {
		pageSize, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	if pageSize > 500 {
		pageSize = 500
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	if page > 0 {
		offset = (page - 1) * pageSize
	} else {
		page = offset/pageSize + 1
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	rows, err := r.feed.Recent(ctx, c.Query("symbol"), pageSize, offset)
	if err != nil {
		logger.Errorf("[api] alerts recent failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"alerts":    rows,
		"page":      page,
		"page_size": pageSize,
	})
}

func (r *Router) handleHistory(c *gin.Context) {
	symbol := strings.TrimSpace(c.Query("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "90"))
	if days <= 0 || days > 3650 {
		days = 90
	}
	since := signal.Day(time.Now().UTC()).AddDate(0, 0, -days)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	rows, err := r.feed.History(ctx, symbol, since)
	if err != nil {
		logger.Errorf("[api] alerts history failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":  strings.ToUpper(symbol),
		"days":    days,
		"history": rows,
	})
}

func (r *Router) handleSummary(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	counts, err := r.feed.CountByClassification(ctx, c.Query("symbol"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"counts": counts}
	if r.symbols != nil {
		resp["watchlist"] = r.symbols()
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleThresholds(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	state := r.memory.Thresholds(symbol)
	c.JSON(http.StatusOK, gin.H{
		"symbol":     strings.ToUpper(symbol),
		"thresholds": state,
	})
}

func (r *Router) handleMemory(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 必填"})
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 || days > 3650 {
		days = 30
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	since := signal.Day(time.Now().UTC()).AddDate(0, 0, -days)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	entries, err := r.memory.Recent(ctx, symbol, since, limit)
	if err != nil {
		logger.Errorf("[api] alert memory failed ip=%s symbol=%s err=%v", c.ClientIP(), symbol, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":  strings.ToUpper(symbol),
		"entries": entries,
	})
}

func (r *Router) handleExportCSV(c *gin.Context) {
	symbol := strings.TrimSpace(c.Query("symbol"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="decisions.csv"`)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	if err := r.feed.ExportCSV(ctx, c.Writer, symbol); err != nil {
		logger.Errorf("[api] alerts export failed ip=%s err=%v", c.ClientIP(), err)
	}
}

func (r *Router) handleSeverityChart(c *gin.Context) {
	symbol := strings.TrimSpace(c.Param("symbol"))
	if symbol == "" {
		c.String(http.StatusBadRequest, "symbol 必填")
		return
	}
	days, _ := strconv.Atoi(c.DefaultQuery("days", "180"))
	if days <= 0 || days > 3650 {
		days = 180
	}
	since := signal.Day(time.Now().UTC()).AddDate(0, 0, -days)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	rows, err := r.feed.History(ctx, symbol, since)
	if err != nil {
		c.String(http.StatusInternalServerError, "history load failed: %v", err)
		return
	}
	if len(rows) == 0 {
		c.String(http.StatusNotFound, "%s 没有决策历史", strings.ToUpper(symbol))
		return
	}

	monitor, alertTh := 0.75, 1.25
	if r.memory != nil {
		state := r.memory.Thresholds(symbol)
		monitor, alertTh = state.MonitorScoreThreshold, state.AlertScoreThreshold
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderSeverityChart(c.Writer, symbol, rows, monitor, alertTh); err != nil {
		logger.Errorf("[api] chart render failed symbol=%s err=%v", symbol, err)
	}
}
