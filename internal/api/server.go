// Package api exposes the adjustment engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dividend-screener/internal/domain"
	"dividend-screener/internal/observability"
	"dividend-screener/internal/orchestrator"
	"dividend-screener/internal/storage"
)

// Recomputer runs one adjustment pass. Implemented by *orchestrator.Orchestrator.
type Recomputer interface {
	Recompute(ctx context.Context, codes []string, years domain.YearRange) (*orchestrator.RunResult, error)
}

// ErrRunInProgress is returned by Runner.Run while another pass is active.
var ErrRunInProgress = errors.New("recompute already in progress")

// Runner serializes recompute passes triggered by HTTP and by the scheduler
// and remembers the last outcome.
type Runner struct {
	recomputer Recomputer

	mu      sync.Mutex
	running bool
	runs    int
	lastRun time.Time
	last    *orchestrator.RunResult
	lastErr string
	started time.Time
}

// NewRunner creates a Runner.
func NewRunner(r Recomputer) *Runner {
	return &Runner{recomputer: r, started: time.Now()}
}

// Run executes one pass unless another one is active.
func (r *Runner) Run(ctx context.Context, codes []string, years domain.YearRange) (*orchestrator.RunResult, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrRunInProgress
	}
	r.running = true
	r.mu.Unlock()

	res, err := r.recomputer.Recompute(ctx, codes, years)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.runs++
	r.lastRun = time.Now()
	r.last = res
	r.lastErr = ""
	if err != nil {
		r.lastErr = err.Error()
	}
	return res, err
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status    string                  `json:"status"`
	Uptime    string                  `json:"uptime"`
	Running   bool                    `json:"running"`
	Runs      int                     `json:"runs"`
	LastRun   *time.Time              `json:"last_run,omitempty"`
	LastError string                  `json:"last_error,omitempty"`
	LastRunID string                  `json:"last_run_id,omitempty"`
	Last      *orchestrator.RunResult `json:"last_result,omitempty"`
}

// Status returns a snapshot of the runner state.
func (r *Runner) Status() StatusResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	resp := StatusResponse{
		Status:    "running",
		Uptime:    time.Since(r.started).Truncate(time.Second).String(),
		Running:   r.running,
		Runs:      r.runs,
		LastError: r.lastErr,
		Last:      r.last,
	}
	if !r.lastRun.IsZero() {
		t := r.lastRun
		resp.LastRun = &t
	}
	if r.last != nil {
		resp.LastRunID = r.last.RunID
	}
	return resp
}

// Options for creating Server.
type Options struct {
	Runner        *Runner
	StockStore    storage.StockStore
	DividendStore storage.DividendStore
	FactorStore   storage.FactorTimeseriesStore // optional
	DefaultYears  domain.YearRange              // used when a request names no years
	Logger        *zap.Logger

	// BaseContext bounds recompute runs started over HTTP. A run outlives the
	// request that started it and stops when BaseContext is done.
	// Default: context.Background().
	BaseContext context.Context
}

// Server holds the HTTP handlers.
type Server struct {
	runner        *Runner
	stockStore    storage.StockStore
	dividendStore storage.DividendStore
	factorStore   storage.FactorTimeseriesStore
	defaultYears  domain.YearRange
	logger        *zap.Logger
	baseCtx       context.Context
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseCtx := opts.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Server{
		runner:        opts.Runner,
		stockStore:    opts.StockStore,
		dividendStore: opts.DividendStore,
		factorStore:   opts.FactorStore,
		defaultYears:  opts.DefaultYears,
		logger:        logger.Named("api"),
		baseCtx:       baseCtx,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.accessLog())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.runner.Status())
	})
	router.GET("/metrics", gin.WrapH(observability.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/adjustments/recompute", s.Recompute)
		v1.GET("/stocks/:code/adjustments", s.GetAdjustments)
	}
	return router
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// RecomputeRequest is the body of POST /api/v1/adjustments/recompute.
// Zero years fall back to the configured range.
type RecomputeRequest struct {
	Codes    []string `json:"codes" binding:"omitempty,dive,len=6,numeric"`
	FromYear int      `json:"from_year" binding:"omitempty,min=1990,max=9999"`
	ToYear   int      `json:"to_year" binding:"omitempty,min=1990,max=9999"`
}

// Recompute runs one adjustment pass and answers with its result. The pass
// keeps running when the client disconnects.
func (s *Server) Recompute(c *gin.Context) {
	var req RecomputeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	years := s.defaultYears
	if req.FromYear != 0 {
		years.From = req.FromYear
	}
	if req.ToYear != 0 {
		years.To = req.ToYear
	}
	if err := years.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if s.baseCtx.Err() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server shutting down"})
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	res, err := s.runner.Run(ctx, req.Codes, years)
	switch {
	case errors.Is(err, ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, storage.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error("recompute failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// DividendView is one dividend record in an adjustments response.
type DividendView struct {
	Year                     int        `json:"year"`
	ReportCode               string     `json:"reprt_code"`
	DividendPerShare         *string    `json:"dividend_per_share"`
	AdjustedRatio            *string    `json:"adjusted_ratio"`
	AdjustedDividendPerShare *string    `json:"adjusted_dividend_per_share"`
	ExDividendDate           *time.Time `json:"ex_dividend_date,omitempty"`
}

// TrailView is one corporate-action step in an adjustments response.
type TrailView struct {
	Year         int       `json:"year"`
	Seq          int       `json:"seq"`
	EventDate    time.Time `json:"event_date"`
	DateFallback bool      `json:"date_fallback"`
	Kind         string    `json:"kind"`
	Source       string    `json:"source"`
	Factor       string    `json:"factor"`
	Cumulative   string    `json:"cumulative"`
}

// FactorView is one time series point in an adjustments response.
type FactorView struct {
	Year       int       `json:"year"`
	Seq        int       `json:"seq"`
	EventDate  time.Time `json:"event_date"`
	Kind       string    `json:"kind"`
	Cumulative string    `json:"cumulative"`
	RunID      string    `json:"run_id"`
}

// AdjustmentsResponse is the body of GET /api/v1/stocks/:code/adjustments.
type AdjustmentsResponse struct {
	Code      string         `json:"code"`
	CorpCode  string         `json:"corp_code"`
	Name      string         `json:"name"`
	Dividends []DividendView `json:"dividends"`
	Trail     []TrailView    `json:"trail"`
	Factors   []FactorView   `json:"factors,omitempty"`
}

// GetAdjustments returns the dividends and corporate-action trail of a stock.
func (s *Server) GetAdjustments(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	years, err := s.queryYears(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := s.stockStore.GetByCode(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "stock not found"})
		return
	}
	if err != nil {
		s.internalError(c, "get stock", err)
		return
	}

	records, err := s.dividendStore.GetByStock(ctx, st.ID, years.From, years.To)
	if err != nil {
		s.internalError(c, "get dividends", err)
		return
	}
	trail, err := s.dividendStore.GetTrail(ctx, st.ID, years.From, years.To)
	if err != nil {
		s.internalError(c, "get trail", err)
		return
	}

	resp := AdjustmentsResponse{
		Code:      st.Code,
		CorpCode:  st.CorpCode,
		Name:      st.Name,
		Dividends: make([]DividendView, 0, len(records)),
		Trail:     make([]TrailView, 0, len(trail)),
	}
	for _, r := range records {
		resp.Dividends = append(resp.Dividends, DividendView{
			Year:                     r.Year,
			ReportCode:               r.ReportCode,
			DividendPerShare:         nullString(r.DividendPerShare.Valid, r.DividendPerShare.Decimal.String()),
			AdjustedRatio:            nullString(r.AdjustedRatio.Valid, r.AdjustedRatio.Decimal.String()),
			AdjustedDividendPerShare: nullString(r.AdjustedDividendPerShare.Valid, r.AdjustedDividendPerShare.Decimal.String()),
			ExDividendDate:           r.ExDividendDate,
		})
	}
	for _, t := range trail {
		resp.Trail = append(resp.Trail, TrailView{
			Year:         t.Year,
			Seq:          t.Seq,
			EventDate:    t.EventDate,
			DateFallback: t.DateFallback,
			Kind:         string(t.Kind),
			Source:       string(t.Feed),
			Factor:       t.Factor.String(),
			Cumulative:   t.Cumulative.String(),
		})
	}

	if s.factorStore != nil {
		points, err := s.factorStore.GetByStock(ctx, st.Code, years.From, years.To)
		if err != nil {
			s.logger.Warn("factor time series unavailable", zap.String("stock_code", st.Code), zap.Error(err))
		}
		for _, p := range points {
			resp.Factors = append(resp.Factors, FactorView{
				Year:       p.Year,
				Seq:        p.Seq,
				EventDate:  p.EventDate,
				Kind:       string(p.Kind),
				Cumulative: p.Cumulative.String(),
				RunID:      p.RunID,
			})
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) queryYears(c *gin.Context) (domain.YearRange, error) {
	years := s.defaultYears
	if v := c.Query("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return years, errors.New("invalid from")
		}
		years.From = n
	}
	if v := c.Query("to"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return years, errors.New("invalid to")
		}
		years.To = n
	}
	return years, years.Validate()
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.logger.Error(op, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + ": " + err.Error()})
}

func nullString(valid bool, s string) *string {
	if !valid {
		return nil
	}
	return &s
}
