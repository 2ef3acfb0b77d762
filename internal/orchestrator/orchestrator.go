// Package orchestrator runs the corporate-action adjustment over a set of stocks.
// Per stock and year it coordinates: gateway → normalization → aggregation → apply,
// then commits every write of the stock in one transaction.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dividend-screener/internal/adjustment"
	"dividend-screener/internal/domain"
	"dividend-screener/internal/gateway"
	"dividend-screener/internal/normalization"
	"dividend-screener/internal/observability"
	"dividend-screener/internal/storage"
)

// DefaultWorkers is the size of the worker pool.
const DefaultWorkers = 4

// Fetcher returns the raw feeds of one (corp_code, year) window.
// Implemented by *gateway.Gateway.
type Fetcher interface {
	Fetch(ctx context.Context, corpCode string, year int) (*gateway.FeedBatch, error)
}

// Notifier is told about every committed stock.
type Notifier interface {
	NotifyAdjusted(ctx context.Context, adj *domain.EntityAdjustment) error
}

// Orchestrator coordinates recompute runs. Safe for concurrent use.
type Orchestrator struct {
	stockStore    storage.StockStore
	dividendStore storage.DividendStore
	factorStore   storage.FactorTimeseriesStore

	fetcher    Fetcher
	normalizer *normalization.Normalizer
	calculator *adjustment.Calculator
	notifier   Notifier

	workers    int
	reportCode string
	logger     *zap.Logger
	now        func() time.Time
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	StockStore    storage.StockStore
	DividendStore storage.DividendStore
	Fetcher       Fetcher

	// Optional
	FactorStore storage.FactorTimeseriesStore // nil disables the time series
	Normalizer  *normalization.Normalizer
	Calculator  *adjustment.Calculator
	Notifier    Notifier // nil disables notifications

	Workers    int    // default DefaultWorkers
	ReportCode string // report whose dividend is adjusted, default annual
	Logger     *zap.Logger
	Now        func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		stockStore:    opts.StockStore,
		dividendStore: opts.DividendStore,
		factorStore:   opts.FactorStore,
		fetcher:       opts.Fetcher,
		normalizer:    opts.Normalizer,
		calculator:    opts.Calculator,
		notifier:      opts.Notifier,
		workers:       opts.Workers,
		reportCode:    opts.ReportCode,
		logger:        logger.Named("orchestrator"),
		now:           opts.Now,
	}
	if o.normalizer == nil {
		o.normalizer = normalization.New(logger)
	}
	if o.calculator == nil {
		o.calculator = adjustment.NewCalculator(adjustment.DefaultMinFactor, logger)
	}
	if o.workers <= 0 {
		o.workers = DefaultWorkers
	}
	if o.reportCode == "" {
		o.reportCode = domain.ReportCodeAnnual
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// RunResult contains results from one recompute run.
type RunResult struct {
	RunID           string        `json:"run_id"`
	Processed       int           `json:"processed"` // stocks dispatched, including unknown codes
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	RecordsAdjusted int           `json:"records_adjusted"`
	RecordsSkipped  int           `json:"records_skipped"`
	Errors          []string      `json:"errors,omitempty"`
	Duration        time.Duration `json:"duration_ns"`
}

// Recompute adjusts the dividends of the stocks in codes over years.
// An empty codes recomputes every stock mapped to a corp_code.
// Per-stock failures are collected in the result and never abort the run;
// an error is returned only for invalid input, a failed stock listing or
// cancellation of ctx.
func (o *Orchestrator) Recompute(ctx context.Context, codes []string, years domain.YearRange) (*RunResult, error) {
	if err := years.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	started := o.now()
	result := &RunResult{RunID: uuid.NewString()}

	stocks, unknown, err := o.resolveStocks(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("resolve stocks: %w", err)
	}
	for _, code := range unknown {
		result.Processed++
		result.Failed++
		result.Errors = append(result.Errors, fmt.Sprintf("stock %s: %v", code, storage.ErrNotFound))
		observability.RecordEntity("failed")
	}

	o.logger.Info("recompute started",
		zap.String("run_id", result.RunID),
		zap.Int("stocks", len(stocks)),
		zap.Int("from_year", years.From),
		zap.Int("to_year", years.To),
		zap.Int("workers", o.workers),
	)

	var mu sync.Mutex
	jobs := make(chan *domain.Stock)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, st := range stocks {
			select {
			case jobs <- st:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < o.workers; i++ {
		g.Go(func() error {
			for st := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				observability.DefaultMetrics.WorkersBusy.Inc()
				outcome, err := o.processStock(gctx, result.RunID, st, years)
				observability.DefaultMetrics.WorkersBusy.Dec()

				mu.Lock()
				result.merge(st, outcome, err)
				mu.Unlock()

				if err != nil && gctx.Err() != nil {
					return gctx.Err()
				}
			}
			return nil
		})
	}

	runErr := g.Wait()

	sort.Strings(result.Errors)
	result.Duration = o.now().Sub(started)
	observability.RecordRecompute(result.Duration.Seconds(), result.Failed, o.now().Unix())

	o.logger.Info("recompute finished",
		zap.String("run_id", result.RunID),
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Int("records_adjusted", result.RecordsAdjusted),
		zap.Int("records_skipped", result.RecordsSkipped),
		zap.Duration("duration", result.Duration),
	)

	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// stockOutcome is what processStock reports back for one stock.
type stockOutcome struct {
	adjusted int
	skipped  int
	errors   []string
}

func (r *RunResult) merge(st *domain.Stock, outcome *stockOutcome, err error) {
	r.Processed++
	if outcome != nil {
		r.RecordsAdjusted += outcome.adjusted
		r.RecordsSkipped += outcome.skipped
		for _, msg := range outcome.errors {
			r.Errors = append(r.Errors, fmt.Sprintf("stock %s: %s", st.Code, msg))
		}
	}
	if err != nil {
		r.Failed++
		r.Errors = append(r.Errors, fmt.Sprintf("stock %s: %v", st.Code, err))
		observability.RecordEntity("failed")
		return
	}
	r.Succeeded++
	observability.RecordEntity("succeeded")
}

// resolveStocks returns the stocks to process and the requested codes that do not exist.
func (o *Orchestrator) resolveStocks(ctx context.Context, codes []string) ([]*domain.Stock, []string, error) {
	if len(codes) == 0 {
		stocks, err := o.stockStore.ListWithCorpCode(ctx)
		return stocks, nil, err
	}

	unique := dedupe(codes)
	stocks, err := o.stockStore.GetByCodes(ctx, unique)
	if err != nil {
		return nil, nil, err
	}

	found := make(map[string]bool, len(stocks))
	for _, st := range stocks {
		found[st.Code] = true
	}
	var unknown []string
	for _, code := range unique {
		if !found[code] {
			unknown = append(unknown, code)
		}
	}
	return stocks, unknown, nil
}

// processStock runs every year of one stock and commits the result.
func (o *Orchestrator) processStock(ctx context.Context, runID string, st *domain.Stock, years domain.YearRange) (*stockOutcome, error) {
	if !st.HasCorpCode() {
		return nil, fmt.Errorf("%w: stock has no corp_code", storage.ErrInvalidInput)
	}

	logger := o.logger.With(zap.String("run_id", runID), zap.String("stock_code", st.Code))

	records, err := o.dividendStore.GetByStock(ctx, st.ID, years.From, years.To)
	if err != nil {
		return nil, fmt.Errorf("load dividends: %w", err)
	}
	byYear := make(map[int]*domain.DividendRecord, len(records))
	for _, r := range records {
		if r.ReportCode == o.reportCode {
			byYear[r.Year] = r
		}
	}

	outcome := &stockOutcome{}
	adj := &domain.EntityAdjustment{
		RunID:      runID,
		Stock:      *st,
		ComputedAt: o.now().UTC(),
	}

	for _, year := range years.Years() {
		batch, err := o.fetcher.Fetch(ctx, st.CorpCode, year)
		if err != nil {
			return outcome, fmt.Errorf("fetch %d: %w", year, err)
		}

		events := o.normalizer.Normalize(st.Code, batch)
		timeline := o.calculator.Aggregate(events)

		ya := domain.YearAdjustment{
			Year:       year,
			Steps:      timeline.Steps(),
			Cumulative: timeline.FactorAsOf(normalization.FallbackDate(year)),
			Degraded:   batch.Degraded,
		}

		if rec, ok := byYear[year]; ok {
			adjusted, err := adjustment.Apply(rec, ya.Cumulative)
			switch {
			case err == nil:
				ya.Record = adjusted
			case errors.Is(err, adjustment.ErrNoDividend):
				outcome.skipped++
				observability.RecordRecordSkipped("no_dividend")
			default:
				outcome.skipped++
				outcome.errors = append(outcome.errors, fmt.Sprintf("year %d: %v", year, err))
				observability.RecordRecordSkipped("invalid_factor")
				logger.Warn("skipping dividend record", zap.Int("year", year), zap.Error(err))
			}
		}

		if len(ya.Degraded) > 0 {
			logger.Warn("adjusted with degraded feeds",
				zap.Int("year", year),
				zap.Any("feeds", ya.Degraded),
			)
		}
		adj.Years = append(adj.Years, ya)
	}

	if err := o.dividendStore.SaveAdjustments(ctx, adj); err != nil {
		return outcome, fmt.Errorf("save adjustments: %w", err)
	}

	outcome.adjusted = len(adj.AdjustedRecords())
	observability.RecordRecordsAdjusted(outcome.adjusted)

	if o.factorStore != nil {
		if err := o.factorStore.InsertBulk(ctx, adj.FactorPoints()); err != nil {
			logger.Warn("factor time series not written", zap.Error(err))
		}
	}
	if o.notifier != nil {
		if err := o.notifier.NotifyAdjusted(ctx, adj); err != nil {
			logger.Warn("adjustment notification failed", zap.Error(err))
		}
	}

	logger.Debug("stock adjusted",
		zap.Int("years", len(adj.Years)),
		zap.Int("records_adjusted", outcome.adjusted),
	)
	return outcome, nil
}

func dedupe(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
