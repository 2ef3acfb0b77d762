// Package ingestion loads raw per-share cash dividends from alotMatter into
// dividend_info. Adjusted fields are owned by the orchestrator and left alone.
package ingestion

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dividend-screener/internal/dart"
	"dividend-screener/internal/domain"
	"dividend-screener/internal/normalization"
	"dividend-screener/internal/observability"
	"dividend-screener/internal/storage"
)

// DefaultWorkers is the number of stocks ingested concurrently.
const DefaultWorkers = 4

// AllotmentFetcher returns the alotMatter rows of one (corp_code, year).
// Implemented by *gateway.Gateway.
type AllotmentFetcher interface {
	FetchAllotment(ctx context.Context, corpCode string, year int) ([]dart.AllotmentItem, error)
}

// Ingester writes raw dividend records.
type Ingester struct {
	fetcher       AllotmentFetcher
	stockStore    storage.StockStore
	dividendStore storage.DividendStore
	workers       int
	reportCode    string
	logger        *zap.Logger
}

// Options contains configuration for creating an Ingester.
type Options struct {
	Fetcher       AllotmentFetcher
	StockStore    storage.StockStore
	DividendStore storage.DividendStore
	Workers       int    // Default: DefaultWorkers
	ReportCode    string // Default: annual report
	Logger        *zap.Logger
}

// New creates a new Ingester.
func New(opts Options) *Ingester {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	reportCode := opts.ReportCode
	if reportCode == "" {
		reportCode = domain.ReportCodeAnnual
	}
	return &Ingester{
		fetcher:       opts.Fetcher,
		stockStore:    opts.StockStore,
		dividendStore: opts.DividendStore,
		workers:       workers,
		reportCode:    reportCode,
		logger:        logger.Named("ingestion"),
	}
}

// Result summarizes one ingestion run.
type Result struct {
	Stocks   int
	Written  int // dividend records upserted
	NoData   int // (stock, year) windows without a positive cash dividend
	Failed   int // (stock, year) windows whose fetch or write failed
	Errors   []string
	Duration time.Duration
}

// Ingest fetches cash dividends for codes over years. An empty codes ingests
// every stock mapped to a corp_code. Failures of one window are recorded and
// do not stop the run.
func (i *Ingester) Ingest(ctx context.Context, codes []string, years domain.YearRange) (*Result, error) {
	if err := years.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	started := time.Now()
	stocks, err := i.listStocks(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}

	result := &Result{Stocks: len(stocks)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)

	for _, st := range stocks {
		st := st
		g.Go(func() error {
			for _, year := range years.Years() {
				if err := gctx.Err(); err != nil {
					return err
				}
				written, err := i.ingestYear(gctx, st, year)

				mu.Lock()
				switch {
				case err != nil:
					result.Failed++
					result.Errors = append(result.Errors, fmt.Sprintf("stock %s year %d: %v", st.Code, year, err))
				case written:
					result.Written++
				default:
					result.NoData++
				}
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
	result.Duration = time.Since(started)

	i.logger.Info("ingestion finished",
		zap.Int("stocks", result.Stocks),
		zap.Int("written", result.Written),
		zap.Int("no_data", result.NoData),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration),
	)
	return result, runErr
}

func (i *Ingester) listStocks(ctx context.Context, codes []string) ([]*domain.Stock, error) {
	var (
		stocks []*domain.Stock
		err    error
	)
	if len(codes) == 0 {
		stocks, err = i.stockStore.ListWithCorpCode(ctx)
	} else {
		stocks, err = i.stockStore.GetByCodes(ctx, codes)
	}
	if err != nil {
		return nil, err
	}

	out := stocks[:0]
	for _, st := range stocks {
		if st.HasCorpCode() {
			out = append(out, st)
			continue
		}
		i.logger.Debug("skipping stock without corp_code", zap.String("stock_code", st.Code))
	}
	return out, nil
}

// ingestYear reports whether a record was written.
func (i *Ingester) ingestYear(ctx context.Context, st *domain.Stock, year int) (bool, error) {
	items, err := i.fetcher.FetchAllotment(ctx, st.CorpCode, year)
	if err != nil {
		return false, err
	}

	rec, ok := CashDividend(items, year)
	if !ok {
		return false, nil
	}
	rec.StockID = st.ID
	rec.StockCode = st.Code
	rec.ReportCode = i.reportCode

	if err := i.dividendStore.Upsert(ctx, rec); err != nil {
		return false, fmt.Errorf("upsert dividend: %w", err)
	}
	observability.RecordDividendIngested()
	return true, nil
}

// CashDividend extracts the common-stock cash dividend per share from alotMatter
// rows. The largest positive current-term value wins; its settlement date
// becomes the ex-dividend date when it parses. ok is false when no row carries
// a positive value.
func CashDividend(items []dart.AllotmentItem, year int) (*domain.DividendRecord, bool) {
	var (
		best     decimal.Decimal
		bestDate *time.Time
		found    bool
	)
	for _, it := range items {
		if !normalization.IsCashDividendRow(it.Se) || !normalization.IsCommonStock(it.StockKnd) {
			continue
		}
		v := normalization.ParseNumber(it.Thstrm)
		if !v.Valid || !v.Decimal.IsPositive() {
			continue
		}
		if found && !v.Decimal.GreaterThan(best) {
			continue
		}
		best, found = v.Decimal, true
		bestDate = nil
		if d, fallback := normalization.ParseDate(it.StlmDt, year); !fallback {
			bestDate = &d
		}
	}
	if !found {
		return nil, false
	}
	return &domain.DividendRecord{
		Year:             year,
		DividendPerShare: decimal.NullDecimal{Decimal: best, Valid: true},
		ExDividendDate:   bestDate,
	}, true
}
