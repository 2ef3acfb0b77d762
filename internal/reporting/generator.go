package reporting

import (
	"context"
	"fmt"
	"time"

	"dividend-screener/internal/domain"
	"dividend-screener/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	stockStore    storage.StockStore
	dividendStore storage.DividendStore
	now           func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(stockStore storage.StockStore, dividendStore storage.DividendStore) *Generator {
	return &Generator{
		stockStore:    stockStore,
		dividendStore: dividendStore,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds a report for codes over years. An empty codes covers every
// stock mapped to a corp_code.
func (g *Generator) Generate(ctx context.Context, codes []string, years domain.YearRange) (*Report, error) {
	if err := years.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	var (
		stocks []*domain.Stock
		err    error
	)
	if len(codes) == 0 {
		stocks, err = g.stockStore.ListWithCorpCode(ctx)
	} else {
		stocks, err = g.stockStore.GetByCodes(ctx, codes)
	}
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}

	r := &Report{
		GeneratedAt: g.now(),
		Years:       years,
		Stocks:      make([]StockReport, 0, len(stocks)),
	}

	found := make(map[string]bool, len(stocks))
	for _, st := range stocks {
		found[st.Code] = true

		dividends, err := g.dividendStore.GetByStock(ctx, st.ID, years.From, years.To)
		if err != nil {
			return nil, fmt.Errorf("dividends of %s: %w", st.Code, err)
		}
		trail, err := g.dividendStore.GetTrail(ctx, st.ID, years.From, years.To)
		if err != nil {
			return nil, fmt.Errorf("trail of %s: %w", st.Code, err)
		}
		r.Stocks = append(r.Stocks, StockReport{Stock: *st, Dividends: dividends, Trail: trail})
	}

	for _, c := range codes {
		if !found[c] {
			r.Missing = append(r.Missing, c)
			found[c] = true
		}
	}
	return r, nil
}
