// Package reporting renders stored adjustments as Markdown and CSV.
package reporting

import (
	"time"

	"dividend-screener/internal/domain"
)

// Report is the adjustment state of a set of stocks over a year range.
type Report struct {
	GeneratedAt time.Time
	Years       domain.YearRange
	Stocks      []StockReport
	Missing     []string // requested codes that are not tracked
}

// StockReport holds one stock with its dividends and trail.
type StockReport struct {
	Stock     domain.Stock
	Dividends []*domain.DividendRecord
	Trail     []*domain.CorporateActionRecord
}

// AdjustedCount returns the number of records carrying an adjusted value.
func (s *StockReport) AdjustedCount() int {
	n := 0
	for _, d := range s.Dividends {
		if d.AdjustedDividendPerShare.Valid {
			n++
		}
	}
	return n
}

// Summary holds report-wide counts.
type Summary struct {
	Stocks        int
	Dividends     int
	Adjusted      int
	Events        int
	FallbackDates int
}

// Summary computes report-wide counts.
func (r *Report) Summary() Summary {
	var s Summary
	s.Stocks = len(r.Stocks)
	for i := range r.Stocks {
		st := &r.Stocks[i]
		s.Dividends += len(st.Dividends)
		s.Adjusted += st.AdjustedCount()
		s.Events += len(st.Trail)
		for _, t := range st.Trail {
			if t.DateFallback {
				s.FallbackDates++
			}
		}
	}
	return s
}
