package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// YearRange is an inclusive range of business years.
type YearRange struct {
	From int
	To   int
}

// Year range limits.
const (
	MinYear      = 1990
	MaxYearSpan  = 100
	maxYearAhead = 1
)

// MaxYear is the last business year a range may reach: next year.
func MaxYear(now time.Time) int {
	return now.Year() + maxYearAhead
}

// Validate checks that the range is non-empty, starts no earlier than
// MinYear, ends no later than MaxYear and spans at most MaxYearSpan years.
func (r YearRange) Validate() error {
	return r.validateAt(time.Now())
}

func (r YearRange) validateAt(now time.Time) error {
	if r.From <= 0 || r.To <= 0 {
		return fmt.Errorf("year range must be positive: %d..%d", r.From, r.To)
	}
	if r.From > r.To {
		return fmt.Errorf("year range inverted: %d..%d", r.From, r.To)
	}
	if r.From < MinYear {
		return fmt.Errorf("year range starts before %d: %d..%d", MinYear, r.From, r.To)
	}
	if last := MaxYear(now); r.To > last {
		return fmt.Errorf("year range ends after %d: %d..%d", last, r.From, r.To)
	}
	if span := r.To - r.From + 1; span > MaxYearSpan {
		return fmt.Errorf("year range spans %d years, limit %d", span, MaxYearSpan)
	}
	return nil
}

// Years returns every year in the range, ascending.
// An invalid range yields nil.
func (r YearRange) Years() []int {
	if r.validateAt(time.Now()) != nil {
		return nil
	}
	years := make([]int, 0, r.To-r.From+1)
	for y := r.From; y <= r.To; y++ {
		years = append(years, y)
	}
	return years
}

// AdjustmentStep is one event of an ordered timeline with its factor and
// the running product up to and including it.
type AdjustmentStep struct {
	Seq        int // 0-based position in the ordered timeline
	Event      CorporateActionEvent
	Factor     decimal.Decimal
	Cumulative decimal.Decimal
}

// YearAdjustment is the outcome for one (stock, year) window.
type YearAdjustment struct {
	Year       int
	Steps      []AdjustmentStep
	Cumulative decimal.Decimal
	Degraded   []Feed          // feeds that returned nothing because of an upstream failure
	Record     *DividendRecord // adjusted record, nil when no dividend exists for the year
}

// EntityAdjustment is everything one worker computed for a stock.
// It is persisted atomically.
type EntityAdjustment struct {
	RunID      string
	Stock      Stock
	Years      []YearAdjustment
	ComputedAt time.Time
}

// AdjustedRecords returns the records that carry a new adjusted value.
func (e *EntityAdjustment) AdjustedRecords() []*DividendRecord {
	var out []*DividendRecord
	for _, y := range e.Years {
		if y.Record != nil {
			out = append(out, y.Record)
		}
	}
	return out
}

// FactorPoint is one point of the cumulative factor time series.
// Corresponds to adjustment_factor_timeseries table in ClickHouse.
type FactorPoint struct {
	StockCode  string
	Year       int
	Seq        int
	EventDate  time.Time
	Kind       EventKind
	Factor     decimal.Decimal
	Cumulative decimal.Decimal
	RunID      string
}

// FactorPoints flattens every step of the adjustment into time series points.
func (e *EntityAdjustment) FactorPoints() []*FactorPoint {
	var points []*FactorPoint
	for _, y := range e.Years {
		for _, s := range y.Steps {
			points = append(points, &FactorPoint{
				StockCode:  e.Stock.Code,
				Year:       y.Year,
				Seq:        s.Seq,
				EventDate:  s.Event.EventDate,
				Kind:       s.Event.Kind,
				Factor:     s.Factor,
				Cumulative: s.Cumulative,
				RunID:      e.RunID,
			})
		}
	}
	return points
}

// CorporateActionRecord is a persisted step of the corporate-action trail.
// Corresponds to corporate_action_events table.
type CorporateActionRecord struct {
	ID           int64
	StockID      int64
	StockCode    string
	Year         int
	Seq          int
	EventDate    time.Time
	DateFallback bool
	Kind         EventKind
	Feed         Feed
	Factor       decimal.Decimal
	Cumulative   decimal.Decimal
}

// Validate checks that the adjustment names a stored stock and that every
// step carries a known event kind.
func (a *EntityAdjustment) Validate() error {
	if a.Stock.ID == 0 {
		return fmt.Errorf("adjustment for stock %q has no id", a.Stock.Code)
	}
	for _, y := range a.Years {
		for _, st := range y.Steps {
			if !st.Event.Kind.IsValid() {
				return fmt.Errorf("year %d step %d: unknown event kind %q", y.Year, st.Seq, st.Event.Kind)
			}
		}
	}
	return nil
}

// TrailRecords converts every step into the rows persisted as the
// corporate-action trail, ordered by (year, seq).
func (e *EntityAdjustment) TrailRecords() []*CorporateActionRecord {
	var out []*CorporateActionRecord
	for _, y := range e.Years {
		for _, s := range y.Steps {
			out = append(out, &CorporateActionRecord{
				StockID:      e.Stock.ID,
				StockCode:    e.Stock.Code,
				Year:         y.Year,
				Seq:          s.Seq,
				EventDate:    s.Event.EventDate,
				DateFallback: s.Event.DateFallback,
				Kind:         s.Event.Kind,
				Feed:         s.Event.Feed,
				Factor:       s.Factor,
				Cumulative:   s.Cumulative,
			})
		}
	}
	return out
}
