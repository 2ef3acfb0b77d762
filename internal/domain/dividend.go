package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReportCodeAnnual is the OpenDART report code of the annual business report.
const ReportCodeAnnual = "11011"

// DividendRecord is one per-share dividend observation for a (stock, year, report).
// Corresponds to dividend_info table.
//
// DividendPerShare is the raw value as disclosed and is never written by the
// adjustment engine. AdjustedDividendPerShare and AdjustedRatio are derived.
type DividendRecord struct {
	ID                       int64
	StockID                  int64
	StockCode                string
	Year                     int
	ReportCode               string
	DividendPerShare         decimal.NullDecimal
	AdjustedDividendPerShare decimal.NullDecimal
	AdjustedRatio            decimal.NullDecimal
	ExDividendDate           *time.Time
}

// HasDividend reports whether a raw dividend value is present.
func (r *DividendRecord) HasDividend() bool {
	return r.DividendPerShare.Valid
}

// Clone returns a deep copy of the record.
func (r *DividendRecord) Clone() *DividendRecord {
	c := *r
	if r.ExDividendDate != nil {
		d := *r.ExDividendDate
		c.ExDividendDate = &d
	}
	return &c
}
