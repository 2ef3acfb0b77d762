// Package adjustment computes per-event adjustment factors, folds them into a
// cumulative timeline and applies the result to dividend records.
package adjustment

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dividend-screener/internal/domain"
	"dividend-screener/internal/observability"
)

// DefaultMinFactor is the floor substituted for non-positive factors.
var DefaultMinFactor = decimal.RequireFromString("0.0001")

var one = decimal.NewFromInt(1)

// Fallback reasons reported by the calculator.
const (
	reasonMissingField    = "missing_field"
	reasonPayloadMismatch = "payload_mismatch"
	reasonNonPositive     = "non_positive_ratio"
	reasonFloored         = "floored"
)

// Calculator derives factors from events. It never fails: unusable inputs
// produce the neutral factor 1 and non-positive results are floored.
type Calculator struct {
	minFactor decimal.Decimal
	logger    *zap.Logger
}

// NewCalculator creates a Calculator. A non-positive minFactor selects DefaultMinFactor.
func NewCalculator(minFactor decimal.Decimal, logger *zap.Logger) *Calculator {
	if !minFactor.IsPositive() {
		minFactor = DefaultMinFactor
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{minFactor: minFactor, logger: logger.Named("factor")}
}

// MinFactor returns the configured floor.
func (c *Calculator) MinFactor() decimal.Decimal {
	return c.minFactor
}

// Factor returns the multiplicative adjustment factor of e. The result is
// always strictly positive.
//
//	capital increase (paid, free)   1 + qy/face
//	capital reduction (free, other) 1 - qy/face
//	stock dividend                  1 + ratio
//	split                           ratio (neutral when ratio <= 0)
//	merger, split-merger            1 + ratio
//
// A missing or zero face value counts as 1.
func (c *Calculator) Factor(e domain.CorporateActionEvent) decimal.Decimal {
	f, reason := c.raw(e)
	if reason != "" {
		c.fallback(e, reason)
	}
	if !f.IsPositive() {
		c.fallback(e, reasonFloored)
		return c.minFactor
	}
	return f
}

func (c *Calculator) raw(e domain.CorporateActionEvent) (decimal.Decimal, string) {
	switch e.Kind {
	case domain.EventKindCapitalIncreasePaid, domain.EventKindCapitalIncreaseFree,
		domain.EventKindCapitalReductionFree, domain.EventKindCapitalReductionOther:
		p, ok := e.Payload.(domain.IssuanceFields)
		if !ok {
			return one, reasonPayloadMismatch
		}
		if !p.Quantity.Valid {
			return one, reasonMissingField
		}
		face := one
		if p.FaceValue.Valid && !p.FaceValue.Decimal.IsZero() {
			face = p.FaceValue.Decimal
		}
		delta := p.Quantity.Decimal.Div(face)
		if e.Kind == domain.EventKindCapitalReductionFree || e.Kind == domain.EventKindCapitalReductionOther {
			return one.Sub(delta), ""
		}
		return one.Add(delta), ""

	case domain.EventKindStockDividend:
		p, ok := e.Payload.(domain.StockDividendFields)
		if !ok {
			return one, reasonPayloadMismatch
		}
		if !p.Ratio.Valid {
			return one, reasonMissingField
		}
		return one.Add(p.Ratio.Decimal), ""

	case domain.EventKindSplit:
		p, ok := e.Payload.(domain.SplitFields)
		if !ok {
			return one, reasonPayloadMismatch
		}
		if !p.Ratio.Valid {
			return one, reasonMissingField
		}
		if !p.Ratio.Decimal.IsPositive() {
			return one, reasonNonPositive
		}
		return p.Ratio.Decimal, ""

	case domain.EventKindMerger, domain.EventKindSplitMerger:
		p, ok := e.Payload.(domain.MergerFields)
		if !ok {
			return one, reasonPayloadMismatch
		}
		if !p.Ratio.Valid {
			return one, reasonMissingField
		}
		return one.Add(p.Ratio.Decimal), ""
	}

	return one, reasonPayloadMismatch
}

func (c *Calculator) fallback(e domain.CorporateActionEvent, reason string) {
	observability.RecordFactorFallback(e.Kind.String(), reason)
	c.logger.Warn("factor fallback",
		zap.String("stock_code", e.StockCode),
		zap.String("kind", e.Kind.String()),
		zap.Time("event_date", e.EventDate),
		zap.String("reason", reason),
	)
}
