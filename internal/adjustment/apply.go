package adjustment

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"dividend-screener/internal/domain"
)

// AdjustedScale is the number of decimal places kept for adjusted dividends.
const AdjustedScale = 8

var (
	// ErrInvalidAdjustmentFactor is returned when a cumulative factor is not strictly positive.
	ErrInvalidAdjustmentFactor = errors.New("invalid adjustment factor")

	// ErrNoDividend is returned when a record carries no raw dividend to adjust.
	ErrNoDividend = errors.New("dividend record has no raw dividend")
)

// Apply returns a copy of record with the adjusted dividend set to
// dividend_per_share / cumulative and adjusted_ratio set to cumulative.
// The input record is never modified. Only the raw dividend is read, so
// applying the same factor again yields the same result.
func Apply(record *domain.DividendRecord, cumulative decimal.Decimal) (*domain.DividendRecord, error) {
	if !cumulative.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAdjustmentFactor, cumulative.String())
	}
	if record == nil || !record.HasDividend() {
		return nil, ErrNoDividend
	}

	adjusted := record.Clone()
	adjusted.AdjustedDividendPerShare = decimal.NewNullDecimal(
		record.DividendPerShare.Decimal.Div(cumulative).Round(AdjustedScale),
	)
	adjusted.AdjustedRatio = decimal.NewNullDecimal(cumulative)
	return adjusted, nil
}
