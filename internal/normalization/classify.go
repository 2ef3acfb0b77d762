package normalization

import (
	"strings"

	"dividend-screener/internal/domain"
)

// Disclosure labels as they appear in feed rows.
const (
	labelPaidIncrease     = "유상증자"
	labelFreeIncrease     = "무상증자"
	labelFreeReduction    = "무상감자"
	labelReduction        = "감자"
	labelSplitMerger      = "분할합병"
	labelStockDividendRow = "주당 주식배당(주)"
	labelCashDividendRow  = "주당 현금배당금(원)"
	labelCommonStock      = "보통주"
)

// ClassifyIssuance maps an irdsSttus isu_dcrs_stle value to an event kind.
// ok is false for types that are not capital-change events (conversions,
// warrant exercises, placeholders) and for unknown text.
func ClassifyIssuance(typeText string) (kind domain.EventKind, ok bool) {
	s := strings.TrimSpace(typeText)
	switch {
	case strings.HasPrefix(s, labelPaidIncrease):
		return domain.EventKindCapitalIncreasePaid, true
	case strings.HasPrefix(s, labelFreeIncrease):
		return domain.EventKindCapitalIncreaseFree, true
	case strings.Contains(s, labelFreeReduction):
		return domain.EventKindCapitalReductionFree, true
	case strings.Contains(s, labelReduction):
		return domain.EventKindCapitalReductionOther, true
	}
	return "", false
}

// ClassifyMerger maps a mgRs merger form to merger or split-merger.
func ClassifyMerger(form string) domain.EventKind {
	if strings.Contains(form, labelSplitMerger) {
		return domain.EventKindSplitMerger
	}
	return domain.EventKindMerger
}

// IsStockDividendRow reports whether an alotMatter row is the stock dividend
// per share line. Only an exact label match counts.
func IsStockDividendRow(se string) bool {
	return strings.TrimSpace(se) == labelStockDividendRow
}

// IsCashDividendRow reports whether an alotMatter row is the cash dividend
// per share line.
func IsCashDividendRow(se string) bool {
	return strings.TrimSpace(se) == labelCashDividendRow
}

// IsCommonStock reports whether a stock kind column refers to common shares.
// Rows without a stock kind are treated as common.
func IsCommonStock(kind string) bool {
	kind = strings.TrimSpace(kind)
	return kind == "" || kind == "-" || kind == labelCommonStock
}
