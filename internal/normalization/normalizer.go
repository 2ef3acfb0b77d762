// Package normalization turns raw OpenDART feed rows into typed corporate
// action events.
package normalization

import (
	"go.uber.org/zap"

	"dividend-screener/internal/dart"
	"dividend-screener/internal/domain"
	"dividend-screener/internal/gateway"
	"dividend-screener/internal/observability"
)

// Normalizer converts a FeedBatch into events. It is stateless apart from
// its logger.
type Normalizer struct {
	logger *zap.Logger
}

// New creates a Normalizer.
func New(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger.Named("normalizer")}
}

// Normalize returns the events of batch in feed order (irdsSttus, alotMatter,
// dvRs, mgRs), each feed in row order. Rows that cannot be classified are
// dropped and logged, as are events dated outside the batch year. The output
// is not date-sorted.
func (n *Normalizer) Normalize(stockCode string, batch *gateway.FeedBatch) []domain.CorporateActionEvent {
	if batch == nil {
		return nil
	}

	var events []domain.CorporateActionEvent
	events = append(events, n.parseIssuance(stockCode, batch.Year, batch.Issuance)...)
	events = append(events, n.parseAllotment(stockCode, batch.Year, batch.Allotment)...)
	events = append(events, n.parseSplits(stockCode, batch.Year, batch.Splits)...)
	events = append(events, n.parseMergers(stockCode, batch.Year, batch.Mergers)...)
	events = n.withinYear(stockCode, batch.Year, events)

	for _, e := range events {
		observability.RecordEventNormalized(e.Kind.String())
	}
	return events
}

// withinYear keeps events dated January 1 through December 31 of year.
// irdsSttus in particular reports the issuer's whole capital-change history.
func (n *Normalizer) withinYear(stockCode string, year int, events []domain.CorporateActionEvent) []domain.CorporateActionEvent {
	kept := events[:0]
	for _, e := range events {
		if InYear(e.EventDate, year) {
			kept = append(kept, e)
			continue
		}
		n.logger.Debug("dropping event outside query year",
			zap.String("stock_code", stockCode),
			zap.Int("year", year),
			zap.String("feed", string(e.Feed)),
			zap.Time("event_date", e.EventDate),
		)
		observability.RecordEventDropped(string(e.Feed))
	}
	return kept
}

func (n *Normalizer) parseIssuance(stockCode string, year int, items []dart.IssuanceItem) []domain.CorporateActionEvent {
	var events []domain.CorporateActionEvent
	for _, item := range items {
		kind, ok := ClassifyIssuance(item.IsuDcrsStle)
		if !ok {
			if !isMissing(item.IsuDcrsStle) {
				n.logger.Warn("dropping unclassified issuance row",
					zap.String("stock_code", stockCode),
					zap.Int("year", year),
					zap.String("type", item.IsuDcrsStle),
				)
				observability.RecordEventDropped(string(domain.FeedIssuance))
			}
			continue
		}

		date, fallback := ParseDate(item.IsuDcrsDe, year)
		events = append(events, domain.CorporateActionEvent{
			StockCode:    stockCode,
			EventDate:    date,
			DateFallback: fallback,
			Kind:         kind,
			Feed:         domain.FeedIssuance,
			Payload: domain.IssuanceFields{
				TypeText:  item.IsuDcrsStle,
				StockKind: item.IsuDcrsStockKnd,
				Quantity:  ParseNumber(item.IsuDcrsQy),
				FaceValue: ParseNumber(item.IsuDcrsMstvdvFvalAmount),
			},
		})
	}
	return events
}

// parseAllotment keeps only the common-stock stock dividend row. A row with a
// missing or zero ratio means no stock dividend was paid and yields no event.
func (n *Normalizer) parseAllotment(stockCode string, year int, items []dart.AllotmentItem) []domain.CorporateActionEvent {
	var events []domain.CorporateActionEvent
	for _, item := range items {
		if !IsStockDividendRow(item.Se) || !IsCommonStock(item.StockKnd) {
			continue
		}
		ratio := ParseNumber(item.Thstrm)
		if !ratio.Valid || ratio.Decimal.IsZero() {
			continue
		}

		date, fallback := ParseDate(item.StlmDt, year)
		events = append(events, domain.CorporateActionEvent{
			StockCode:    stockCode,
			EventDate:    date,
			DateFallback: fallback,
			Kind:         domain.EventKindStockDividend,
			Feed:         domain.FeedAllotment,
			Payload: domain.StockDividendFields{
				StockKind: item.StockKnd,
				Ratio:     ratio,
			},
		})
	}
	return events
}

func (n *Normalizer) parseSplits(stockCode string, year int, items []dart.SplitItem) []domain.CorporateActionEvent {
	events := make([]domain.CorporateActionEvent, 0, len(items))
	for _, item := range items {
		date, fallback := ParseDate(item.Bddd, year)
		events = append(events, domain.CorporateActionEvent{
			StockCode:    stockCode,
			EventDate:    date,
			DateFallback: fallback,
			Kind:         domain.EventKindSplit,
			Feed:         domain.FeedSplit,
			Payload: domain.SplitFields{
				Form:  item.DvMth,
				Ratio: ParseNumber(item.RtVl),
			},
		})
	}
	return events
}

func (n *Normalizer) parseMergers(stockCode string, year int, items []dart.MergerItem) []domain.CorporateActionEvent {
	events := make([]domain.CorporateActionEvent, 0, len(items))
	for _, item := range items {
		date, fallback := ParseDate(item.Bddd, year)
		events = append(events, domain.CorporateActionEvent{
			StockCode:    stockCode,
			EventDate:    date,
			DateFallback: fallback,
			Kind:         ClassifyMerger(item.MgStn),
			Feed:         domain.FeedMerger,
			Payload: domain.MergerFields{
				Form:  item.MgStn,
				Ratio: ParseNumber(item.RtVl),
			},
		})
	}
	return events
}
