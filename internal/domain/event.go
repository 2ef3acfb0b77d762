package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind is the closed set of capital-change event kinds.
type EventKind string

const (
	EventKindCapitalIncreasePaid   EventKind = "CAPITAL_INCREASE_PAID"
	EventKindCapitalIncreaseFree   EventKind = "CAPITAL_INCREASE_FREE"
	EventKindCapitalReductionFree  EventKind = "CAPITAL_REDUCTION_FREE"
	EventKindCapitalReductionOther EventKind = "CAPITAL_REDUCTION_OTHER"
	EventKindStockDividend         EventKind = "STOCK_DIVIDEND"
	EventKindSplit                 EventKind = "SPLIT"
	EventKindMerger                EventKind = "MERGER"
	EventKindSplitMerger           EventKind = "SPLIT_MERGER"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks if the kind is one of the known values.
func (k EventKind) IsValid() bool {
	switch k {
	case EventKindCapitalIncreasePaid, EventKindCapitalIncreaseFree,
		EventKindCapitalReductionFree, EventKindCapitalReductionOther,
		EventKindStockDividend, EventKindSplit, EventKindMerger, EventKindSplitMerger:
		return true
	}
	return false
}

// Feed identifies one of the upstream OpenDART disclosure feeds.
type Feed string

const (
	FeedIssuance  Feed = "irdsSttus"  // capital increase/reduction status
	FeedAllotment Feed = "alotMatter" // dividend allotment matters
	FeedSplit     Feed = "dvRs"       // split resolutions
	FeedMerger    Feed = "mgRs"       // merger resolutions
)

// Feeds returns all feeds in the fixed order they are fetched.
func Feeds() []Feed {
	return []Feed{FeedIssuance, FeedAllotment, FeedSplit, FeedMerger}
}

// CorporateActionEvent is a normalized capital-change event for one stock.
// Never mutated after creation.
type CorporateActionEvent struct {
	StockCode    string
	EventDate    time.Time
	DateFallback bool // EventDate was substituted with December 31 of the queried year
	Kind         EventKind
	Feed         Feed
	Payload      EventPayload
}

// EventPayload holds the typed raw attributes of an event.
// Implemented by IssuanceFields, StockDividendFields, SplitFields and MergerFields.
type EventPayload interface {
	SourceFeed() Feed
}

// IssuanceFields are the attributes of an irdsSttus row.
type IssuanceFields struct {
	TypeText  string              // isu_dcrs_stle as disclosed
	StockKind string              // isu_dcrs_stock_knd
	Quantity  decimal.NullDecimal // isu_dcrs_qy
	FaceValue decimal.NullDecimal // isu_dcrs_mstvdv_fval_amount
}

// SourceFeed implements EventPayload.
func (IssuanceFields) SourceFeed() Feed { return FeedIssuance }

// StockDividendFields are the attributes of an alotMatter stock-dividend row.
type StockDividendFields struct {
	StockKind string
	Ratio     decimal.NullDecimal // thstrm
}

// SourceFeed implements EventPayload.
func (StockDividendFields) SourceFeed() Feed { return FeedAllotment }

// SplitFields are the attributes of a dvRs row.
type SplitFields struct {
	Form  string              // dv_mth
	Ratio decimal.NullDecimal // rt_vl
}

// SourceFeed implements EventPayload.
func (SplitFields) SourceFeed() Feed { return FeedSplit }

// MergerFields are the attributes of a mgRs row.
type MergerFields struct {
	Form  string              // mg_stn
	Ratio decimal.NullDecimal // rt_vl
}

// SourceFeed implements EventPayload.
func (MergerFields) SourceFeed() Feed { return FeedMerger }
