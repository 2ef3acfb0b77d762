package dart

import (
	"context"
	"encoding/json"
	"time"
)

// Client is the subset of the OpenDART API the adjustment engine reads.
// An empty slice with nil error means the feed had no rows.
type Client interface {
	// IssuanceStatus calls irdsSttus.json.
	IssuanceStatus(ctx context.Context, corpCode string, year int, reportCode string) ([]IssuanceItem, error)

	// Allotment calls alotMatter.json.
	Allotment(ctx context.Context, corpCode string, year int, reportCode string) ([]AllotmentItem, error)

	// SplitResolutions calls dvRs.json for [begin, end].
	SplitResolutions(ctx context.Context, corpCode string, begin, end time.Time) ([]SplitItem, error)

	// MergerResolutions calls mgRs.json for [begin, end].
	MergerResolutions(ctx context.Context, corpCode string, begin, end time.Time) ([]MergerItem, error)
}

// envelope is the common response wrapper of every OpenDART JSON endpoint.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	List    json.RawMessage `json:"list"`
}

// IssuanceItem is one row of irdsSttus.json (capital increase/reduction status).
type IssuanceItem struct {
	RceptNo                 string `json:"rcept_no"`
	CorpCode                string `json:"corp_code"`
	CorpName                string `json:"corp_name"`
	IsuDcrsDe               string `json:"isu_dcrs_de"`
	IsuDcrsStle             string `json:"isu_dcrs_stle"`
	IsuDcrsStockKnd         string `json:"isu_dcrs_stock_knd"`
	IsuDcrsQy               string `json:"isu_dcrs_qy"`
	IsuDcrsMstvdvFvalAmount string `json:"isu_dcrs_mstvdv_fval_amount"`
	IsuDcrsMstvdvAmount     string `json:"isu_dcrs_mstvdv_amount"`
}

// AllotmentItem is one row of alotMatter.json (dividend matters).
type AllotmentItem struct {
	RceptNo  string `json:"rcept_no"`
	CorpCode string `json:"corp_code"`
	Se       string `json:"se"`
	StockKnd string `json:"stock_knd"`
	Thstrm   string `json:"thstrm"`
	Frmtrm   string `json:"frmtrm"`
	Lwfr     string `json:"lwfr"`
	StlmDt   string `json:"stlm_dt"`
}

// SplitItem is one row of dvRs.json (split resolution).
type SplitItem struct {
	RceptNo  string `json:"rcept_no"`
	CorpCode string `json:"corp_code"`
	Bddd     string `json:"bddd"`
	DvMth    string `json:"dv_mth"`
	RtVl     string `json:"rt_vl"`
}

// MergerItem is one row of mgRs.json (merger resolution).
type MergerItem struct {
	RceptNo  string `json:"rcept_no"`
	CorpCode string `json:"corp_code"`
	Bddd     string `json:"bddd"`
	MgStn    string `json:"mg_stn"`
	RtVl     string `json:"rt_vl"`
}
