package domain

// Stock is a listed security tracked by the screener.
// Corresponds to stocks table.
type Stock struct {
	ID       int64  // primary key
	Code     string // exchange ticker, e.g. "005930"
	CorpCode string // 8-digit OpenDART corp_code, empty when unmapped
	Name     string
	Market   string // "KOSPI" | "KOSDAQ" | ""
}

// HasCorpCode reports whether the stock can be queried against OpenDART.
func (s *Stock) HasCorpCode() bool {
	return len(s.CorpCode) == 8
}
