package reporting

import (
	"strings"

	"github.com/shopspring/decimal"
)

// RenderCSV renders one row per dividend record.
func RenderCSV(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("code,corp_code,year,reprt_code,dividend_per_share,adjusted_ratio,")
	sb.WriteString("adjusted_dividend_per_share,ex_dividend_date\n")

	// Rows
	for _, st := range r.Stocks {
		for _, d := range st.Dividends {
			exDate := ""
			if d.ExDividendDate != nil {
				exDate = d.ExDividendDate.Format("2006-01-02")
			}
			sb.WriteString(strings.Join([]string{
				st.Stock.Code,
				st.Stock.CorpCode,
				itoa(d.Year),
				d.ReportCode,
				nullDecimal(d.DividendPerShare),
				nullDecimal(d.AdjustedRatio),
				nullDecimal(d.AdjustedDividendPerShare),
				exDate,
			}, ","))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func nullDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
