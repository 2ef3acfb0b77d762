package reporting

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Dividend Adjustment Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Years: %d-%d\n\n", r.Years.From, r.Years.To))

	// Summary
	s := r.Summary()
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Stocks | %d |\n", s.Stocks))
	sb.WriteString(fmt.Sprintf("| Dividend Records | %d |\n", s.Dividends))
	sb.WriteString(fmt.Sprintf("| Adjusted Records | %d |\n", s.Adjusted))
	sb.WriteString(fmt.Sprintf("| Corporate Actions | %d |\n", s.Events))
	sb.WriteString(fmt.Sprintf("| Fallback Event Dates | %d |\n", s.FallbackDates))
	sb.WriteString("\n")

	if len(r.Missing) > 0 {
		sb.WriteString("### Untracked Codes\n\n")
		for _, c := range r.Missing {
			sb.WriteString(fmt.Sprintf("- %s\n", c))
		}
		sb.WriteString("\n")
	}

	// Per stock
	for _, st := range r.Stocks {
		sb.WriteString(fmt.Sprintf("## %s %s\n\n", st.Stock.Code, st.Stock.Name))

		if len(st.Dividends) == 0 {
			sb.WriteString("No dividend records.\n\n")
		} else {
			sb.WriteString("| Year | Report | DPS | Ratio | Adjusted DPS |\n")
			sb.WriteString("|------|--------|-----|-------|--------------|\n")
			for _, d := range st.Dividends {
				sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
					d.Year, d.ReportCode,
					orDash(nullDecimal(d.DividendPerShare)),
					orDash(nullDecimal(d.AdjustedRatio)),
					orDash(nullDecimal(d.AdjustedDividendPerShare))))
			}
			sb.WriteString("\n")
		}

		if len(st.Trail) > 0 {
			sb.WriteString("| Year | Seq | Date | Kind | Source | Factor | Cumulative |\n")
			sb.WriteString("|------|-----|------|------|--------|--------|------------|\n")
			for _, t := range st.Trail {
				date := t.EventDate.Format("2006-01-02")
				if t.DateFallback {
					date += "*"
				}
				sb.WriteString(fmt.Sprintf("| %d | %d | %s | %s | %s | %s | %s |\n",
					t.Year, t.Seq, date, t.Kind, t.Feed, t.Factor.String(), t.Cumulative.String()))
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
