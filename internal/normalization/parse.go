package normalization

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayouts are the date encodings seen across OpenDART feeds.
var dateLayouts = []string{
	"2006-01-02",
	"2006.01.02",
	"20060102",
	"2006/01/02",
	"2006년 1월 2일",
}

// ParseDate parses a disclosure date. When s is absent or unparseable it
// returns December 31 of fallbackYear and fallback=true.
func ParseDate(s string, fallbackYear int) (t time.Time, fallback bool) {
	s = strings.TrimSpace(s)
	if !isMissing(s) {
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, false
			}
		}
		// Some rows carry a trailing period, e.g. "2022.03.02."
		if trimmed := strings.TrimSuffix(s, "."); trimmed != s {
			if parsed, err := time.Parse("2006.01.02", trimmed); err == nil {
				return parsed, false
			}
		}
	}
	return FallbackDate(fallbackYear), true
}

// FallbackDate is the date assigned to events without a usable date.
func FallbackDate(year int) time.Time {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
}

// InYear reports whether t falls on a calendar day of year.
func InYear(t time.Time, year int) bool {
	return t.Year() == year
}

// ParseNumber parses a disclosed numeric field. Thousands separators are
// stripped; "-" and empty strings are treated as missing.
func ParseNumber(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if isMissing(s) {
		return decimal.NullDecimal{}
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func isMissing(s string) bool {
	return s == "" || s == "-"
}
