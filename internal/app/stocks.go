package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"dividend-screener/internal/domain"
)

// stockColumns is the header of a stock list file.
var stockColumns = []string{"code", "corp_code", "name", "market"}

// ReadStocksCSV parses a stock list with the header code,corp_code,name,market.
// corp_code may be empty for stocks not yet mapped to OpenDART.
func ReadStocksCSV(r io.Reader) ([]*domain.Stock, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(stockColumns)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, col := range stockColumns {
		if strings.TrimPrefix(strings.TrimSpace(header[i]), "\ufeff") != col {
			return nil, fmt.Errorf("unexpected header %v, want %v", header, stockColumns)
		}
	}

	var stocks []*domain.Stock
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		st := &domain.Stock{
			Code:     strings.TrimSpace(rec[0]),
			CorpCode: strings.TrimSpace(rec[1]),
			Name:     strings.TrimSpace(rec[2]),
			Market:   strings.TrimSpace(rec[3]),
		}
		if st.Code == "" {
			return nil, fmt.Errorf("line %d: empty code", line)
		}
		if st.CorpCode != "" && !st.HasCorpCode() {
			return nil, fmt.Errorf("line %d: corp_code %q must have 8 digits", line, st.CorpCode)
		}
		stocks = append(stocks, st)
	}
	return stocks, nil
}

// ImportStocks upserts stocks and returns how many were written.
func (a *App) ImportStocks(ctx context.Context, stocks []*domain.Stock) (int, error) {
	for i, st := range stocks {
		if err := a.Stores.Stocks.Upsert(ctx, st); err != nil {
			return i, fmt.Errorf("upsert %s: %w", st.Code, err)
		}
	}
	return len(stocks), nil
}
