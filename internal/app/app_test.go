package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dividend-screener/internal/config"
	"dividend-screener/internal/dart"
	"dividend-screener/internal/dart/stub"
	"dividend-screener/internal/domain"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.DART.APIKey = "test-key"
	cfg.DART.CallDelay = config.Duration{}
	cfg.DART.RateLimitRetries = 0
	cfg.Adjustment.FromYear = 2021
	cfg.Adjustment.ToYear = 2022
	return cfg
}

func TestNew_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Adjustment.Timeseries = true
	require.NoError(t, cfg.Validate())

	client := stub.NewClient()
	a, err := New(ctx, cfg, nil, Options{Client: client})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Stores.Factors, "time series falls back to memory without a dsn")
	assert.Equal(t, domain.YearRange{From: 2021, To: 2022}, a.Years())

	n, err := a.ImportStocks(ctx, []*domain.Stock{{Code: "005930", CorpCode: "00126380", Name: "Samsung"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	client.AddAllotment("00126380", 2022, dart.AllotmentItem{
		Se: "주당 현금배당금(원)", StockKnd: "보통주", Thstrm: "1,444",
	})

	ingested, err := a.Ingester.Ingest(ctx, nil, a.Years())
	require.NoError(t, err)
	assert.Equal(t, 1, ingested.Written)

	res, err := a.Orchestrator.Recompute(ctx, nil, a.Years())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.RecordsAdjusted)
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Backend = "sqlite"

	_, err := New(context.Background(), cfg, nil, Options{Client: stub.NewClient()})
	assert.Error(t, err)
}

func TestReadStocksCSV(t *testing.T) {
	input := "code,corp_code,name,market\n005930,00126380,삼성전자,KOSPI\n035720,,카카오,KOSPI\n"

	stocks, err := ReadStocksCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, stocks, 2)
	assert.Equal(t, "00126380", stocks[0].CorpCode)
	assert.False(t, stocks[1].HasCorpCode())
}

func TestReadStocksCSV_Invalid(t *testing.T) {
	for name, input := range map[string]string{
		"bad header":    "ticker,corp,name,market\n",
		"short corp":    "code,corp_code,name,market\n005930,1234,x,KOSPI\n",
		"missing field": "code,corp_code,name,market\n005930,00126380,x\n",
		"empty code":    "code,corp_code,name,market\n,00126380,x,KOSPI\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadStocksCSV(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}
