package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dividend-screener/internal/dart"
	"dividend-screener/internal/dart/stub"
	"dividend-screener/internal/domain"
	"dividend-screener/internal/gateway"
	"dividend-screener/internal/storage/memory"
)

const (
	samsungCode = "005930"
	samsungCorp = "00126380"
	hynixCode   = "000660"
	hynixCorp   = "00164779"
)

type testEnv struct {
	client    *stub.Client
	stocks    *memory.StockStore
	dividends *memory.DividendStore
	factors   *memory.FactorTimeseriesStore
	notifier  *recordingNotifier
}

type recordingNotifier struct {
	mu    sync.Mutex
	codes []string
}

func (n *recordingNotifier) NotifyAdjusted(_ context.Context, adj *domain.EntityAdjustment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, adj.Stock.Code)
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{
		client:    stub.NewClient(),
		stocks:    memory.NewStockStore(),
		dividends: memory.NewDividendStore(),
		factors:   memory.NewFactorTimeseriesStore(),
		notifier:  &recordingNotifier{},
	}
}

func (e *testEnv) orchestrator(workers int) *Orchestrator {
	cfg := gateway.DefaultConfig()
	cfg.CallDelay = 0
	cfg.RateLimitRetries = 0

	return New(Options{
		StockStore:    e.stocks,
		DividendStore: e.dividends,
		FactorStore:   e.factors,
		Fetcher:       gateway.New(e.client, cfg, nil),
		Notifier:      e.notifier,
		Workers:       workers,
	})
}

func (e *testEnv) addStock(t *testing.T, code, corp string, dividends map[int]string) *domain.Stock {
	t.Helper()
	ctx := context.Background()

	st := &domain.Stock{Code: code, CorpCode: corp, Name: code}
	if err := e.stocks.Upsert(ctx, st); err != nil {
		t.Fatalf("Upsert stock: %v", err)
	}
	for year, dps := range dividends {
		rec := &domain.DividendRecord{
			StockID:    st.ID,
			StockCode:  code,
			Year:       year,
			ReportCode: domain.ReportCodeAnnual,
		}
		if dps != "" {
			rec.DividendPerShare = decimal.NewNullDecimal(decimal.RequireFromString(dps))
		}
		if err := e.dividends.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert dividend: %v", err)
		}
	}
	return st
}

func adjustedValue(t *testing.T, e *testEnv, stockID int64, year int) decimal.NullDecimal {
	t.Helper()
	records, err := e.dividends.GetByStock(context.Background(), stockID, year, year)
	if err != nil {
		t.Fatalf("GetByStock: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record for %d, got %d", year, len(records))
	}
	return records[0].AdjustedDividendPerShare
}

func TestRecompute_SplitHalvesDividend(t *testing.T) {
	env := newTestEnv(t)
	st := env.addStock(t, samsungCode, samsungCorp, map[int]string{2021: "1000", 2022: "1000"})
	env.client.AddSplits(samsungCorp, 2022, dart.SplitItem{Bddd: "2022-04-01", DvMth: "액면분할", RtVl: "2"})

	result, err := env.orchestrator(2).Recompute(context.Background(), nil, domain.YearRange{From: 2021, To: 2022})
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	if result.Processed != 1 || result.Succeeded != 1 || result.Failed != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if result.RecordsAdjusted != 2 {
		t.Fatalf("expected 2 adjusted records, got %d", result.RecordsAdjusted)
	}
	if result.RunID == "" {
		t.Fatal("expected run id")
	}

	// A year without events is still written with factor 1.
	if got := adjustedValue(t, env, st.ID, 2021); !got.Decimal.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("2021: expected 1000, got %s", got.Decimal)
	}
	if got := adjustedValue(t, env, st.ID, 2022); !got.Decimal.Equal(decimal.NewFromInt(500)) {
		t.Errorf("2022: expected 500, got %s", got.Decimal)
	}

	trail, err := env.dividends.GetTrail(context.Background(), st.ID, 2021, 2022)
	if err != nil {
		t.Fatalf("GetTrail: %v", err)
	}
	if len(trail) != 1 || trail[0].Kind != domain.EventKindSplit || trail[0].Year != 2022 {
		t.Fatalf("unexpected trail: %+v", trail)
	}

	points, err := env.factors.GetByStock(context.Background(), samsungCode, 2021, 2022)
	if err != nil {
		t.Fatalf("GetByStock: %v", err)
	}
	if len(points) != 1 || points[0].RunID != result.RunID {
		t.Fatalf("unexpected factor points: %+v", points)
	}

	if len(env.notifier.codes) != 1 || env.notifier.codes[0] != samsungCode {
		t.Fatalf("unexpected notifications: %v", env.notifier.codes)
	}
}

func TestRecompute_RawDividendUntouched(t *testing.T) {
	env := newTestEnv(t)
	st := env.addStock(t, samsungCode, samsungCorp, map[int]string{2022: "1444"})
	env.client.AddIssuance(samsungCorp, 2022, dart.IssuanceItem{
		IsuDcrsDe:               "2022.06.01",
		IsuDcrsStle:             "무상증자",
		IsuDcrsQy:               "1",
		IsuDcrsMstvdvFvalAmount: "1",
	})

	if _, err := env.orchestrator(1).Recompute(context.Background(), []string{samsungCode}, domain.YearRange{From: 2022, To: 2022}); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	records, _ := env.dividends.GetByStock(context.Background(), st.ID, 2022, 2022)
	if !records[0].DividendPerShare.Decimal.Equal(decimal.NewFromInt(1444)) {
		t.Fatalf("raw dividend changed: %s", records[0].DividendPerShare.Decimal)
	}
	if !records[0].AdjustedDividendPerShare.Decimal.Equal(decimal.NewFromInt(722)) {
		t.Fatalf("expected 722, got %s", records[0].AdjustedDividendPerShare.Decimal)
	}
	if !records[0].AdjustedRatio.Decimal.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected ratio 2, got %s", records[0].AdjustedRatio.Decimal)
	}
}

func TestRecompute_OnlyEventsOfTheYearCount(t *testing.T) {
	env := newTestEnv(t)
	st := env.addStock(t, samsungCode, samsungCorp, map[int]string{2022: "1000"})
	env.client.AddIssuance(samsungCorp, 2022, dart.IssuanceItem{
		IsuDcrsDe:               "2019-05-10",
		IsuDcrsStle:             "무상증자",
		IsuDcrsQy:               "1",
		IsuDcrsMstvdvFvalAmount: "1",
	})
	env.client.AddSplits(samsungCorp, 2022,
		dart.SplitItem{Bddd: "2023-02-01", DvMth: "액면분할", RtVl: "5"},
		dart.SplitItem{Bddd: "2022-07-01", DvMth: "액면분할", RtVl: "2"},
	)

	if _, err := env.orchestrator(1).Recompute(context.Background(), nil, domain.YearRange{From: 2022, To: 2022}); err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	if got := adjustedValue(t, env, st.ID, 2022); !got.Decimal.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected 500 from the in-year split only, got %s", got.Decimal)
	}
	trail, err := env.dividends.GetTrail(context.Background(), st.ID, 2022, 2022)
	if err != nil {
		t.Fatalf("GetTrail: %v", err)
	}
	if len(trail) != 1 || !trail[0].EventDate.Equal(time.Date(2022, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected trail: %+v", trail)
	}
}

func TestRecompute_MergerOutageStillAdjusts(t *testing.T) {
	env := newTestEnv(t)
	st := env.addStock(t, samsungCode, samsungCorp, map[int]string{2022: "1000"})
	env.client.AddSplits(samsungCorp, 2022, dart.SplitItem{Bddd: "20220401", RtVl: "2"})
	env.client.FailNext(domain.FeedMerger, samsungCorp, 2022,
		&dart.APIError{Endpoint: "mgRs.json", Status: dart.StatusSystemCheck, Message: "maintenance"})

	result, err := env.orchestrator(1).Recompute(context.Background(), nil, domain.YearRange{From: 2022, To: 2022})
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("expected success, got %+v", result)
	}
	if got := adjustedValue(t, env, st.ID, 2022); !got.Decimal.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected 500, got %s", got.Decimal)
	}
}

func TestRecompute_FailureIsolatedPerStock(t *testing.T) {
	env := newTestEnv(t)
	bad := env.addStock(t, samsungCode, samsungCorp, map[int]string{2022: "1000"})
	good := env.addStock(t, hynixCode, hynixCorp, map[int]string{2022: "1200"})
	env.client.AddSplits(hynixCorp, 2022, dart.SplitItem{Bddd: "2022-03-02", RtVl: "4"})

	env.dividends.FailSave = func(stockID int64) error {
		if stockID == bad.ID {
			return errors.New("connection reset")
		}
		return nil
	}

	result, err := env.orchestrator(2).Recompute(context.Background(), nil, domain.YearRange{From: 2022, To: 2022})
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if result.Processed != 2 || result.Succeeded != 1 || result.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], samsungCode) {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	if got := adjustedValue(t, env, bad.ID, 2022); got.Valid {
		t.Errorf("failed stock must not be adjusted, got %s", got.Decimal)
	}
	if got := adjustedValue(t, env, good.ID, 2022); !got.Decimal.Equal(decimal.NewFromInt(300)) {
		t.Errorf("expected 300, got %s", got.Decimal)
	}
}

func TestRecompute_UnknownAndDuplicateCodes(t *testing.T) {
	env := newTestEnv(t)
	env.addStock(t, samsungCode, samsungCorp, map[int]string{2022: "1000"})

	result, err := env.orchestrator(4).Recompute(context.Background(),
		[]string{samsungCode, samsungCode, "999999"}, domain.YearRange{From: 2022, To: 2022})
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if result.Processed != 2 || result.Succeeded != 1 || result.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", result)
	}

	// Four feed calls for a single pass over the stock.
	if calls := env.client.Calls(); len(calls) != 4 {
		t.Fatalf("expected 4 feed calls, got %d: %v", len(calls), calls)
	}
}

func TestRecompute_MissingDividendSkipped(t *testing.T) {
	env := newTestEnv(t)
	env.addStock(t, samsungCode, samsungCorp, map[int]string{2022: ""})

	result, err := env.orchestrator(1).Recompute(context.Background(), nil, domain.YearRange{From: 2022, To: 2022})
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if result.Succeeded != 1 || result.RecordsSkipped != 1 || result.RecordsAdjusted != 0 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("missing dividend is not an error: %v", result.Errors)
	}
}

func TestRecompute_StockWithoutCorpCodeFails(t *testing.T) {
	env := newTestEnv(t)
	env.addStock(t, "123456", "", nil)

	result, err := env.orchestrator(1).Recompute(context.Background(), []string{"123456"}, domain.YearRange{From: 2022, To: 2022})
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("expected failure, got %+v", result)
	}
	if len(env.client.Calls()) != 0 {
		t.Fatal("expected no feed calls")
	}
}

func TestRecompute_InvalidYears(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.orchestrator(1).Recompute(context.Background(), nil, domain.YearRange{From: 2023, To: 2022}); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestRecompute_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	env.addStock(t, samsungCode, samsungCorp, map[int]string{2022: "1000"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := env.orchestrator(2).Recompute(ctx, nil, domain.YearRange{From: 2022, To: 2022}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("recompute did not stop after cancellation")
	}
}
