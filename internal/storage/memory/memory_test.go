package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dividend-screener/internal/domain"
	"dividend-screener/internal/storage"
)

func TestStockStore_UpsertAndList(t *testing.T) {
	ctx := context.Background()
	store := NewStockStore()

	a := &domain.Stock{Code: "005930", CorpCode: "00126380", Name: "Samsung"}
	b := &domain.Stock{Code: "000660", CorpCode: "00164779", Name: "SK hynix"}
	c := &domain.Stock{Code: "999999", Name: "Unmapped"}
	for _, s := range []*domain.Stock{a, b, c} {
		if err := store.Upsert(ctx, s); err != nil {
			t.Fatalf("Upsert(%s): %v", s.Code, err)
		}
	}

	again := &domain.Stock{Code: "005930", CorpCode: "00126380", Name: "Samsung Electronics"}
	if err := store.Upsert(ctx, again); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if again.ID != a.ID {
		t.Fatalf("expected upsert to keep id %d, got %d", a.ID, again.ID)
	}

	got, err := store.GetByCode(ctx, "005930")
	if err != nil {
		t.Fatalf("GetByCode: %v", err)
	}
	if got.Name != "Samsung Electronics" {
		t.Fatalf("expected updated name, got %q", got.Name)
	}

	mapped, err := store.ListWithCorpCode(ctx)
	if err != nil {
		t.Fatalf("ListWithCorpCode: %v", err)
	}
	if len(mapped) != 2 || mapped[0].Code != "000660" || mapped[1].Code != "005930" {
		t.Fatalf("unexpected mapped stocks: %+v", mapped)
	}

	byCodes, err := store.GetByCodes(ctx, []string{"005930", "missing", "005930", "000660"})
	if err != nil {
		t.Fatalf("GetByCodes: %v", err)
	}
	if len(byCodes) != 2 {
		t.Fatalf("expected 2 stocks, got %d", len(byCodes))
	}

	if _, err := store.GetByCode(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDividendStore_SaveAdjustments(t *testing.T) {
	ctx := context.Background()
	store := NewDividendStore()

	rec := &domain.DividendRecord{
		StockID:          1,
		StockCode:        "005930",
		Year:             2022,
		DividendPerShare: decimal.NewNullDecimal(decimal.NewFromInt(1000)),
	}
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if rec.ReportCode != domain.ReportCodeAnnual {
		t.Fatalf("expected default report code, got %q", rec.ReportCode)
	}

	adjusted := rec.Clone()
	adjusted.AdjustedDividendPerShare = decimal.NewNullDecimal(decimal.NewFromInt(500))
	adjusted.AdjustedRatio = decimal.NewNullDecimal(decimal.NewFromInt(2))

	event := domain.CorporateActionEvent{
		StockCode: "005930",
		EventDate: time.Date(2022, 4, 1, 0, 0, 0, 0, time.UTC),
		Kind:      domain.EventKindSplit,
		Feed:      domain.FeedSplit,
	}
	adj := &domain.EntityAdjustment{
		RunID: "run-1",
		Stock: domain.Stock{ID: 1, Code: "005930"},
		Years: []domain.YearAdjustment{{
			Year:       2022,
			Cumulative: decimal.NewFromInt(2),
			Record:     adjusted,
			Steps: []domain.AdjustmentStep{{
				Seq: 0, Event: event, Factor: decimal.NewFromInt(2), Cumulative: decimal.NewFromInt(2),
			}},
		}},
	}

	if err := store.SaveAdjustments(ctx, adj); err != nil {
		t.Fatalf("SaveAdjustments: %v", err)
	}
	// A second save replaces the trail rather than appending to it.
	if err := store.SaveAdjustments(ctx, adj); err != nil {
		t.Fatalf("SaveAdjustments: %v", err)
	}

	records, err := store.GetByStock(ctx, 1, 2020, 2023)
	if err != nil {
		t.Fatalf("GetByStock: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if !got.DividendPerShare.Decimal.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("raw dividend changed: %s", got.DividendPerShare.Decimal)
	}
	if !got.AdjustedDividendPerShare.Decimal.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected adjusted 500, got %s", got.AdjustedDividendPerShare.Decimal)
	}

	trail, err := store.GetTrail(ctx, 1, 2022, 2022)
	if err != nil {
		t.Fatalf("GetTrail: %v", err)
	}
	if len(trail) != 1 || trail[0].Kind != domain.EventKindSplit {
		t.Fatalf("unexpected trail: %+v", trail)
	}
}

func TestDividendStore_SaveAdjustmentsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewDividendStore()

	rec := &domain.DividendRecord{
		StockID:          1,
		Year:             2021,
		DividendPerShare: decimal.NewNullDecimal(decimal.NewFromInt(300)),
	}
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	good := rec.Clone()
	good.AdjustedDividendPerShare = decimal.NewNullDecimal(decimal.NewFromInt(150))
	missing := &domain.DividendRecord{ID: 999, StockID: 1, Year: 2022}

	adj := &domain.EntityAdjustment{
		Stock: domain.Stock{ID: 1},
		Years: []domain.YearAdjustment{
			{Year: 2021, Record: good},
			{Year: 2022, Record: missing},
		},
	}
	if err := store.SaveAdjustments(ctx, adj); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	records, _ := store.GetByStock(ctx, 1, 2021, 2021)
	if records[0].AdjustedDividendPerShare.Valid {
		t.Fatal("expected no partial write")
	}
}

func TestDividendStore_SaveAdjustmentsRejectsUnknownKind(t *testing.T) {
	ctx := context.Background()
	store := NewDividendStore()

	adj := &domain.EntityAdjustment{
		Stock: domain.Stock{ID: 1, Code: "005930"},
		Years: []domain.YearAdjustment{{
			Year: 2022,
			Steps: []domain.AdjustmentStep{{
				Event: domain.CorporateActionEvent{
					EventDate: time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC),
					Kind:      domain.EventKind("SPINOFF"),
				},
				Factor:     decimal.NewFromInt(2),
				Cumulative: decimal.NewFromInt(2),
			}},
		}},
	}
	if err := store.SaveAdjustments(ctx, adj); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := store.SaveAdjustments(ctx, &domain.EntityAdjustment{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("missing stock id: expected ErrInvalidInput, got %v", err)
	}

	trail, err := store.GetTrail(ctx, 1, 2022, 2022)
	if err != nil {
		t.Fatalf("GetTrail: %v", err)
	}
	if len(trail) != 0 {
		t.Fatalf("expected no trail, got %d rows", len(trail))
	}
}

func TestFactorTimeseriesStore_LaterRunSupersedes(t *testing.T) {
	ctx := context.Background()
	store := NewFactorTimeseriesStore()

	first := &domain.FactorPoint{StockCode: "005930", Year: 2022, Seq: 0, Factor: decimal.NewFromInt(2), RunID: "a"}
	second := &domain.FactorPoint{StockCode: "005930", Year: 2022, Seq: 0, Factor: decimal.NewFromInt(3), RunID: "b"}
	other := &domain.FactorPoint{StockCode: "005930", Year: 2021, Seq: 0, Factor: decimal.NewFromInt(1), RunID: "b"}

	if err := store.InsertBulk(ctx, []*domain.FactorPoint{first}); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}
	if err := store.InsertBulk(ctx, []*domain.FactorPoint{second, other}); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}

	points, err := store.GetByStock(ctx, "005930", 2021, 2022)
	if err != nil {
		t.Fatalf("GetByStock: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Year != 2021 || points[1].RunID != "b" {
		t.Fatalf("unexpected points: %+v %+v", points[0], points[1])
	}

	if err := store.InsertBulk(ctx, []*domain.FactorPoint{{}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
