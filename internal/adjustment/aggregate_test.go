package adjustment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dividend-screener/internal/domain"
	"dividend-screener/internal/normalization"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAggregate_CumulativeProduct(t *testing.T) {
	calc := NewCalculator(decimal.Zero, nil)
	events := []domain.CorporateActionEvent{
		split(day(2022, 1, 10), num("1.2")),
		split(day(2022, 4, 10), num("1.1")),
		split(day(2022, 9, 10), num("0.9")),
	}

	tl := calc.Aggregate(events)

	got, _ := tl.Cumulative().Float64()
	if diff := got - 1.188; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected cumulative 1.188, got %s", tl.Cumulative())
	}
	if !tl.Cumulative().Equal(dec("1.188")) {
		t.Errorf("expected exact decimal 1.188, got %s", tl.Cumulative())
	}

	steps := tl.Steps()
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	wantCum := []string{"1.2", "1.32", "1.188"}
	for i, w := range wantCum {
		if !steps[i].Cumulative.Equal(dec(w)) {
			t.Errorf("step %d: expected cumulative %s, got %s", i, w, steps[i].Cumulative)
		}
		if steps[i].Seq != i {
			t.Errorf("step %d: expected seq %d, got %d", i, i, steps[i].Seq)
		}
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	calc := NewCalculator(decimal.Zero, nil)
	events := []domain.CorporateActionEvent{
		split(day(2022, 9, 10), num("0.9")),
		issuance(domain.EventKindCapitalIncreaseFree, num("1"), num("3")),
		merger(domain.EventKindMerger, num("0.1")),
		split(day(2022, 1, 10), num("1.2")),
	}

	first := calc.Aggregate(events).Steps()
	second := calc.Aggregate(events).Steps()

	if len(first) != len(second) {
		t.Fatalf("length mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Factor.Equal(second[i].Factor) || !first[i].Cumulative.Equal(second[i].Cumulative) {
			t.Errorf("step %d differs: %v vs %v", i, first[i], second[i])
		}
		if first[i].Cumulative.String() != second[i].Cumulative.String() {
			t.Errorf("step %d not bit-identical: %s vs %s", i, first[i].Cumulative, second[i].Cumulative)
		}
		if !first[i].Event.EventDate.Equal(second[i].Event.EventDate) || first[i].Event.Kind != second[i].Event.Kind {
			t.Errorf("step %d ordering differs", i)
		}
	}
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	calc := NewCalculator(decimal.Zero, nil)
	events := []domain.CorporateActionEvent{
		split(day(2022, 9, 10), num("2")),
		split(day(2022, 1, 10), num("3")),
	}

	calc.Aggregate(events)

	if !events[0].EventDate.Equal(day(2022, 9, 10)) {
		t.Error("input slice was reordered")
	}
}

func TestAggregate_FallbackDateSortsLast(t *testing.T) {
	calc := NewCalculator(decimal.Zero, nil)

	fallbackDate, fallback := normalization.ParseDate("", 2022)
	if !fallback || !fallbackDate.Equal(day(2022, 12, 31)) {
		t.Fatalf("expected 2022-12-31 fallback, got %v", fallbackDate)
	}

	undated := merger(domain.EventKindMerger, num("0.5"))
	undated.EventDate = fallbackDate
	undated.DateFallback = true

	events := []domain.CorporateActionEvent{
		undated,
		split(day(2022, 3, 1), num("2")),
		split(day(2022, 11, 30), num("1.5")),
	}

	steps := calc.Aggregate(events).Steps()
	last := steps[len(steps)-1]
	if !last.Event.DateFallback {
		t.Errorf("expected fallback-dated event last, got %+v", last.Event)
	}
	if !last.Event.EventDate.Equal(day(2022, 12, 31)) {
		t.Errorf("expected 2022-12-31, got %v", last.Event.EventDate)
	}
}

func TestAggregate_TiesKeepInputOrder(t *testing.T) {
	calc := NewCalculator(decimal.Zero, nil)
	same := day(2022, 5, 5)
	events := []domain.CorporateActionEvent{
		split(same, num("2")),
		merger(domain.EventKindMerger, num("1")),
		split(same, num("3")),
	}
	events[1].EventDate = same

	steps := calc.Aggregate(events).Steps()
	if steps[0].Event.Kind != domain.EventKindSplit || !steps[0].Factor.Equal(dec("2")) {
		t.Errorf("step 0: unexpected %+v", steps[0])
	}
	if steps[1].Event.Kind != domain.EventKindMerger {
		t.Errorf("step 1: expected merger, got %s", steps[1].Event.Kind)
	}
	if !steps[2].Factor.Equal(dec("3")) {
		t.Errorf("step 2: expected factor 3, got %s", steps[2].Factor)
	}
}

func TestTimeline_FactorAsOf(t *testing.T) {
	calc := NewCalculator(decimal.Zero, nil)
	tl := calc.Aggregate([]domain.CorporateActionEvent{
		split(day(2022, 3, 1), num("2")),
		split(day(2022, 6, 1), num("5")),
	})

	tests := []struct {
		date time.Time
		want string
	}{
		{day(2022, 1, 1), "1"},
		{day(2022, 3, 1), "2"},
		{day(2022, 5, 31), "2"},
		{day(2022, 6, 1), "10"},
		{day(2022, 12, 31), "10"},
	}
	for _, tt := range tests {
		if got := tl.FactorAsOf(tt.date); !got.Equal(dec(tt.want)) {
			t.Errorf("FactorAsOf(%s): expected %s, got %s", tt.date.Format("2006-01-02"), tt.want, got)
		}
	}
}

func TestTimeline_Empty(t *testing.T) {
	tl := NewCalculator(decimal.Zero, nil).Aggregate(nil)
	if tl.Len() != 0 {
		t.Errorf("expected empty timeline, got %d steps", tl.Len())
	}
	if !tl.Cumulative().Equal(one) {
		t.Errorf("expected neutral cumulative, got %s", tl.Cumulative())
	}
	if !tl.FactorAsOf(day(2022, 12, 31)).Equal(one) {
		t.Error("expected neutral factor as of any date")
	}
}
