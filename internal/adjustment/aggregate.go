package adjustment

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"dividend-screener/internal/domain"
)

// Timeline is the ordered sequence of adjustment steps for one window.
type Timeline struct {
	steps []domain.AdjustmentStep
}

// Aggregate sorts a copy of events by date and folds their factors into a
// running product. The input slice is not modified.
func (c *Calculator) Aggregate(events []domain.CorporateActionEvent) *Timeline {
	ordered := make([]domain.CorporateActionEvent, len(events))
	copy(ordered, events)
	SortEvents(ordered)

	steps := make([]domain.AdjustmentStep, 0, len(ordered))
	cumulative := one
	for i, e := range ordered {
		f := c.Factor(e)
		cumulative = cumulative.Mul(f)
		steps = append(steps, domain.AdjustmentStep{
			Seq:        i,
			Event:      e,
			Factor:     f,
			Cumulative: cumulative,
		})
	}
	return &Timeline{steps: steps}
}

// Steps returns a copy of the ordered steps.
func (t *Timeline) Steps() []domain.AdjustmentStep {
	out := make([]domain.AdjustmentStep, len(t.steps))
	copy(out, t.steps)
	return out
}

// Len returns the number of steps.
func (t *Timeline) Len() int {
	return len(t.steps)
}

// Cumulative returns the product of every factor in the timeline, 1 when empty.
func (t *Timeline) Cumulative() decimal.Decimal {
	if len(t.steps) == 0 {
		return one
	}
	return t.steps[len(t.steps)-1].Cumulative
}

// FactorAsOf returns the cumulative factor of the last step dated on or
// before date, 1 when no step qualifies.
func (t *Timeline) FactorAsOf(date time.Time) decimal.Decimal {
	// first step dated strictly after date
	idx := sort.Search(len(t.steps), func(i int) bool {
		return t.steps[i].Event.EventDate.After(date)
	})
	if idx == 0 {
		return one
	}
	return t.steps[idx-1].Cumulative
}
