package adjustment

import (
	"sort"

	"dividend-screener/internal/domain"
)

// SortEvents orders events by event_date ASC. Events sharing a date keep
// their input order, so the result depends only on the input sequence.
func SortEvents(events []domain.CorporateActionEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return compareEventDates(&events[i], &events[j]) < 0
	})
}

// compareEventDates returns:
//   - negative if a is dated before b
//   - zero if both share a date
//   - positive if a is dated after b
func compareEventDates(a, b *domain.CorporateActionEvent) int {
	if a.EventDate.Before(b.EventDate) {
		return -1
	}
	if a.EventDate.After(b.EventDate) {
		return 1
	}
	return 0
}
