package memory

import (
	"context"
	"sort"
	"sync"

	"dividend-screener/internal/domain"
	"dividend-screener/internal/storage"
)

type factorKey struct {
	stockCode string
	year      int
	seq       int
}

// FactorTimeseriesStore is an in-memory implementation of storage.FactorTimeseriesStore.
// A later insert replaces the point with the same (stock_code, year, seq).
type FactorTimeseriesStore struct {
	mu   sync.RWMutex
	data map[factorKey]*domain.FactorPoint
}

// NewFactorTimeseriesStore creates a new in-memory factor time series store.
func NewFactorTimeseriesStore() *FactorTimeseriesStore {
	return &FactorTimeseriesStore{
		data: make(map[factorKey]*domain.FactorPoint),
	}
}

// InsertBulk appends points.
func (s *FactorTimeseriesStore) InsertBulk(_ context.Context, points []*domain.FactorPoint) error {
	for _, p := range points {
		if p == nil || p.StockCode == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		pointCopy := *p
		s.data[factorKey{p.StockCode, p.Year, p.Seq}] = &pointCopy
	}
	return nil
}

// GetByStock retrieves points within [fromYear, toYear], ordered by (year, seq).
func (s *FactorTimeseriesStore) GetByStock(_ context.Context, stockCode string, fromYear, toYear int) ([]*domain.FactorPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FactorPoint
	for k, p := range s.data {
		if k.stockCode == stockCode && k.year >= fromYear && k.year <= toYear {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.FactorTimeseriesStore = (*FactorTimeseriesStore)(nil)
