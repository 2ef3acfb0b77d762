package memory

import (
	"context"
	"sort"
	"sync"

	"dividend-screener/internal/domain"
	"dividend-screener/internal/storage"
)

// StockStore is an in-memory implementation of storage.StockStore.
type StockStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.Stock // keyed by code
	nextID int64
}

// NewStockStore creates a new in-memory stock store.
func NewStockStore() *StockStore {
	return &StockStore{
		data: make(map[string]*domain.Stock),
	}
}

// Upsert inserts or updates a stock keyed by code. Sets s.ID.
func (s *StockStore) Upsert(_ context.Context, st *domain.Stock) error {
	if st == nil || st.Code == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[st.Code]; ok {
		existing.CorpCode = st.CorpCode
		existing.Name = st.Name
		existing.Market = st.Market
		st.ID = existing.ID
		return nil
	}

	s.nextID++
	st.ID = s.nextID
	stockCopy := *st
	s.data[st.Code] = &stockCopy
	return nil
}

// GetByCode retrieves a stock by code. Returns ErrNotFound if not exists.
func (s *StockStore) GetByCode(_ context.Context, code string) (*domain.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.data[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	stockCopy := *st
	return &stockCopy, nil
}

// GetByCodes retrieves stocks by code, ordered by code ASC.
func (s *StockStore) GetByCodes(_ context.Context, codes []string) ([]*domain.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool, len(codes))
	var result []*domain.Stock
	for _, code := range codes {
		if seen[code] {
			continue
		}
		seen[code] = true
		if st, ok := s.data[code]; ok {
			stockCopy := *st
			result = append(result, &stockCopy)
		}
	}

	sortStocks(result)
	return result, nil
}

// ListWithCorpCode retrieves stocks mapped to a corp_code, ordered by code ASC.
func (s *StockStore) ListWithCorpCode(_ context.Context) ([]*domain.Stock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Stock
	for _, st := range s.data {
		if st.CorpCode != "" {
			stockCopy := *st
			result = append(result, &stockCopy)
		}
	}

	sortStocks(result)
	return result, nil
}

func sortStocks(stocks []*domain.Stock) {
	sort.Slice(stocks, func(i, j int) bool {
		return stocks[i].Code < stocks[j].Code
	})
}

// Verify interface compliance at compile time.
var _ storage.StockStore = (*StockStore)(nil)
