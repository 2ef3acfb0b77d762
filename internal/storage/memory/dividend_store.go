package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dividend-screener/internal/domain"
	"dividend-screener/internal/storage"
)

type dividendKey struct {
	stockID    int64
	year       int
	reportCode string
}

type trailKey struct {
	stockID int64
	year    int
}

// DividendStore is an in-memory implementation of storage.DividendStore.
type DividendStore struct {
	mu     sync.RWMutex
	data   map[dividendKey]*domain.DividendRecord
	byID   map[int64]dividendKey
	trails map[trailKey][]*domain.CorporateActionRecord
	nextID int64

	// FailSave, when set, is returned by SaveAdjustments for matching stock IDs.
	FailSave func(stockID int64) error
}

// NewDividendStore creates a new in-memory dividend store.
func NewDividendStore() *DividendStore {
	return &DividendStore{
		data:   make(map[dividendKey]*domain.DividendRecord),
		byID:   make(map[int64]dividendKey),
		trails: make(map[trailKey][]*domain.CorporateActionRecord),
	}
}

// Upsert writes the raw fields keyed by (stock_id, year, report_code). Sets r.ID.
func (s *DividendStore) Upsert(_ context.Context, r *domain.DividendRecord) error {
	if r == nil || r.StockID == 0 || r.Year == 0 {
		return storage.ErrInvalidInput
	}
	if r.ReportCode == "" {
		r.ReportCode = domain.ReportCodeAnnual
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := dividendKey{r.StockID, r.Year, r.ReportCode}
	if existing, ok := s.data[k]; ok {
		existing.DividendPerShare = r.DividendPerShare
		existing.ExDividendDate = r.Clone().ExDividendDate
		existing.StockCode = r.StockCode
		r.ID = existing.ID
		return nil
	}

	s.nextID++
	r.ID = s.nextID
	stored := r.Clone()
	s.data[k] = stored
	s.byID[stored.ID] = k
	return nil
}

// GetByStock retrieves records of a stock within [fromYear, toYear].
func (s *DividendStore) GetByStock(_ context.Context, stockID int64, fromYear, toYear int) ([]*domain.DividendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DividendRecord
	for k, r := range s.data {
		if k.stockID == stockID && k.year >= fromYear && k.year <= toYear {
			result = append(result, r.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Year != result[j].Year {
			return result[i].Year < result[j].Year
		}
		return result[i].ReportCode < result[j].ReportCode
	})
	return result, nil
}

// SaveAdjustments writes adjusted fields and replaces trails atomically.
func (s *DividendStore) SaveAdjustments(_ context.Context, adj *domain.EntityAdjustment) error {
	if adj == nil {
		return storage.ErrInvalidInput
	}
	if err := adj.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailSave != nil {
		if err := s.FailSave(adj.Stock.ID); err != nil {
			return err
		}
	}

	// Validate every target before mutating anything.
	for _, r := range adj.AdjustedRecords() {
		if _, ok := s.byID[r.ID]; !ok {
			return storage.ErrNotFound
		}
	}

	for _, r := range adj.AdjustedRecords() {
		stored := s.data[s.byID[r.ID]]
		stored.AdjustedDividendPerShare = r.AdjustedDividendPerShare
		stored.AdjustedRatio = r.AdjustedRatio
	}

	trail := adj.TrailRecords()
	for _, y := range adj.Years {
		delete(s.trails, trailKey{adj.Stock.ID, y.Year})
	}
	for _, rec := range trail {
		k := trailKey{rec.StockID, rec.Year}
		recCopy := *rec
		s.trails[k] = append(s.trails[k], &recCopy)
	}
	return nil
}

// GetTrail retrieves the corporate-action trail within [fromYear, toYear].
func (s *DividendStore) GetTrail(_ context.Context, stockID int64, fromYear, toYear int) ([]*domain.CorporateActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CorporateActionRecord
	for k, recs := range s.trails {
		if k.stockID != stockID || k.year < fromYear || k.year > toYear {
			continue
		}
		for _, rec := range recs {
			recCopy := *rec
			result = append(result, &recCopy)
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
var _ storage.DividendStore = (*DividendStore)(nil)
