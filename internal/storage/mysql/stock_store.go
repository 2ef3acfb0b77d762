package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"dividend-screener/internal/domain"
	"dividend-screener/internal/storage"
)

// StockStore implements storage.StockStore using MySQL.
type StockStore struct {
	db *DB
}

// NewStockStore creates a new StockStore.
func NewStockStore(db *DB) *StockStore {
	return &StockStore{db: db}
}

// Compile-time interface check.
var _ storage.StockStore = (*StockStore)(nil)

// Upsert inserts a stock or updates the stock with the same code. Sets s.ID.
func (s *StockStore) Upsert(ctx context.Context, st *domain.Stock) error {
	if st == nil || st.Code == "" {
		return storage.ErrInvalidInput
	}

	m := toStockModel(st)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"corp_code", "name", "market"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("upsert stock: %w", err)
	}

	// MySQL does not report the id of an updated row, read it back.
	var saved stockModel
	if err := s.db.WithContext(ctx).Select("id").Where("code = ?", st.Code).First(&saved).Error; err != nil {
		return fmt.Errorf("read stock id: %w", err)
	}
	st.ID = saved.ID
	return nil
}

// GetByCode retrieves a stock by code. Returns ErrNotFound if not exists.
func (s *StockStore) GetByCode(ctx context.Context, code string) (*domain.Stock, error) {
	var m stockModel
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&m).Error; err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get stock by code: %w", err)
	}
	return m.toDomain(), nil
}

// GetByCodes retrieves stocks whose code is in codes, ordered by code ASC.
func (s *StockStore) GetByCodes(ctx context.Context, codes []string) ([]*domain.Stock, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	var models []stockModel
	if err := s.db.WithContext(ctx).Where("code IN ?", codes).Order("code ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("get stocks by codes: %w", err)
	}
	return toStocks(models), nil
}

// ListWithCorpCode retrieves every stock mapped to a corp_code, ordered by code ASC.
func (s *StockStore) ListWithCorpCode(ctx context.Context) ([]*domain.Stock, error) {
	var models []stockModel
	if err := s.db.WithContext(ctx).Where("corp_code IS NOT NULL AND corp_code <> ''").Order("code ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list stocks with corp code: %w", err)
	}
	return toStocks(models), nil
}

func toStocks(models []stockModel) []*domain.Stock {
	stocks := make([]*domain.Stock, 0, len(models))
	for i := range models {
		stocks = append(stocks, models[i].toDomain())
	}
	return stocks
}
