package mysql

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dividend-screener/internal/domain"
	"dividend-screener/internal/storage"
)

// DividendStore implements storage.DividendStore using MySQL.
type DividendStore struct {
	db *DB
}

// NewDividendStore creates a new DividendStore.
func NewDividendStore(db *DB) *DividendStore {
	return &DividendStore{db: db}
}

// Compile-time interface check.
var _ storage.DividendStore = (*DividendStore)(nil)

// Upsert writes the raw fields keyed by (stock_id, year, reprt_code). Sets r.ID.
func (s *DividendStore) Upsert(ctx context.Context, r *domain.DividendRecord) error {
	if r == nil || r.StockID == 0 || r.Year == 0 {
		return storage.ErrInvalidInput
	}
	if r.ReportCode == "" {
		r.ReportCode = domain.ReportCodeAnnual
	}

	m := &dividendModel{
		StockID:          r.StockID,
		Code:             r.StockCode,
		Year:             r.Year,
		ReportCode:       r.ReportCode,
		DividendPerShare: r.DividendPerShare,
		ExDividendDate:   r.ExDividendDate,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stock_id"}, {Name: "year"}, {Name: "reprt_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "dividend_per_share", "ex_dividend_date"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("upsert dividend: %w", err)
	}

	var saved dividendModel
	err = s.db.WithContext(ctx).Select("id").
		Where("stock_id = ? AND year = ? AND reprt_code = ?", r.StockID, r.Year, r.ReportCode).
		First(&saved).Error
	if err != nil {
		return fmt.Errorf("read dividend id: %w", err)
	}
	r.ID = saved.ID
	return nil
}

// GetByStock retrieves records with year in [fromYear, toYear], ordered by (year, reprt_code).
func (s *DividendStore) GetByStock(ctx context.Context, stockID int64, fromYear, toYear int) ([]*domain.DividendRecord, error) {
	var models []dividendModel
	err := s.db.WithContext(ctx).
		Where("stock_id = ? AND year >= ? AND year <= ?", stockID, fromYear, toYear).
		Order("year ASC, reprt_code ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("get dividends by stock: %w", err)
	}

	records := make([]*domain.DividendRecord, 0, len(models))
	for i := range models {
		records = append(records, models[i].toDomain())
	}
	return records, nil
}

// SaveAdjustments writes adjusted fields and replaces the trail in one transaction.
func (s *DividendStore) SaveAdjustments(ctx context.Context, adj *domain.EntityAdjustment) (err error) {
	if adj == nil {
		return storage.ErrInvalidInput
	}
	if err := adj.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	defer observe("save_adjustments", time.Now(), &err)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range adj.AdjustedRecords() {
			res := tx.Model(&dividendModel{}).Where("id = ?", r.ID).Updates(map[string]any{
				"adjusted_dividend_per_share": r.AdjustedDividendPerShare,
				"adjusted_ratio":              r.AdjustedRatio,
			})
			if res.Error != nil {
				return fmt.Errorf("update adjusted dividend: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				// Rows with unchanged values report zero affected rows in MySQL.
				var n int64
				if err := tx.Model(&dividendModel{}).Where("id = ?", r.ID).Count(&n).Error; err != nil {
					return fmt.Errorf("check dividend exists: %w", err)
				}
				if n == 0 {
					return storage.ErrNotFound
				}
			}
		}

		years := make([]int, 0, len(adj.Years))
		for _, y := range adj.Years {
			years = append(years, y.Year)
		}
		if len(years) > 0 {
			err := tx.Where("stock_id = ? AND year IN ?", adj.Stock.ID, years).
				Delete(&corporateActionModel{}).Error
			if err != nil {
				return fmt.Errorf("delete trail: %w", err)
			}
		}

		trail := adj.TrailRecords()
		if len(trail) == 0 {
			return nil
		}
		models := make([]*corporateActionModel, 0, len(trail))
		for _, rec := range trail {
			models = append(models, toCorporateActionModel(rec))
		}
		if err := tx.Create(models).Error; err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trail: %w", err)
		}
		return nil
	})
}

// GetTrail retrieves the trail with year in [fromYear, toYear], ordered by (year, seq).
func (s *DividendStore) GetTrail(ctx context.Context, stockID int64, fromYear, toYear int) ([]*domain.CorporateActionRecord, error) {
	var models []corporateActionModel
	err := s.db.WithContext(ctx).
		Where("stock_id = ? AND year >= ? AND year <= ?", stockID, fromYear, toYear).
		Order("year ASC, seq ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("get trail: %w", err)
	}

	trail := make([]*domain.CorporateActionRecord, 0, len(models))
	for i := range models {
		rec := models[i].toDomain()
		if !rec.Kind.IsValid() {
			return nil, fmt.Errorf("trail row %d: unknown event kind %q", rec.ID, models[i].Kind)
		}
		trail = append(trail, rec)
	}
	return trail, nil
}
