package storage

import (
	"context"

	"dividend-screener/internal/domain"
)

// StockStore provides access to stocks storage.
type StockStore interface {
	// Upsert inserts a stock or updates corp_code, name and market of the
	// stock with the same code. Sets s.ID.
	Upsert(ctx context.Context, s *domain.Stock) error

	// GetByCode retrieves a stock by exchange code. Returns ErrNotFound if not exists.
	GetByCode(ctx context.Context, code string) (*domain.Stock, error)

	// GetByCodes retrieves the stocks whose code is in codes, ordered by code ASC.
	// Unknown codes are skipped.
	GetByCodes(ctx context.Context, codes []string) ([]*domain.Stock, error)

	// ListWithCorpCode retrieves every stock mapped to an OpenDART corp_code, ordered by code ASC.
	ListWithCorpCode(ctx context.Context) ([]*domain.Stock, error)
}

// DividendStore provides access to dividend_info and corporate_action_events storage.
type DividendStore interface {
	// Upsert writes the raw fields of a dividend record keyed by
	// (stock_id, year, report_code). Adjusted fields are left as they are. Sets r.ID.
	Upsert(ctx context.Context, r *domain.DividendRecord) error

	// GetByStock retrieves records of a stock with year in [fromYear, toYear],
	// ordered by (year ASC, report_code ASC).
	GetByStock(ctx context.Context, stockID int64, fromYear, toYear int) ([]*domain.DividendRecord, error)

	// SaveAdjustments atomically writes the adjusted fields of every record in
	// adj and replaces the corporate-action trail of every year in adj.
	// Nothing is written when any part fails.
	SaveAdjustments(ctx context.Context, adj *domain.EntityAdjustment) error

	// GetTrail retrieves the corporate-action trail of a stock with year in
	// [fromYear, toYear], ordered by (year ASC, seq ASC).
	GetTrail(ctx context.Context, stockID int64, fromYear, toYear int) ([]*domain.CorporateActionRecord, error)
}

// FactorTimeseriesStore provides access to adjustment_factor_timeseries storage.
type FactorTimeseriesStore interface {
	// InsertBulk appends points. Points of a later run supersede earlier ones
	// with the same (stock_code, year, seq).
	InsertBulk(ctx context.Context, points []*domain.FactorPoint) error

	// GetByStock retrieves the latest points of a stock with year in
	// [fromYear, toYear], ordered by (year ASC, seq ASC).
	GetByStock(ctx context.Context, stockCode string, fromYear, toYear int) ([]*domain.FactorPoint, error)
}
