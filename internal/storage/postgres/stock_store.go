package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dividend-screener/internal/domain"
	"dividend-screener/internal/storage"
)

// StockStore implements storage.StockStore using PostgreSQL.
type StockStore struct {
	pool *Pool
}

// NewStockStore creates a new StockStore.
func NewStockStore(pool *Pool) *StockStore {
	return &StockStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StockStore = (*StockStore)(nil)

const stockColumns = `id, code, COALESCE(corp_code, ''), name, market`

// Upsert inserts a stock or updates the stock with the same code. Sets s.ID.
func (s *StockStore) Upsert(ctx context.Context, st *domain.Stock) error {
	if st == nil || st.Code == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO stocks (code, corp_code, name, market)
		VALUES ($1, NULLIF($2, ''), $3, $4)
		ON CONFLICT (code) DO UPDATE SET
			corp_code = EXCLUDED.corp_code,
			name = EXCLUDED.name,
			market = EXCLUDED.market
		RETURNING id
	`

	if err := s.pool.QueryRow(ctx, query, st.Code, st.CorpCode, st.Name, st.Market).Scan(&st.ID); err != nil {
		return fmt.Errorf("upsert stock: %w", err)
	}
	return nil
}

// GetByCode retrieves a stock by code. Returns ErrNotFound if not exists.
func (s *StockStore) GetByCode(ctx context.Context, code string) (*domain.Stock, error) {
	query := `SELECT ` + stockColumns + ` FROM stocks WHERE code = $1`

	st, err := scanStock(s.pool.QueryRow(ctx, query, code))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get stock by code: %w", err)
	}
	return st, nil
}

// GetByCodes retrieves stocks whose code is in codes, ordered by code ASC.
func (s *StockStore) GetByCodes(ctx context.Context, codes []string) ([]*domain.Stock, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	query := `SELECT ` + stockColumns + ` FROM stocks WHERE code = ANY($1) ORDER BY code ASC`

	rows, err := s.pool.Query(ctx, query, codes)
	if err != nil {
		return nil, fmt.Errorf("get stocks by codes: %w", err)
	}
	defer rows.Close()

	return scanStocks(rows)
}

// ListWithCorpCode retrieves every stock mapped to a corp_code, ordered by code ASC.
func (s *StockStore) ListWithCorpCode(ctx context.Context) ([]*domain.Stock, error) {
	query := `SELECT ` + stockColumns + ` FROM stocks WHERE corp_code IS NOT NULL ORDER BY code ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list stocks with corp code: %w", err)
	}
	defer rows.Close()

	return scanStocks(rows)
}

func scanStock(row pgx.Row) (*domain.Stock, error) {
	var st domain.Stock
	if err := row.Scan(&st.ID, &st.Code, &st.CorpCode, &st.Name, &st.Market); err != nil {
		return nil, err
	}
	return &st, nil
}

func scanStocks(rows pgx.Rows) ([]*domain.Stock, error) {
	var stocks []*domain.Stock

	for rows.Next() {
		st, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock row: %w", err)
		}
		stocks = append(stocks, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock rows: %w", err)
	}

	return stocks, nil
}
