package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"dividend-screener/internal/domain"
	"dividend-screener/internal/storage"
)

// DividendStore implements storage.DividendStore using PostgreSQL.
type DividendStore struct {
	pool *Pool
}

// NewDividendStore creates a new DividendStore.
func NewDividendStore(pool *Pool) *DividendStore {
	return &DividendStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DividendStore = (*DividendStore)(nil)

// Upsert writes the raw fields keyed by (stock_id, year, reprt_code). Sets r.ID.
func (s *DividendStore) Upsert(ctx context.Context, r *domain.DividendRecord) (err error) {
	if r == nil || r.StockID == 0 || r.Year == 0 {
		return storage.ErrInvalidInput
	}
	if r.ReportCode == "" {
		r.ReportCode = domain.ReportCodeAnnual
	}

	query := `
		INSERT INTO dividend_info (stock_id, code, year, reprt_code, dividend_per_share, ex_dividend_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (stock_id, year, reprt_code) DO UPDATE SET
			code = EXCLUDED.code,
			dividend_per_share = EXCLUDED.dividend_per_share,
			ex_dividend_date = EXCLUDED.ex_dividend_date,
			updated_at = now()
		RETURNING id
	`

	defer observe("dividend_upsert", time.Now(), &err)
	err = s.pool.QueryRow(ctx, query,
		r.StockID,
		r.StockCode,
		r.Year,
		r.ReportCode,
		r.DividendPerShare,
		r.ExDividendDate,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("upsert dividend: %w", err)
	}
	return nil
}

// GetByStock retrieves records with year in [fromYear, toYear], ordered by (year, reprt_code).
func (s *DividendStore) GetByStock(ctx context.Context, stockID int64, fromYear, toYear int) ([]*domain.DividendRecord, error) {
	query := `
		SELECT id, stock_id, code, year, reprt_code, dividend_per_share,
			adjusted_dividend_per_share, adjusted_ratio, ex_dividend_date
		FROM dividend_info
		WHERE stock_id = $1 AND year >= $2 AND year <= $3
		ORDER BY year ASC, reprt_code ASC
	`

	rows, err := s.pool.Query(ctx, query, stockID, fromYear, toYear)
	if err != nil {
		return nil, fmt.Errorf("get dividends by stock: %w", err)
	}
	defer rows.Close()

	var records []*domain.DividendRecord
	for rows.Next() {
		var r domain.DividendRecord
		err := rows.Scan(
			&r.ID,
			&r.StockID,
			&r.StockCode,
			&r.Year,
			&r.ReportCode,
			&r.DividendPerShare,
			&r.AdjustedDividendPerShare,
			&r.AdjustedRatio,
			&r.ExDividendDate,
		)
		if err != nil {
			return nil, fmt.Errorf("scan dividend row: %w", err)
		}
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dividend rows: %w", err)
	}

	return records, nil
}

// SaveAdjustments writes adjusted fields and replaces the trail in one transaction.
func (s *DividendStore) SaveAdjustments(ctx context.Context, adj *domain.EntityAdjustment) error {
	if adj == nil {
		return storage.ErrInvalidInput
	}
	if err := adj.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	return s.pool.inTx(ctx, "save_adjustments", func(tx pgx.Tx) error {
		update := `
			UPDATE dividend_info
			SET adjusted_dividend_per_share = $2, adjusted_ratio = $3, updated_at = now()
			WHERE id = $1
		`
		for _, r := range adj.AdjustedRecords() {
			tag, err := tx.Exec(ctx, update, r.ID, r.AdjustedDividendPerShare, r.AdjustedRatio)
			if err != nil {
				return fmt.Errorf("update adjusted dividend: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return storage.ErrNotFound
			}
		}

		years := make([]int32, 0, len(adj.Years))
		for _, y := range adj.Years {
			years = append(years, int32(y.Year))
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM corporate_action_events WHERE stock_id = $1 AND year = ANY($2)`,
			adj.Stock.ID, years,
		); err != nil {
			return fmt.Errorf("delete trail: %w", err)
		}

		insert := `
			INSERT INTO corporate_action_events (
				stock_id, code, year, seq, event_date, date_fallback, kind, source, factor, cumulative
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		for _, rec := range adj.TrailRecords() {
			_, err := tx.Exec(ctx, insert,
				rec.StockID,
				rec.StockCode,
				rec.Year,
				rec.Seq,
				rec.EventDate,
				rec.DateFallback,
				string(rec.Kind),
				string(rec.Feed),
				rec.Factor,
				rec.Cumulative,
			)
			if err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert trail: %w", err)
			}
		}
		return nil
	})
}

// GetTrail retrieves the trail with year in [fromYear, toYear], ordered by (year, seq).
func (s *DividendStore) GetTrail(ctx context.Context, stockID int64, fromYear, toYear int) ([]*domain.CorporateActionRecord, error) {
	query := `
		SELECT id, stock_id, code, year, seq, event_date, date_fallback, kind, source, factor, cumulative
		FROM corporate_action_events
		WHERE stock_id = $1 AND year >= $2 AND year <= $3
		ORDER BY year ASC, seq ASC
	`

	rows, err := s.pool.Query(ctx, query, stockID, fromYear, toYear)
	if err != nil {
		return nil, fmt.Errorf("get trail: %w", err)
	}
	defer rows.Close()

	var trail []*domain.CorporateActionRecord
	for rows.Next() {
		var rec domain.CorporateActionRecord
		var kind, feed string
		err := rows.Scan(
			&rec.ID,
			&rec.StockID,
			&rec.StockCode,
			&rec.Year,
			&rec.Seq,
			&rec.EventDate,
			&rec.DateFallback,
			&kind,
			&feed,
			&rec.Factor,
			&rec.Cumulative,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trail row: %w", err)
		}
		rec.Kind = domain.EventKind(kind)
		rec.Feed = domain.Feed(feed)
		if !rec.Kind.IsValid() {
			return nil, fmt.Errorf("trail row %d: unknown event kind %q", rec.ID, kind)
		}
		trail = append(trail, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trail rows: %w", err)
	}

	return trail, nil
}
