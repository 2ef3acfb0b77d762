package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"dividend-screener/internal/domain"
	"dividend-screener/internal/storage"
)

// FactorTimeseriesStore implements storage.FactorTimeseriesStore using ClickHouse.
// Rows share the key (stock_code, year, seq); ReplacingMergeTree keeps the latest insert.
type FactorTimeseriesStore struct {
	conn *Conn
}

// NewFactorTimeseriesStore creates a new FactorTimeseriesStore.
func NewFactorTimeseriesStore(conn *Conn) *FactorTimeseriesStore {
	return &FactorTimeseriesStore{conn: conn}
}

// Compile-time interface check.
var _ storage.FactorTimeseriesStore = (*FactorTimeseriesStore)(nil)

// InsertBulk appends points in a single batch.
func (s *FactorTimeseriesStore) InsertBulk(ctx context.Context, points []*domain.FactorPoint) (err error) {
	if len(points) == 0 {
		return nil
	}
	for _, p := range points {
		if p == nil || p.StockCode == "" {
			return storage.ErrInvalidInput
		}
	}
	defer observe("factor_insert_bulk", time.Now(), &err)

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO adjustment_factor_timeseries (
			stock_code, year, seq, event_date, kind, factor, cumulative, run_id, inserted_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	// One version for the whole batch so every point of a run replaces the previous run.
	insertedAt := time.Now().UTC()
	for _, p := range points {
		err = batch.Append(
			p.StockCode, uint16(p.Year), uint32(p.Seq), p.EventDate,
			string(p.Kind), p.Factor, p.Cumulative, p.RunID, insertedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByStock retrieves the latest points with year in [fromYear, toYear], ordered by (year, seq).
func (s *FactorTimeseriesStore) GetByStock(ctx context.Context, stockCode string, fromYear, toYear int) (_ []*domain.FactorPoint, err error) {
	defer observe("factor_get_by_stock", time.Now(), &err)

	rows, err := s.conn.Query(ctx, `
		SELECT stock_code, year, seq, event_date, kind, factor, cumulative, run_id
		FROM adjustment_factor_timeseries FINAL
		WHERE stock_code = ? AND year >= ? AND year <= ?
		ORDER BY year ASC, seq ASC
	`, stockCode, uint16(fromYear), uint16(toYear))
	if err != nil {
		return nil, fmt.Errorf("query factor timeseries: %w", err)
	}
	defer rows.Close()

	return scanFactorPoints(rows)
}

func scanFactorPoints(rows chRows) ([]*domain.FactorPoint, error) {
	var points []*domain.FactorPoint

	for rows.Next() {
		var (
			p          domain.FactorPoint
			year       uint16
			seq        uint32
			kind       string
			factor     decimal.Decimal
			cumulative decimal.Decimal
		)
		err := rows.Scan(&p.StockCode, &year, &seq, &p.EventDate, &kind, &factor, &cumulative, &p.RunID)
		if err != nil {
			return nil, fmt.Errorf("scan factor point: %w", err)
		}
		p.Year = int(year)
		p.Seq = int(seq)
		p.Kind = domain.EventKind(kind)
		p.Factor = factor
		p.Cumulative = cumulative
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate factor points: %w", err)
	}

	return points, nil
}
