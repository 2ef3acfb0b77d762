package mysql

import (
	"time"

	"github.com/shopspring/decimal"

	"dividend-screener/internal/domain"
)

type stockModel struct {
	ID       int64   `gorm:"primaryKey;autoIncrement"`
	Code     string  `gorm:"column:code;type:varchar(12);uniqueIndex;not null"`
	CorpCode *string `gorm:"column:corp_code;type:char(8);index"`
	Name     string  `gorm:"column:name;type:varchar(128);not null;default:''"`
	Market   string  `gorm:"column:market;type:varchar(16);not null;default:''"`
}

func (stockModel) TableName() string { return "stocks" }

func toStockModel(s *domain.Stock) *stockModel {
	m := &stockModel{ID: s.ID, Code: s.Code, Name: s.Name, Market: s.Market}
	if s.CorpCode != "" {
		corp := s.CorpCode
		m.CorpCode = &corp
	}
	return m
}

func (m *stockModel) toDomain() *domain.Stock {
	s := &domain.Stock{ID: m.ID, Code: m.Code, Name: m.Name, Market: m.Market}
	if m.CorpCode != nil {
		s.CorpCode = *m.CorpCode
	}
	return s
}

type dividendModel struct {
	ID                       int64               `gorm:"primaryKey;autoIncrement"`
	StockID                  int64               `gorm:"column:stock_id;not null;uniqueIndex:uk_dividend_key,priority:1"`
	Code                     string              `gorm:"column:code;type:varchar(12);not null"`
	Year                     int                 `gorm:"column:year;not null;uniqueIndex:uk_dividend_key,priority:2"`
	ReportCode               string              `gorm:"column:reprt_code;type:char(5);not null;uniqueIndex:uk_dividend_key,priority:3"`
	DividendPerShare         decimal.NullDecimal `gorm:"column:dividend_per_share;type:decimal(20,4)"`
	AdjustedRatio            decimal.NullDecimal `gorm:"column:adjusted_ratio;type:decimal(30,12)"`
	AdjustedDividendPerShare decimal.NullDecimal `gorm:"column:adjusted_dividend_per_share;type:decimal(24,8)"`
	ExDividendDate           *time.Time          `gorm:"column:ex_dividend_date;type:date"`
}

func (dividendModel) TableName() string { return "dividend_info" }

func (m *dividendModel) toDomain() *domain.DividendRecord {
	return &domain.DividendRecord{
		ID:                       m.ID,
		StockID:                  m.StockID,
		StockCode:                m.Code,
		Year:                     m.Year,
		ReportCode:               m.ReportCode,
		DividendPerShare:         m.DividendPerShare,
		AdjustedDividendPerShare: m.AdjustedDividendPerShare,
		AdjustedRatio:            m.AdjustedRatio,
		ExDividendDate:           m.ExDividendDate,
	}
}

type corporateActionModel struct {
	ID           int64           `gorm:"primaryKey;autoIncrement"`
	StockID      int64           `gorm:"column:stock_id;not null;uniqueIndex:uk_trail_key,priority:1"`
	Code         string          `gorm:"column:code;type:varchar(12);not null"`
	Year         int             `gorm:"column:year;not null;uniqueIndex:uk_trail_key,priority:2"`
	Seq          int             `gorm:"column:seq;not null;uniqueIndex:uk_trail_key,priority:3"`
	EventDate    time.Time       `gorm:"column:event_date;type:date;not null"`
	DateFallback bool            `gorm:"column:date_fallback;not null;default:false"`
	Kind         string          `gorm:"column:kind;type:varchar(32);not null"`
	Source       string          `gorm:"column:source;type:varchar(16);not null"`
	Factor       decimal.Decimal `gorm:"column:factor;type:decimal(30,12);not null"`
	Cumulative   decimal.Decimal `gorm:"column:cumulative;type:decimal(30,12);not null"`
}

func (corporateActionModel) TableName() string { return "corporate_action_events" }

func toCorporateActionModel(r *domain.CorporateActionRecord) *corporateActionModel {
	return &corporateActionModel{
		StockID:      r.StockID,
		Code:         r.StockCode,
		Year:         r.Year,
		Seq:          r.Seq,
		EventDate:    r.EventDate,
		DateFallback: r.DateFallback,
		Kind:         string(r.Kind),
		Source:       string(r.Feed),
		Factor:       r.Factor,
		Cumulative:   r.Cumulative,
	}
}

func (m *corporateActionModel) toDomain() *domain.CorporateActionRecord {
	return &domain.CorporateActionRecord{
		ID:           m.ID,
		StockID:      m.StockID,
		StockCode:    m.Code,
		Year:         m.Year,
		Seq:          m.Seq,
		EventDate:    m.EventDate,
		DateFallback: m.DateFallback,
		Kind:         domain.EventKind(m.Kind),
		Feed:         domain.Feed(m.Source),
		Factor:       m.Factor,
		Cumulative:   m.Cumulative,
	}
}
