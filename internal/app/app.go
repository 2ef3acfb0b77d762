// Package app wires stores, the OpenDART client and the engine from a Config.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"dividend-screener/internal/adjustment"
	"dividend-screener/internal/config"
	"dividend-screener/internal/dart"
	"dividend-screener/internal/domain"
	"dividend-screener/internal/gateway"
	"dividend-screener/internal/ingestion"
	"dividend-screener/internal/normalization"
	"dividend-screener/internal/notify"
	"dividend-screener/internal/orchestrator"
	"dividend-screener/internal/storage"
	chstore "dividend-screener/internal/storage/clickhouse"
	"dividend-screener/internal/storage/memory"
	"dividend-screener/internal/storage/migrations"
	mysqlstore "dividend-screener/internal/storage/mysql"
	pgstore "dividend-screener/internal/storage/postgres"
)

// Stores holds the storage implementations selected by configuration.
type Stores struct {
	Stocks    storage.StockStore
	Dividends storage.DividendStore
	Factors   storage.FactorTimeseriesStore // nil when the time series is disabled
}

// App is a fully wired engine.
type App struct {
	Config       *config.Config
	Stores       *Stores
	Client       dart.Client
	Gateway      *gateway.Gateway
	Orchestrator *orchestrator.Orchestrator
	Ingester     *ingestion.Ingester
	Logger       *zap.Logger

	closers []func() error
}

// Options lets callers replace parts of the wiring, mainly in tests.
type Options struct {
	Client dart.Client // default: HTTP client built from cfg.DART
	Stores *Stores     // default: built from cfg.Storage
}

// New builds an App from a validated config.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	stores := opts.Stores
	if stores == nil {
		var err error
		stores, err = a.openStores(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	a.Stores = stores

	client := opts.Client
	if client == nil {
		client = dart.NewHTTPClient(cfg.DART.APIKey,
			dart.WithBaseURL(cfg.DART.BaseURL),
			dart.WithTimeout(cfg.DART.Timeout.Duration),
			dart.WithMaxRetries(cfg.DART.MaxRetries),
			dart.WithRateLimit(cfg.DART.RateLimit),
			dart.WithLogger(logger.Named("dart")),
		)
	}
	a.Client = client

	a.Gateway = gateway.New(client, gateway.Config{
		ReportCode:           cfg.DART.ReportCode,
		CallDelay:            cfg.DART.CallDelay.Duration,
		RateLimitRetries:     cfg.DART.RateLimitRetries,
		RateLimitInitialWait: cfg.DART.RateLimitInitialWait.Duration,
		RateLimitMaxWait:     cfg.DART.RateLimitMaxWait.Duration,
	}, logger)

	notifier, err := a.newNotifier()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Orchestrator = orchestrator.New(orchestrator.Options{
		StockStore:    stores.Stocks,
		DividendStore: stores.Dividends,
		FactorStore:   stores.Factors,
		Fetcher:       a.Gateway,
		Normalizer:    normalization.New(logger),
		Calculator:    adjustment.NewCalculator(cfg.Adjustment.MinFactor, logger),
		Notifier:      notifier,
		Workers:       cfg.Adjustment.Workers,
		ReportCode:    cfg.DART.ReportCode,
		Logger:        logger,
	})

	a.Ingester = ingestion.New(ingestion.Options{
		Fetcher:       a.Gateway,
		StockStore:    stores.Stocks,
		DividendStore: stores.Dividends,
		Workers:       cfg.Adjustment.Workers,
		ReportCode:    cfg.DART.ReportCode,
		Logger:        logger,
	})

	return a, nil
}

// Years returns the configured year range.
func (a *App) Years() domain.YearRange {
	return domain.YearRange{From: a.Config.Adjustment.FromYear, To: a.Config.Adjustment.ToYear}
}

// Close releases every connection opened by New, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openStores(ctx context.Context) (*Stores, error) {
	cfg := a.Config.Storage
	stores := &Stores{}

	switch cfg.Backend {
	case "memory":
		stores.Stocks = memory.NewStockStore()
		stores.Dividends = memory.NewDividendStore()
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN,
			pgstore.WithMaxConns(int32(a.Config.Adjustment.Workers+2)),
		)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		a.Logger.Info("postgres schema ready", zap.Int("migrations_applied", applied))
		stores.Stocks = pgstore.NewStockStore(pool)
		stores.Dividends = pgstore.NewDividendStore(pool)
	case "mysql":
		db, err := mysqlstore.Open(ctx, mysqlstore.Config{
			DSN:          cfg.MySQLDSN,
			MaxOpenConns: a.Config.Adjustment.Workers + 2,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to mysql: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("mysql migrations: %w", err)
		}
		stores.Stocks = mysqlstore.NewStockStore(db)
		stores.Dividends = mysqlstore.NewDividendStore(db)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if a.Config.Adjustment.Timeseries {
		factors, err := a.openFactorStore(ctx)
		if err != nil {
			return nil, err
		}
		stores.Factors = factors
	}
	return stores, nil
}

func (a *App) openFactorStore(ctx context.Context) (storage.FactorTimeseriesStore, error) {
	dsn := a.Config.Storage.ClickHouseDSN
	if dsn == "" {
		a.Logger.Info("clickhouse dsn not set, keeping factor time series in memory")
		return memory.NewFactorTimeseriesStore(), nil
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	a.closers = append(a.closers, conn.Close)
	return chstore.NewFactorTimeseriesStore(conn), nil
}

func (a *App) newNotifier() (orchestrator.Notifier, error) {
	kc := a.Config.Kafka
	if len(kc.Brokers) == 0 {
		return notify.Noop{}, nil
	}
	pub, err := notify.NewKafkaPublisher(notify.Config{Brokers: kc.Brokers, Topic: kc.Topic}, a.Logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}
