// Package config loads settings from defaults, an optional TOML file,
// environment variables and command-line overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"dividend-screener/internal/domain"
	"dividend-screener/internal/logging"
)

// Duration is a time.Duration read from a TOML string such as "300ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full application configuration.
type Config struct {
	DART       DARTConfig       `toml:"dart"`
	Adjustment AdjustmentConfig `toml:"adjustment"`
	Storage    StorageConfig    `toml:"storage"`
	Kafka      KafkaConfig      `toml:"kafka"`
	Server     ServerConfig     `toml:"server"`
	Logging    logging.Config   `toml:"logging"`
}

// DARTConfig configures the OpenDART client and feed gateway.
type DARTConfig struct {
	APIKey               string   `toml:"api_key" validate:"required"`
	BaseURL              string   `toml:"base_url" validate:"required,url"`
	Timeout              Duration `toml:"timeout"`
	MaxRetries           int      `toml:"max_retries" validate:"gte=0,lte=10"`
	RateLimit            float64  `toml:"rate_limit" validate:"gte=0"` // requests per second, 0 disables
	ReportCode           string   `toml:"report_code" validate:"len=5,numeric"`
	CallDelay            Duration `toml:"call_delay"`
	RateLimitRetries     int      `toml:"rate_limit_retries" validate:"gte=0"`
	RateLimitInitialWait Duration `toml:"rate_limit_initial_wait"`
	RateLimitMaxWait     Duration `toml:"rate_limit_max_wait"`
}

// AdjustmentConfig configures a recompute run.
type AdjustmentConfig struct {
	Workers    int             `toml:"workers" validate:"min=1,max=64"`
	MinFactor  decimal.Decimal `toml:"min_factor"`
	FromYear   int             `toml:"from_year" validate:"min=1990,max=9999"`
	ToYear     int             `toml:"to_year" validate:"gtefield=FromYear,max=9999"`
	Timeseries bool            `toml:"timeseries"` // also write factor points to ClickHouse
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend       string `toml:"backend" validate:"oneof=memory postgres mysql"`
	PostgresDSN   string `toml:"postgres_dsn" validate:"required_if=Backend postgres"`
	MySQLDSN      string `toml:"mysql_dsn" validate:"required_if=Backend mysql"`
	ClickHouseDSN string `toml:"clickhouse_dsn"`
}

// KafkaConfig configures adjustment notifications. Empty Brokers disables publishing.
type KafkaConfig struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic" validate:"required_with=Brokers"`
}

// ServerConfig configures the HTTP API and scheduled recompute.
type ServerConfig struct {
	Addr     string `toml:"addr" validate:"required"`
	Schedule string `toml:"schedule"` // cron spec, empty disables scheduled runs
}

// Default returns the built-in configuration.
func Default() *Config {
	year := time.Now().Year()
	return &Config{
		DART: DARTConfig{
			BaseURL:              "https://opendart.fss.or.kr/api",
			Timeout:              Duration{10 * time.Second},
			MaxRetries:           2,
			RateLimit:            5,
			ReportCode:           "11011",
			CallDelay:            Duration{300 * time.Millisecond},
			RateLimitRetries:     5,
			RateLimitInitialWait: Duration{2 * time.Second},
			RateLimitMaxWait:     Duration{30 * time.Second},
		},
		Adjustment: AdjustmentConfig{
			Workers:   4,
			MinFactor: decimal.RequireFromString("0.0001"),
			FromYear:  year - 5,
			ToYear:    year - 1,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Kafka: KafkaConfig{
			Topic: "dividend.adjusted",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load returns defaults merged with the TOML file at path (skipped when empty)
// and environment overrides. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DART_API_KEY"); v != "" {
		cfg.DART.APIKey = v
	}
	if v := os.Getenv("DART_BASE_URL"); v != "" {
		cfg.DART.BaseURL = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Storage.MySQLDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Storage.ClickHouseDSN = v
	}
	if v := os.Getenv("SCREENER_STORAGE"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("SCREENER_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SCREENER_SCHEDULE"); v != "" {
		cfg.Server.Schedule = v
	}
	if v := os.Getenv("SCREENER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCREENER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SCREENER_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SCREENER_WORKERS: %w", err)
		}
		cfg.Adjustment.Workers = n
	}
	return nil
}

// Overrides holds command-line values. Zero values leave the config unchanged.
type Overrides struct {
	APIKey   string
	Backend  string
	Workers  int
	FromYear int
	ToYear   int
	Addr     string
	LogLevel string
}

// ApplyOverrides applies command-line values, which have the highest priority.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.APIKey != "" {
		c.DART.APIKey = o.APIKey
	}
	if o.Backend != "" {
		c.Storage.Backend = o.Backend
	}
	if o.Workers > 0 {
		c.Adjustment.Workers = o.Workers
	}
	if o.FromYear > 0 {
		c.Adjustment.FromYear = o.FromYear
	}
	if o.ToYear > 0 {
		c.Adjustment.ToYear = o.ToYear
	}
	if o.Addr != "" {
		c.Server.Addr = o.Addr
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
}

// Validate checks struct constraints, the minimum factor floor, the year range and the schedule.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !c.Adjustment.MinFactor.IsPositive() {
		return fmt.Errorf("invalid config: adjustment.min_factor must be positive, got %s", c.Adjustment.MinFactor)
	}
	years := domain.YearRange{From: c.Adjustment.FromYear, To: c.Adjustment.ToYear}
	if err := years.Validate(); err != nil {
		return fmt.Errorf("invalid config: adjustment years: %w", err)
	}
	if c.Server.Schedule != "" {
		if _, err := ParseSchedule(c.Server.Schedule); err != nil {
			return fmt.Errorf("invalid config: server.schedule: %w", err)
		}
	}
	return nil
}

// ParseSchedule parses a five-field cron expression.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return cron.ParseStandard(spec)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
