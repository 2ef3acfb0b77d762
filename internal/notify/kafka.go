// Package notify publishes a dividend.adjusted message for every committed stock.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"dividend-screener/internal/domain"
)

// DefaultTopic is the topic adjustment messages are written to.
const DefaultTopic = "dividend.adjusted"

// Config configures the Kafka publisher.
type Config struct {
	Brokers      []string
	Topic        string
	MaxAttempts  int
	WriteTimeout time.Duration
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per adjusted stock, keyed by stock code so
// every message of a stock lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher backed by a kafka.Writer.
func NewKafkaPublisher(cfg Config, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxAttempts,
		WriteTimeout:           cfg.WriteTimeout,
	}
	return newKafkaPublisher(w, cfg.Topic, logger), nil
}

func newKafkaPublisher(w messageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		writer: w,
		topic:  topic,
		logger: logger.Named("notify"),
	}
}

// NotifyAdjusted publishes the adjustment of one stock.
func (p *KafkaPublisher) NotifyAdjusted(ctx context.Context, adj *domain.EntityAdjustment) error {
	data, err := json.Marshal(NewMessage(adj))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(adj.Stock.Code),
		Value: data,
		Time:  adj.ComputedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", p.topic, err)
	}

	p.logger.Debug("adjustment published",
		zap.String("topic", p.topic),
		zap.String("stock_code", adj.Stock.Code),
	)
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop discards notifications.
type Noop struct{}

// NotifyAdjusted does nothing.
func (Noop) NotifyAdjusted(context.Context, *domain.EntityAdjustment) error { return nil }

// Message is the JSON body of a dividend.adjusted message.
type Message struct {
	RunID      string        `json:"run_id"`
	StockCode  string        `json:"stock_code"`
	CorpCode   string        `json:"corp_code"`
	ComputedAt time.Time     `json:"computed_at"`
	Years      []YearMessage `json:"years"`
}

// YearMessage is the per-year part of Message.
type YearMessage struct {
	Year                     int      `json:"year"`
	Events                   int      `json:"events"`
	AdjustedRatio            string   `json:"adjusted_ratio"`
	AdjustedDividendPerShare *string  `json:"adjusted_dividend_per_share,omitempty"`
	DegradedFeeds            []string `json:"degraded_feeds,omitempty"`
}

// NewMessage builds the message for adj.
func NewMessage(adj *domain.EntityAdjustment) *Message {
	m := &Message{
		RunID:      adj.RunID,
		StockCode:  adj.Stock.Code,
		CorpCode:   adj.Stock.CorpCode,
		ComputedAt: adj.ComputedAt.UTC(),
		Years:      make([]YearMessage, 0, len(adj.Years)),
	}
	for _, y := range adj.Years {
		ym := YearMessage{
			Year:          y.Year,
			Events:        len(y.Steps),
			AdjustedRatio: y.Cumulative.String(),
		}
		if y.Record != nil && y.Record.AdjustedDividendPerShare.Valid {
			v := y.Record.AdjustedDividendPerShare.Decimal.String()
			ym.AdjustedDividendPerShare = &v
		}
		for _, f := range y.Degraded {
			ym.DegradedFeeds = append(ym.DegradedFeeds, string(f))
		}
		m.Years = append(m.Years, ym)
	}
	return m
}
