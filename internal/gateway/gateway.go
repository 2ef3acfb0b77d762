// Package gateway fetches the four OpenDART capital-change feeds for one
// (stock, year) window and degrades failed feeds to empty results.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"dividend-screener/internal/dart"
	"dividend-screener/internal/domain"
	"dividend-screener/internal/observability"
)

// Config controls pacing and rate limit handling.
type Config struct {
	ReportCode           string        // reprt_code for report-keyed feeds
	CallDelay            time.Duration // pause between consecutive feed calls
	RateLimitRetries     int           // retries of one call after a rate limit signal
	RateLimitInitialWait time.Duration
	RateLimitMaxWait     time.Duration
}

// DefaultConfig returns the production pacing.
func DefaultConfig() Config {
	return Config{
		ReportCode:           domain.ReportCodeAnnual,
		CallDelay:            300 * time.Millisecond,
		RateLimitRetries:     5,
		RateLimitInitialWait: 2 * time.Second,
		RateLimitMaxWait:     30 * time.Second,
	}
}

// FeedBatch is the raw output of the four feeds for one window.
type FeedBatch struct {
	CorpCode  string
	Year      int
	Issuance  []dart.IssuanceItem
	Allotment []dart.AllotmentItem
	Splits    []dart.SplitItem
	Mergers   []dart.MergerItem
	Degraded  []domain.Feed // feeds that failed and were replaced by an empty list
}

// IsDegraded reports whether feed failed.
func (b *FeedBatch) IsDegraded(feed domain.Feed) bool {
	for _, f := range b.Degraded {
		if f == feed {
			return true
		}
	}
	return false
}

// Gateway issues feed calls sequentially. It holds no per-entity state and is
// safe for concurrent use when the underlying client is.
type Gateway struct {
	client dart.Client
	cfg    Config
	logger *zap.Logger
}

// New creates a Gateway.
func New(client dart.Client, cfg Config, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReportCode == "" {
		cfg.ReportCode = domain.ReportCodeAnnual
	}
	return &Gateway{
		client: client,
		cfg:    cfg,
		logger: logger.Named("gateway"),
	}
}

// Fetch calls irdsSttus, alotMatter, dvRs and mgRs in that order.
// Upstream failures never surface as errors: the affected feed is logged,
// recorded in Degraded and left empty. Only context cancellation is returned.
func (g *Gateway) Fetch(ctx context.Context, corpCode string, year int) (*FeedBatch, error) {
	batch := &FeedBatch{CorpCode: corpCode, Year: year}
	begin := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)

	calls := []struct {
		feed domain.Feed
		call func() error
	}{
		{domain.FeedIssuance, func() (err error) {
			batch.Issuance, err = g.client.IssuanceStatus(ctx, corpCode, year, g.cfg.ReportCode)
			return err
		}},
		{domain.FeedAllotment, func() (err error) {
			batch.Allotment, err = g.client.Allotment(ctx, corpCode, year, g.cfg.ReportCode)
			return err
		}},
		{domain.FeedSplit, func() (err error) {
			batch.Splits, err = g.client.SplitResolutions(ctx, corpCode, begin, end)
			return err
		}},
		{domain.FeedMerger, func() (err error) {
			batch.Mergers, err = g.client.MergerResolutions(ctx, corpCode, begin, end)
			return err
		}},
	}

	for i, c := range calls {
		if i > 0 {
			if err := sleep(ctx, g.cfg.CallDelay); err != nil {
				return nil, err
			}
		}

		if err := g.callWithRetry(ctx, c.feed, c.call); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			level := zap.WarnLevel
			if dart.IsInvalidKey(err) {
				level = zap.ErrorLevel
			}
			g.logger.Log(level, "feed degraded to empty",
				zap.String("feed", string(c.feed)),
				zap.String("corp_code", corpCode),
				zap.Int("year", year),
				zap.Error(err),
			)
			observability.RecordFeedDegraded(string(c.feed))
			batch.Degraded = append(batch.Degraded, c.feed)
			clearFeed(batch, c.feed)
		}
	}

	return batch, nil
}

// FetchAllotment calls alotMatter alone with the same rate limit handling as Fetch.
// Unlike Fetch, a failure is returned to the caller.
func (g *Gateway) FetchAllotment(ctx context.Context, corpCode string, year int) ([]dart.AllotmentItem, error) {
	var items []dart.AllotmentItem
	err := g.callWithRetry(ctx, domain.FeedAllotment, func() (err error) {
		items, err = g.client.Allotment(ctx, corpCode, year, g.cfg.ReportCode)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// callWithRetry retries fn while it reports a rate limit, backing off exponentially.
func (g *Gateway) callWithRetry(ctx context.Context, feed domain.Feed, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.cfg.RateLimitInitialWait
	eb.MaxInterval = g.cfg.RateLimitMaxWait
	eb.MaxElapsedTime = 0

	retries := g.cfg.RateLimitRetries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)

	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if dart.IsRateLimited(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		observability.RecordRateLimitWait(string(feed))
		g.logger.Info("rate limited, waiting",
			zap.String("feed", string(feed)),
			zap.Duration("wait", wait),
		)
	}

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return fmt.Errorf("%s: %w", feed, err)
	}
	return nil
}

func clearFeed(b *FeedBatch, feed domain.Feed) {
	switch feed {
	case domain.FeedIssuance:
		b.Issuance = nil
	case domain.FeedAllotment:
		b.Allotment = nil
	case domain.FeedSplit:
		b.Splits = nil
	case domain.FeedMerger:
		b.Mergers = nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
