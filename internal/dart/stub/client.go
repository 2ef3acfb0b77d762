// Package stub provides an in-memory dart.Client for tests.
package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dividend-screener/internal/dart"
	"dividend-screener/internal/domain"
)

type key struct {
	feed     domain.Feed
	corpCode string
	year     int
}

// Client implements dart.Client from canned responses.
// Period feeds are keyed by the year of the begin date.
type Client struct {
	mu sync.Mutex

	issuance  map[key][]dart.IssuanceItem
	allotment map[key][]dart.AllotmentItem
	splits    map[key][]dart.SplitItem
	mergers   map[key][]dart.MergerItem

	// failures holds queued errors returned before any canned data.
	failures map[key][]error
	calls    []string
}

// Compile-time interface check.
var _ dart.Client = (*Client)(nil)

// NewClient creates an empty stub client.
func NewClient() *Client {
	return &Client{
		issuance:  make(map[key][]dart.IssuanceItem),
		allotment: make(map[key][]dart.AllotmentItem),
		splits:    make(map[key][]dart.SplitItem),
		mergers:   make(map[key][]dart.MergerItem),
		failures:  make(map[key][]error),
	}
}

// AddIssuance registers irdsSttus rows.
func (c *Client) AddIssuance(corpCode string, year int, items ...dart.IssuanceItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{domain.FeedIssuance, corpCode, year}
	c.issuance[k] = append(c.issuance[k], items...)
}

// AddAllotment registers alotMatter rows.
func (c *Client) AddAllotment(corpCode string, year int, items ...dart.AllotmentItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{domain.FeedAllotment, corpCode, year}
	c.allotment[k] = append(c.allotment[k], items...)
}

// AddSplits registers dvRs rows.
func (c *Client) AddSplits(corpCode string, year int, items ...dart.SplitItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{domain.FeedSplit, corpCode, year}
	c.splits[k] = append(c.splits[k], items...)
}

// AddMergers registers mgRs rows.
func (c *Client) AddMergers(corpCode string, year int, items ...dart.MergerItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{domain.FeedMerger, corpCode, year}
	c.mergers[k] = append(c.mergers[k], items...)
}

// FailNext queues errors returned by the next calls to feed for (corpCode, year).
func (c *Client) FailNext(feed domain.Feed, corpCode string, year int, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{feed, corpCode, year}
	c.failures[k] = append(c.failures[k], errs...)
}

// Calls returns the recorded calls as "feed:corpCode:year".
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

func (c *Client) record(k key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fmt.Sprintf("%s:%s:%d", k.feed, k.corpCode, k.year))
	if errs := c.failures[k]; len(errs) > 0 {
		c.failures[k] = errs[1:]
		return errs[0]
	}
	return nil
}

// IssuanceStatus returns canned irdsSttus rows.
func (c *Client) IssuanceStatus(ctx context.Context, corpCode string, year int, _ string) ([]dart.IssuanceItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := key{domain.FeedIssuance, corpCode, year}
	if err := c.record(k); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dart.IssuanceItem(nil), c.issuance[k]...), nil
}

// Allotment returns canned alotMatter rows.
func (c *Client) Allotment(ctx context.Context, corpCode string, year int, _ string) ([]dart.AllotmentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := key{domain.FeedAllotment, corpCode, year}
	if err := c.record(k); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dart.AllotmentItem(nil), c.allotment[k]...), nil
}

// SplitResolutions returns canned dvRs rows.
func (c *Client) SplitResolutions(ctx context.Context, corpCode string, begin, _ time.Time) ([]dart.SplitItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := key{domain.FeedSplit, corpCode, begin.Year()}
	if err := c.record(k); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dart.SplitItem(nil), c.splits[k]...), nil
}

// MergerResolutions returns canned mgRs rows.
func (c *Client) MergerResolutions(ctx context.Context, corpCode string, begin, _ time.Time) ([]dart.MergerItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := key{domain.FeedMerger, corpCode, begin.Year()}
	if err := c.record(k); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dart.MergerItem(nil), c.mergers[k]...), nil
}
