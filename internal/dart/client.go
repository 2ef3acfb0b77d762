// Package dart is an HTTP client for the OpenDART disclosure API.
package dart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"dividend-screener/internal/observability"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://opendart.fss.or.kr/api"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
	DefaultRateLimit   = 5 // requests per second
)

const dateLayout = "20060102"

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	logger      *zap.Logger
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *HTTPClient) {
		c.baseURL = u
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for transport failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the limiter.
func WithRateLimit(rps float64) ClientOption {
	return func(c *HTTPClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *HTTPClient) {
		c.logger = l
	}
}

// NewHTTPClient creates a new OpenDART client authenticated with apiKey.
func NewHTTPClient(apiKey string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:     DefaultBaseURL,
		apiKey:      apiKey,
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IssuanceStatus calls irdsSttus.json.
func (c *HTTPClient) IssuanceStatus(ctx context.Context, corpCode string, year int, reportCode string) ([]IssuanceItem, error) {
	var items []IssuanceItem
	if err := c.get(ctx, "irdsSttus.json", reportParams(corpCode, year, reportCode), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Allotment calls alotMatter.json.
func (c *HTTPClient) Allotment(ctx context.Context, corpCode string, year int, reportCode string) ([]AllotmentItem, error) {
	var items []AllotmentItem
	if err := c.get(ctx, "alotMatter.json", reportParams(corpCode, year, reportCode), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SplitResolutions calls dvRs.json.
func (c *HTTPClient) SplitResolutions(ctx context.Context, corpCode string, begin, end time.Time) ([]SplitItem, error) {
	var items []SplitItem
	if err := c.get(ctx, "dvRs.json", periodParams(corpCode, begin, end), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// MergerResolutions calls mgRs.json.
func (c *HTTPClient) MergerResolutions(ctx context.Context, corpCode string, begin, end time.Time) ([]MergerItem, error) {
	var items []MergerItem
	if err := c.get(ctx, "mgRs.json", periodParams(corpCode, begin, end), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func reportParams(corpCode string, year int, reportCode string) url.Values {
	p := url.Values{}
	p.Set("corp_code", corpCode)
	p.Set("bsns_year", strconv.Itoa(year))
	p.Set("reprt_code", reportCode)
	return p
}

func periodParams(corpCode string, begin, end time.Time) url.Values {
	p := url.Values{}
	p.Set("corp_code", corpCode)
	p.Set("bgn_de", begin.Format(dateLayout))
	p.Set("end_de", end.Format(dateLayout))
	return p
}

// get performs a GET with retries on transport failures and 5xx responses.
// OpenDART status errors are returned immediately as *APIError.
// StatusNoData yields an empty list.
func (c *HTTPClient) get(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	params.Set("crtfc_key", c.apiKey)
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	start := time.Now()
	defer func() {
		observability.RecordAPILatency(endpoint, time.Since(start).Seconds())
	}()

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter wait: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			c.logger.Debug("opendart request failed", zap.String("endpoint", endpoint), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return &APIError{Endpoint: endpoint, HTTPStatus: resp.StatusCode, Message: "too many requests"}
		}
		if resp.StatusCode >= 500 {
			lastErr = &APIError{Endpoint: endpoint, HTTPStatus: resp.StatusCode, Message: truncate(string(body))}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return &APIError{Endpoint: endpoint, HTTPStatus: resp.StatusCode, Message: truncate(string(body))}
		}

		return decodeEnvelope(endpoint, body, result)
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func decodeEnvelope(endpoint string, body []byte, result interface{}) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unmarshal %s envelope: %w", endpoint, err)
	}

	switch env.Status {
	case StatusOK:
	case StatusNoData:
		return nil
	default:
		return &APIError{Endpoint: endpoint, HTTPStatus: http.StatusOK, Status: env.Status, Message: env.Message}
	}

	if len(env.List) == 0 || string(env.List) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.List, result); err != nil {
		return fmt.Errorf("unmarshal %s list: %w", endpoint, err)
	}
	return nil
}

// IsRateLimited reports whether err is an OpenDART rate limit signal.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

func truncate(s string) string {
	const limit = 256
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
