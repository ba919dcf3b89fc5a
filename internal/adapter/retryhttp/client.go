// Package retryhttp downloads URLs with bounded retries for transient failures.
package retryhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/earth-layers-service/internal/observability"
)

var (
	// ErrRetriesExhausted is returned when every attempt failed with a retryable error.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrStatus wraps any non-success HTTP status.
	ErrStatus = errors.New("unexpected status")
	// ErrInvalidURL is returned for URLs that cannot be requested.
	ErrInvalidURL = errors.New("invalid url")
)

// Config controls the retry policy.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BackoffFactor scales the delay between retries: the first retry is
	// immediate, then factor*2^(n-1) for the n-th consecutive failure.
	BackoffFactor time.Duration
	MaxBackoff    time.Duration
	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration
	// RetryStatuses lists the HTTP statuses treated as transient.
	RetryStatuses []int
}

// DefaultConfig returns 5 retries with a 0.3 s factor on 500, 502 and 504.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    5,
		BackoffFactor: 300 * time.Millisecond,
		MaxBackoff:    120 * time.Second,
		Timeout:       60 * time.Second,
		RetryStatuses: []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout},
	}
}

// Client downloads response bodies, retrying transient failures.
type Client struct {
	httpClient *http.Client
	cfg        Config
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a retrying client with its own connection pool.
func NewClient(cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
		metrics:    metrics,
	}
}

// CloseIdleConnections releases pooled connections once a run is finished.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Get fetches rawURL and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	var (
		body      []byte
		attempts  int
		retryable bool
	)
	op := func() error {
		attempts++
		data, transient, err := c.do(ctx, rawURL)
		retryable = transient
		if err != nil {
			if !transient {
				return backoff.Permanent(err)
			}
			return err
		}
		body = data
		return nil
	}

	notify := func(err error, next time.Duration) {
		c.logger.Warn("retrying download",
			"url", redact(u),
			"attempt", attempts,
			"delay", next,
			"error", err,
		)
		if c.metrics != nil {
			c.metrics.DownloadRetries.Inc()
		}
	}

	err = backoff.RetryNotifyWithTimer(op, c.policy(ctx), notify, &clockTimer{clock: c.clock})
	switch {
	case err == nil:
		return body, nil
	case ctx.Err() != nil:
		return nil, fmt.Errorf("download %s: %w", redact(u), ctx.Err())
	case retryable:
		return nil, fmt.Errorf("download %s: %w after %d attempts: %w", redact(u), ErrRetriesExhausted, attempts, err)
	default:
		return nil, fmt.Errorf("download %s: %w", redact(u), err)
	}
}

// do performs one attempt and reports whether a failure is worth retrying.
func (c *Client) do(ctx context.Context, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Connect and read failures are transient unless the caller gave up.
		return nil, ctx.Err() == nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, slices.Contains(c.cfg.RetryStatuses, resp.StatusCode),
			fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, snippet)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("read body: %w", err)
	}
	return data, false, nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOffContext {
	if c.cfg.MaxRetries <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := &factorBackOff{factor: c.cfg.BackoffFactor, max: c.cfg.MaxBackoff}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)
}

// redact drops the query string, which may carry provider tokens.
func redact(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	return clean.String()
}

// factorBackOff yields 0 for the first retry and factor*2^(n-1) afterwards.
type factorBackOff struct {
	factor time.Duration
	max    time.Duration
	errors int
}

func (b *factorBackOff) NextBackOff() time.Duration {
	b.errors++
	if b.errors <= 1 {
		return 0
	}
	shift := min(b.errors-1, 30)
	d := b.factor * time.Duration(1<<shift)
	if b.max > 0 && (d > b.max || d < 0) {
		return b.max
	}
	return d
}

func (b *factorBackOff) Reset() { b.errors = 0 }

// clockTimer adapts a clockwork clock to backoff.Timer.
type clockTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.clock.NewTimer(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.Chan()
}
