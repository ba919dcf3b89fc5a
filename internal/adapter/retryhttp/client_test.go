package retryhttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/earth-layers-service/internal/observability"
)

func testClient() *Client {
	cfg := DefaultConfig()
	cfg.BackoffFactor = time.Millisecond
	cfg.Timeout = 5 * time.Second
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		clock:      clockwork.NewRealClock(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:    observability.NewMetricsForTesting(),
	}
}

// failingServer answers the first failures requests with status, then 200.
func failingServer(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		if n <= failures {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte("tile-bytes"))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestGet_Success(t *testing.T) {
	srv, calls := failingServer(t, 0, http.StatusOK)
	c := testClient()

	body, err := c.Get(context.Background(), srv.URL+"/thumb.png")
	require.NoError(t, err)
	assert.Equal(t, "tile-bytes", string(body))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGet_RecoversAfterFiveServerErrors(t *testing.T) {
	srv, calls := failingServer(t, 5, http.StatusInternalServerError)
	c := testClient()

	body, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "tile-bytes", string(body))
	assert.Equal(t, int32(6), calls.Load())
	assert.InDelta(t, 5, testutil.ToFloat64(c.metrics.DownloadRetries), 0)
}

func TestGet_FailsAfterSixServerErrors(t *testing.T) {
	srv, calls := failingServer(t, 6, http.StatusInternalServerError)
	c := testClient()

	_, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrStatus)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, int32(6), calls.Load())
}

func TestGet_RetriesGatewayStatuses(t *testing.T) {
	for _, status := range []int{http.StatusBadGateway, http.StatusGatewayTimeout} {
		srv, calls := failingServer(t, 2, status)
		c := testClient()

		_, err := c.Get(context.Background(), srv.URL)
		require.NoError(t, err, "status %d", status)
		assert.Equal(t, int32(3), calls.Load(), "status %d", status)
	}
}

func TestGet_DoesNotRetryClientErrors(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusServiceUnavailable} {
		srv, calls := failingServer(t, 10, status)
		c := testClient()

		_, err := c.Get(context.Background(), srv.URL)
		require.Error(t, err, "status %d", status)
		assert.ErrorIs(t, err, ErrStatus)
		assert.NotErrorIs(t, err, ErrRetriesExhausted)
		assert.Equal(t, int32(1), calls.Load(), "status %d should not be retried", status)
	}
}

func TestGet_RetriesConnectionErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close() // nothing listens any more

	c := testClient()
	c.cfg.MaxRetries = 2

	_, err := c.Get(context.Background(), addr)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestGet_InvalidURL(t *testing.T) {
	c := testClient()
	for _, raw := range []string{"", "ftp://example.com/a.png", "://nope", "/relative/path"} {
		_, err := c.Get(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestGet_ContextCancelled(t *testing.T) {
	srv, _ := failingServer(t, 100, http.StatusInternalServerError)
	c := testClient()
	c.cfg.BackoffFactor = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Get(ctx, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestGet_RedactsQueryInErrors(t *testing.T) {
	srv, _ := failingServer(t, 10, http.StatusNotFound)
	c := testClient()

	_, err := c.Get(context.Background(), srv.URL+"/thumb?token=secret")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}

func TestFactorBackOff(t *testing.T) {
	b := &factorBackOff{factor: 300 * time.Millisecond, max: 2 * time.Second}
	got := []time.Duration{b.NextBackOff(), b.NextBackOff(), b.NextBackOff(), b.NextBackOff(), b.NextBackOff()}
	want := []time.Duration{0, 600 * time.Millisecond, 1200 * time.Millisecond, 2 * time.Second, 2 * time.Second}
	assert.Equal(t, want, got)

	b.Reset()
	assert.Equal(t, time.Duration(0), b.NextBackOff())
}

func TestClockTimer_FakeClock(t *testing.T) {
	clk := clockwork.NewFakeClock()
	timer := &clockTimer{clock: clk}
	timer.Stop() // safe before Start

	timer.Start(time.Second)
	select {
	case <-timer.C():
		t.Fatal("timer fired before the clock advanced")
	default:
	}

	clk.Advance(time.Second)
	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire after advancing the clock")
	}
}
