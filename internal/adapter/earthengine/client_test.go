package earthengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/earth-layers-service/internal/domain"
	"github.com/couchcryptid/earth-layers-service/internal/observability"
)

const (
	testToken         = "test-token"
	testProject       = "demo-project"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Client{
		baseURL:    baseURL,
		project:    testProject,
		token:      testToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		breaker:    newBreaker(logger),
		logger:     logger,
		metrics:    observability.NewMetricsForTesting(),
	}
}

func testRequest() domain.ThumbnailRequest {
	layer := domain.DefaultLayers("2023-01-01", "2023-12-31")[0]
	return domain.ThumbnailRequest{
		Source: layer.Source,
		Region: domain.DefaultRegionSet()[0],
		Width:  512,
		Height: 512,
		Format: "png",
		Vis:    layer.Vis,
	}
}

func TestClient_ThumbnailURL_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/projects/"+testProject+"/thumbnails", r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))

		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(data, &raw))
		assert.NotContains(t, raw, "region")
		assert.NotContains(t, raw, "grid")

		var req thumbnailRequest
		require.NoError(t, json.Unmarshal(data, &req))
		assert.Equal(t, "PNG", req.FileFormat)
		assert.Equal(t, []string{"0000ff", "ffffff", "008000"}, req.VisualizationOptions.PaletteColors)
		require.Len(t, req.VisualizationOptions.Ranges, 1)
		assert.InDelta(t, 1.0, req.VisualizationOptions.Ranges[0].Max, 0)

		root := req.Expression.Values[req.Expression.Result].FunctionInvocationValue
		require.NotNil(t, root)
		assert.Equal(t, "Image.clipToBoundsAndScale", root.FunctionName)
		assert.InDelta(t, 512, root.Arguments["width"].ConstantValue, 0)

		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(thumbnailResponse{
			Name: "projects/" + testProject + "/thumbnails/abc123",
		}))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	got, err := c.ThumbnailURL(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/v1/projects/"+testProject+"/thumbnails/abc123:getPixels", got)
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.ThumbnailRequests.WithLabelValues("success")), 0)
}

func TestClient_ThumbnailURL_NoToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"name":"thumb"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.token = ""
	_, err := c.ThumbnailURL(context.Background(), testRequest())
	require.NoError(t, err)
}

func TestClient_ThumbnailURL_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Request had invalid authentication credentials."}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.ThumbnailURL(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "france-1")
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.ThumbnailRequests.WithLabelValues("error")), 0)
}

func TestClient_ThumbnailURL_EmptyName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ThumbnailURL(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, errAPI)
}

func TestClient_ThumbnailURL_CircuitOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	for range 5 {
		_, err := c.ThumbnailURL(context.Background(), testRequest())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	_, err := c.ThumbnailURL(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(5), calls.Load())
}

func TestClient_ThumbnailURL_RejectedRequestsDoNotOpenCircuit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), `"bad"`) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"ImageCollection.load: collection not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"name":"projects/demo-project/thumbnails/ok"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	bad := testRequest()
	bad.Source.Dataset = "bad"
	for range 6 {
		_, err := c.ThumbnailURL(context.Background(), bad)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	got, err := c.ThumbnailURL(context.Background(), testRequest())
	require.NoError(t, err, "a healthy layer must not be blocked by rejected siblings")
	assert.Contains(t, got, "thumbnails/ok:getPixels")
}

func TestIsOutage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &statusError{Code: http.StatusInternalServerError}, true},
		{"unavailable", &statusError{Code: http.StatusServiceUnavailable}, true},
		{"rate limited", &statusError{Code: http.StatusTooManyRequests}, true},
		{"bad request", &statusError{Code: http.StatusBadRequest}, false},
		{"unauthorized", &statusError{Code: http.StatusUnauthorized}, false},
		{"empty name", fmt.Errorf("%w: response has no thumbnail name", errAPI), false},
		{"transport", errors.New("dial tcp: connection refused"), true},
		{"cancelled", fmt.Errorf("thumbnail request: %w", context.Canceled), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOutage(tt.err))
		})
	}
}

func TestClient_ThumbnailURL_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}

	_, err := c.ThumbnailURL(context.Background(), testRequest())
	require.Error(t, err)
}

func TestPaletteHex(t *testing.T) {
	got := paletteHex([]string{"blue", "#FF0000", "0f0", "not-a-color"})
	assert.Equal(t, []string{"0000ff", "ff0000", "00ff00", "not-a-color"}, got)
}
