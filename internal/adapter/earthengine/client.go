// Package earthengine requests tile thumbnails from the Earth Engine REST API.
package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/earth-layers-service/internal/domain"
	"github.com/couchcryptid/earth-layers-service/internal/observability"
)

// DefaultBaseURL is the public Earth Engine endpoint.
const DefaultBaseURL = "https://earthengine.googleapis.com"

var (
	// ErrCircuitOpen is returned while the breaker rejects calls after repeated failures.
	ErrCircuitOpen = errors.New("earth engine circuit open")
	errAPI         = errors.New("earth engine API error")
)

// Client implements domain.ThumbnailProvider.
type Client struct {
	baseURL    string
	project    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an Earth Engine thumbnail client for a cloud project.
func NewClient(baseURL, project, token string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		project:    project,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    newBreaker(logger),
		logger:     logger,
		metrics:    metrics,
	}
}

// statusError is a non-200 answer from the API.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: status %d: %s", errAPI, e.Code, e.Body)
}

func (e *statusError) Unwrap() error { return errAPI }

// isOutage reports whether err points at the service rather than the request.
// Only outages count toward opening the breaker, so one layer with a rejected
// source cannot block its siblings.
func isOutage(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code >= http.StatusInternalServerError || se.Code == http.StatusTooManyRequests
	}
	return !errors.Is(err, errAPI)
}

func newBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "earthengine",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isOutage(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// ThumbnailURL registers a thumbnail for req and returns its pixel URL.
func (c *Client) ThumbnailURL(ctx context.Context, req domain.ThumbnailRequest) (string, error) {
	body, err := json.Marshal(newThumbnailRequest(req))
	if err != nil {
		return "", fmt.Errorf("encode thumbnail request: %w", err)
	}

	u := fmt.Sprintf("%s/v1/projects/%s/thumbnails", c.baseURL, c.project)
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doRequest(ctx, u, body)
	})
	if err != nil {
		c.observe("error")
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return "", fmt.Errorf("thumbnail for region %s: %w", req.Region.ID, err)
	}

	name, ok := result.(string)
	if !ok {
		c.observe("error")
		return "", fmt.Errorf("unexpected result type from circuit breaker")
	}
	c.observe("success")
	return fmt.Sprintf("%s/v1/%s:getPixels", c.baseURL, name), nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("thumbnail request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &statusError{Code: resp.StatusCode, Body: string(snippet)}
	}

	var eeResp thumbnailResponse
	if err := json.NewDecoder(resp.Body).Decode(&eeResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if eeResp.Name == "" {
		return "", fmt.Errorf("%w: response has no thumbnail name", errAPI)
	}
	return eeResp.Name, nil
}

func (c *Client) observe(outcome string) {
	if c.metrics != nil {
		c.metrics.ThumbnailRequests.WithLabelValues(outcome).Inc()
	}
}

// Earth Engine API request and response types.

type thumbnailRequest struct {
	Expression           expression           `json:"expression"`
	FileFormat           string               `json:"fileFormat"`
	VisualizationOptions visualizationOptions `json:"visualizationOptions"`
}

type visualizationOptions struct {
	Ranges        []valueRange `json:"ranges"`
	PaletteColors []string     `json:"paletteColors"`
}

type valueRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type thumbnailResponse struct {
	Name string `json:"name"`
}

func newThumbnailRequest(req domain.ThumbnailRequest) thumbnailRequest {
	format := strings.ToUpper(req.Format)
	if format == "" {
		format = "PNG"
	}
	return thumbnailRequest{
		Expression: buildExpression(req),
		FileFormat: format,
		VisualizationOptions: visualizationOptions{
			Ranges:        []valueRange{{Min: req.Vis.Min, Max: req.Vis.Max}},
			PaletteColors: paletteHex(req.Vis.Palette),
		},
	}
}

// paletteHex normalizes palette entries to bare 6-digit hex. Entries that do
// not parse are passed through for the API to reject.
func paletteHex(palette []string) []string {
	out := make([]string, len(palette))
	for i, p := range palette {
		c, err := domain.ParseColor(p)
		if err != nil {
			out[i] = p
			continue
		}
		out[i] = fmt.Sprintf("%02x%02x%02x", c.R, c.G, c.B)
	}
	return out
}
