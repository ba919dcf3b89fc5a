package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/earth-layers-service/internal/adapter/earthengine"
	"github.com/couchcryptid/earth-layers-service/internal/adapter/retryhttp"
)

const dateLayout = "2006-01-02"

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	OutputDir       string

	// Earth Engine thumbnail provider.
	EEBaseURL     string
	EEProject     string
	EEAccessToken string
	EETimeout     time.Duration

	// Tile downloads.
	DownloadTimeout    time.Duration
	RetryMax           int
	RetryBackoffFactor time.Duration

	TileSize            int
	LegendCanvasSize    int
	PipelineConcurrency int

	StartDate string
	EndDate   string

	// Optional overrides of the built-in region set and layer catalog.
	RegionsFile string
	LayersFile  string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	eeTimeout, err := parseDuration("EE_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	downloadTimeout, err := parseDuration("DOWNLOAD_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	backoffFactor, err := parseDuration("RETRY_BACKOFF_FACTOR", "300ms")
	if err != nil {
		return nil, err
	}

	retryMax, err := parseInt("RETRY_MAX", 5, 0, 20)
	if err != nil {
		return nil, err
	}
	tileSize, err := parseInt("TILE_SIZE", 512, 16, 4096)
	if err != nil {
		return nil, err
	}
	canvasSize, err := parseInt("LEGEND_CANVAS_SIZE", 1000, 100, 8192)
	if err != nil {
		return nil, err
	}
	concurrency, err := parseInt("PIPELINE_CONCURRENCY", 1, 1, 16)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		OutputDir:       sharedcfg.EnvOrDefault("OUTPUT_DIR", "static"),

		EEBaseURL:     sharedcfg.EnvOrDefault("EE_BASE_URL", earthengine.DefaultBaseURL),
		EEProject:     os.Getenv("EE_PROJECT"),
		EEAccessToken: os.Getenv("EE_ACCESS_TOKEN"),
		EETimeout:     eeTimeout,

		DownloadTimeout:    downloadTimeout,
		RetryMax:           retryMax,
		RetryBackoffFactor: backoffFactor,

		TileSize:            tileSize,
		LegendCanvasSize:    canvasSize,
		PipelineConcurrency: concurrency,

		StartDate: sharedcfg.EnvOrDefault("START_DATE", "2023-01-01"),
		EndDate:   sharedcfg.EnvOrDefault("END_DATE", "2023-12-31"),

		RegionsFile: os.Getenv("REGIONS_FILE"),
		LayersFile:  os.Getenv("LAYERS_FILE"),
	}

	if cfg.EEProject == "" {
		return nil, errors.New("EE_PROJECT is required")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("OUTPUT_DIR must not be empty")
	}
	if err := validateDates(cfg.StartDate, cfg.EndDate); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RetryConfig returns the download retry policy.
func (c *Config) RetryConfig() retryhttp.Config {
	rc := retryhttp.DefaultConfig()
	rc.MaxRetries = c.RetryMax
	rc.BackoffFactor = c.RetryBackoffFactor
	rc.Timeout = c.DownloadTimeout
	return rc
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseInt(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer between %d and %d", key, lo, hi)
	}
	return n, nil
}

func validateDates(start, end string) error {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return fmt.Errorf("invalid START_DATE: %w", err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return fmt.Errorf("invalid END_DATE: %w", err)
	}
	if e.Before(s) {
		return errors.New("END_DATE is before START_DATE")
	}
	return nil
}
