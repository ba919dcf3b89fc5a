package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/earth-layers-service/internal/adapter/geojson"
	"github.com/couchcryptid/earth-layers-service/internal/domain"
)

const testProject = "demo-project"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EE_PROJECT", testProject)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "static", cfg.OutputDir)
	assert.Equal(t, "https://earthengine.googleapis.com", cfg.EEBaseURL)
	assert.Equal(t, testProject, cfg.EEProject)
	assert.Empty(t, cfg.EEAccessToken)
	assert.Equal(t, 30*time.Second, cfg.EETimeout)
	assert.Equal(t, 60*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, 5, cfg.RetryMax)
	assert.Equal(t, 300*time.Millisecond, cfg.RetryBackoffFactor)
	assert.Equal(t, 512, cfg.TileSize)
	assert.Equal(t, 1000, cfg.LegendCanvasSize)
	assert.Equal(t, 1, cfg.PipelineConcurrency)
	assert.Equal(t, "2023-01-01", cfg.StartDate)
	assert.Equal(t, "2023-12-31", cfg.EndDate)
	assert.Empty(t, cfg.RegionsFile)
	assert.Empty(t, cfg.LayersFile)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("EE_PROJECT", testProject)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("OUTPUT_DIR", "/srv/maps")
	t.Setenv("EE_BASE_URL", "http://localhost:9000")
	t.Setenv("EE_ACCESS_TOKEN", "ya29.token")
	t.Setenv("EE_TIMEOUT", "5s")
	t.Setenv("DOWNLOAD_TIMEOUT", "2m")
	t.Setenv("RETRY_MAX", "3")
	t.Setenv("RETRY_BACKOFF_FACTOR", "1s")
	t.Setenv("TILE_SIZE", "256")
	t.Setenv("LEGEND_CANVAS_SIZE", "800")
	t.Setenv("PIPELINE_CONCURRENCY", "4")
	t.Setenv("START_DATE", "2022-06-01")
	t.Setenv("END_DATE", "2022-08-31")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/srv/maps", cfg.OutputDir)
	assert.Equal(t, "http://localhost:9000", cfg.EEBaseURL)
	assert.Equal(t, "ya29.token", cfg.EEAccessToken)
	assert.Equal(t, 5*time.Second, cfg.EETimeout)
	assert.Equal(t, 2*time.Minute, cfg.DownloadTimeout)
	assert.Equal(t, 3, cfg.RetryMax)
	assert.Equal(t, time.Second, cfg.RetryBackoffFactor)
	assert.Equal(t, 256, cfg.TileSize)
	assert.Equal(t, 800, cfg.LegendCanvasSize)
	assert.Equal(t, 4, cfg.PipelineConcurrency)
	assert.Equal(t, "2022-06-01", cfg.StartDate)
	assert.Equal(t, "2022-08-31", cfg.EndDate)

	rc := cfg.RetryConfig()
	assert.Equal(t, 3, rc.MaxRetries)
	assert.Equal(t, time.Second, rc.BackoffFactor)
	assert.Equal(t, 2*time.Minute, rc.Timeout)
	assert.Equal(t, []int{500, 502, 504}, rc.RetryStatuses)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"EE_TIMEOUT", "bad"},
		{"DOWNLOAD_TIMEOUT", "0s"},
		{"RETRY_BACKOFF_FACTOR", "fast"},
		{"RETRY_MAX", "-1"},
		{"RETRY_MAX", "many"},
		{"TILE_SIZE", "8"},
		{"LEGEND_CANVAS_SIZE", "99999"},
		{"PIPELINE_CONCURRENCY", "0"},
		{"START_DATE", "01/01/2023"},
		{"END_DATE", "2023-13-01"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv("EE_PROJECT", testProject)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_MissingProject(t *testing.T) {
	t.Setenv("EE_PROJECT", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EE_PROJECT")
}

func TestLoad_EndBeforeStart(t *testing.T) {
	t.Setenv("EE_PROJECT", testProject)
	t.Setenv("START_DATE", "2023-06-01")
	t.Setenv("END_DATE", "2023-01-01")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "END_DATE")
}

func TestLoad_RetryMaxZeroAllowed(t *testing.T) {
	t.Setenv("EE_PROJECT", testProject)
	t.Setenv("RETRY_MAX", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.RetryConfig().MaxRetries)
}

func TestCatalog_Defaults(t *testing.T) {
	cfg := &Config{StartDate: "2023-01-01", EndDate: "2023-12-31"}
	cat, err := cfg.Catalog()
	require.NoError(t, err)
	assert.Len(t, cat.Layers, 4)
	assert.Len(t, cat.Regions, 9)
	assert.Equal(t, domain.DefaultArrangement(), cat.Arrangement)
	assert.Equal(t, "2023-01-01", cat.Layers[0].Source.StartDate)
}

func TestCatalog_LayersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
arrangement:
  columns: 3
  order: [1, 2, 3, 4, 5, 6, 7, 8, 9]
layers:
  - name: ndwi
    title: Water index
    source:
      dataset: COPERNICUS/S2_HARMONIZED
      band: NDWI
      normalized_difference: [B3, B8]
      reducer: median
    vis:
      min: -1
      max: 1
      palette: [brown, "#ffffff", blue]
      labels: [Dry, Neutral, Water]
`), 0o600))

	cfg := &Config{LayersFile: path, StartDate: "2023-01-01", EndDate: "2023-12-31"}
	cat, err := cfg.Catalog()
	require.NoError(t, err)
	require.Len(t, cat.Layers, 1)
	assert.Equal(t, "ndwi", cat.Layers[0].Name)
	assert.Equal(t, []string{"B3", "B8"}, cat.Layers[0].Source.NormalizedDifference)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9}, cat.Arrangement.Order)
}

func TestCatalog_LayersFileMismatchedLabels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
layers:
  - name: bad
    source: {dataset: X, band: b}
    vis: {min: 0, max: 1, palette: [red, blue], labels: [one]}
`), 0o600))

	cfg := &Config{LayersFile: path}
	_, err := cfg.Catalog()
	require.ErrorIs(t, err, domain.ErrInvalidLayer)
}

func TestCatalog_LayersFileUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("colours: [red]\n"), 0o600))

	cfg := &Config{LayersFile: path}
	_, err := cfg.Catalog()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LAYERS_FILE")
}

func TestCatalog_RegionsFileMustMatchArrangement(t *testing.T) {
	data, err := geojson.EncodeRegions(domain.DefaultRegionSet()[:6])
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "regions.geojson")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg := &Config{RegionsFile: path, StartDate: "2023-01-01", EndDate: "2023-12-31"}
	_, err = cfg.Catalog()
	require.ErrorIs(t, err, domain.ErrInvalidArrangement)
}
