package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for layer generation.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	LayersRendered  prometheus.Gauge

	// Provider and download metrics.
	ThumbnailRequests *prometheus.CounterVec // labels: outcome={success,error}
	TilesDownloaded   *prometheus.CounterVec // labels: layer
	DownloadRetries   prometheus.Counter

	// Per-layer pipeline metrics.
	LayerDuration *prometheus.HistogramVec // labels: layer
	LayerFailures *prometheus.CounterVec   // labels: layer, stage={validate,fetch,assemble,render}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.LayersRendered,
		m.ThumbnailRequests,
		m.TilesDownloaded,
		m.DownloadRetries,
		m.LayerDuration,
		m.LayerFailures,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "earth_layers",
			Name:      "pipeline_running",
			Help:      "1 while layers are being generated, 0 otherwise.",
		}),
		LayersRendered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "earth_layers",
			Name:      "layers_rendered",
			Help:      "Number of layer maps written by the last generation run.",
		}),
		ThumbnailRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "earth_layers",
			Name:      "thumbnail_requests_total",
			Help:      "Thumbnail URL requests to the data provider by outcome.",
		}, []string{"outcome"}),
		TilesDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "earth_layers",
			Name:      "tiles_downloaded_total",
			Help:      "Tile images downloaded and written to disk.",
		}, []string{"layer"}),
		DownloadRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "earth_layers",
			Name:      "download_retries_total",
			Help:      "Download attempts retried after a transient failure.",
		}),
		LayerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "earth_layers",
			Name:      "layer_duration_seconds",
			Help:      "Duration of a complete fetch-assemble-render run for one layer.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"layer"}),
		LayerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "earth_layers",
			Name:      "layer_failures_total",
			Help:      "Layer runs aborted, by pipeline stage.",
		}, []string{"layer", "stage"}),
	}
}
