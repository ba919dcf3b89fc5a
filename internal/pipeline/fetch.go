package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/earth-layers-service/internal/domain"
	"github.com/couchcryptid/earth-layers-service/internal/observability"
)

// Downloader retrieves the bytes behind a URL.
type Downloader interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// TileFetcher requests one thumbnail per region and saves the tiles to disk.
type TileFetcher struct {
	provider   domain.ThumbnailProvider
	downloader Downloader
	outputDir  string
	tileSize   int
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewTileFetcher creates a fetcher writing tileSize x tileSize tiles to outputDir.
func NewTileFetcher(p domain.ThumbnailProvider, d Downloader, outputDir string, tileSize int, logger *slog.Logger, metrics *observability.Metrics) *TileFetcher {
	return &TileFetcher{
		provider:   p,
		downloader: d,
		outputDir:  outputDir,
		tileSize:   tileSize,
		logger:     logger,
		metrics:    metrics,
	}
}

// Fetch resolves a thumbnail URL for every region, then downloads each tile in
// region order. Tile i of the manifest belongs to regions[i-1]. Any failure
// aborts the layer.
func (f *TileFetcher) Fetch(ctx context.Context, layer domain.Layer, regions domain.RegionSet) (domain.Manifest, error) {
	m := domain.Manifest{Layer: layer.Name, Tiles: make([]domain.TileRef, 0, len(regions))}

	for i, region := range regions {
		url, err := f.provider.ThumbnailURL(ctx, domain.ThumbnailRequest{
			Source: layer.Source,
			Region: region,
			Width:  f.tileSize,
			Height: f.tileSize,
			Format: "png",
			Vis:    layer.Vis,
		})
		if err != nil {
			return domain.Manifest{}, fmt.Errorf("%s tile %d: %w", layer.Name, i+1, err)
		}
		f.logger.Info("thumbnail url", "layer", layer.Name, "tile", i+1, "region", region.ID, "url", url)
		m.Tiles = append(m.Tiles, domain.TileRef{
			Index:    i + 1,
			RegionID: region.ID,
			URL:      url,
			Path:     filepath.Join(f.outputDir, domain.TileFilename(layer.Name, i+1)),
		})
	}

	for _, ref := range m.Tiles {
		data, err := f.downloader.Get(ctx, ref.URL)
		if err != nil {
			return domain.Manifest{}, fmt.Errorf("%s tile %d: %w", layer.Name, ref.Index, err)
		}
		if err := os.WriteFile(ref.Path, data, 0o644); err != nil { //nolint:gosec // tiles are served publicly
			return domain.Manifest{}, fmt.Errorf("write %s: %w", ref.Path, err)
		}
		f.metrics.TilesDownloaded.WithLabelValues(layer.Name).Inc()
		f.logger.Info("tile downloaded",
			"layer", layer.Name,
			"tile", ref.Index,
			"progress", fmt.Sprintf("%d/%d", ref.Index, len(m.Tiles)),
			"bytes", len(data),
		)
	}
	return m, nil
}
