package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/couchcryptid/earth-layers-service/internal/domain"
	"github.com/couchcryptid/earth-layers-service/internal/legend"
	"github.com/couchcryptid/earth-layers-service/internal/observability"
)

// Fetcher downloads the tiles of a layer for a region set.
type Fetcher interface {
	Fetch(ctx context.Context, layer domain.Layer, regions domain.RegionSet) (domain.Manifest, error)
}

// Assembler composes a manifest's tiles into one image.
type Assembler interface {
	Assemble(m domain.Manifest, a domain.Arrangement) (*image.NRGBA, error)
}

// AssembleFunc adapts a function to the Assembler interface.
type AssembleFunc func(m domain.Manifest, a domain.Arrangement) (*image.NRGBA, error)

// Assemble calls f(m, a).
func (f AssembleFunc) Assemble(m domain.Manifest, a domain.Arrangement) (*image.NRGBA, error) {
	return f(m, a)
}

// Renderer draws the annotated map to path.
type Renderer interface {
	Render(ctx context.Context, path string, composite image.Image, entries []legend.Entry) error
}

// Grid is the region set and the arrangement that lays its tiles out.
type Grid struct {
	Regions     domain.RegionSet
	Arrangement domain.Arrangement
}

// Result is the outcome of one layer run.
type Result struct {
	Layer       string
	Title       string
	Path        string
	Duration    time.Duration
	GeneratedAt time.Time
	Err         error
}

// Pipeline runs fetch, assemble, and render for one layer at a time.
type Pipeline struct {
	fetcher   Fetcher
	assembler Assembler
	renderer  Renderer
	grid      Grid
	outputDir string
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New creates a Pipeline with the given stages and observability.
func New(f Fetcher, a Assembler, r Renderer, grid Grid, outputDir string, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		fetcher:   f,
		assembler: a,
		renderer:  r,
		grid:      grid,
		outputDir: outputDir,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run produces the annotated map for layer. No file is written for the layer
// map unless every stage succeeds.
func (p *Pipeline) Run(ctx context.Context, layer domain.Layer) (Result, error) {
	start := time.Now()
	res := Result{
		Layer: layer.Name,
		Title: layer.Title,
		Path:  filepath.Join(p.outputDir, domain.ArtifactFilename(layer.Name)),
	}
	log := p.logger.With("layer", layer.Name)
	log.Info("layer started", "regions", len(p.grid.Regions))

	fail := func(stage string, err error) (Result, error) {
		p.metrics.LayerFailures.WithLabelValues(layer.Name, stage).Inc()
		log.Error("layer failed", "stage", stage, "error", err)
		res.Err = fmt.Errorf("%s: %s: %w", layer.Name, stage, err)
		res.Duration = time.Since(start)
		res.GeneratedAt = domain.Now()
		return res, res.Err
	}

	entries, err := legend.Entries(layer.Vis)
	if err != nil {
		return fail("validate", err)
	}

	manifest, err := p.fetcher.Fetch(ctx, layer, p.grid.Regions)
	if err != nil {
		return fail("fetch", err)
	}

	composite, err := p.assembler.Assemble(manifest, p.grid.Arrangement)
	if err != nil {
		return fail("assemble", err)
	}

	if err := p.renderer.Render(ctx, res.Path, composite, entries); err != nil {
		return fail("render", err)
	}

	res.Duration = time.Since(start)
	res.GeneratedAt = domain.Now()
	p.metrics.LayerDuration.WithLabelValues(layer.Name).Observe(res.Duration.Seconds())
	log.Info("layer rendered", "path", res.Path, "duration", res.Duration)
	return res, nil
}
