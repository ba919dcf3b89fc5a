package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/earth-layers-service/internal/domain"
	"github.com/couchcryptid/earth-layers-service/internal/observability"
)

// LayerRunner produces the map for a single layer.
type LayerRunner interface {
	Run(ctx context.Context, layer domain.Layer) (Result, error)
}

// Runner generates every configured layer once.
type Runner struct {
	layers      LayerRunner
	concurrency int
	logger      *slog.Logger
	metrics     *observability.Metrics

	mu      sync.RWMutex
	results []Result
	done    bool
}

// NewRunner creates a Runner executing up to concurrency layers at a time.
func NewRunner(lr LayerRunner, concurrency int, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		layers:      lr,
		concurrency: max(concurrency, 1),
		logger:      logger,
		metrics:     metrics,
	}
}

// RunAll validates the catalog, then runs each layer exactly once. A failing
// layer does not stop the others; all failures are joined in the returned error.
func (r *Runner) RunAll(ctx context.Context, layers []domain.Layer) error {
	if err := domain.ValidateLayers(layers); err != nil {
		return err
	}

	r.logger.Info("generation started", "layers", len(layers), "concurrency", r.concurrency)
	r.metrics.PipelineRunning.Set(1)
	defer r.metrics.PipelineRunning.Set(0)

	results := make([]Result, len(layers))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, layer := range layers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Layer: layer.Name, Title: layer.Title, Err: err, GeneratedAt: domain.Now()}
				return nil
			}
			res, err := r.layers.Run(ctx, layer)
			if err != nil && res.Err == nil {
				res.Err = err
			}
			res.Layer, res.Title = layer.Name, layer.Title
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	rendered := 0
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
			continue
		}
		rendered++
	}
	r.metrics.LayersRendered.Set(float64(rendered))

	r.mu.Lock()
	r.results = results
	r.done = true
	r.mu.Unlock()

	r.logger.Info("generation finished", "rendered", rendered, "failed", len(errs))
	return errors.Join(errs...)
}

// Results returns the outcome of the last RunAll in catalog order.
func (r *Runner) Results() []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Result, len(r.results))
	copy(out, r.results)
	return out
}

// CheckReadiness returns nil once every layer has been rendered.
func (r *Runner) CheckReadiness(_ context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.done {
		return errors.New("layers have not been generated yet")
	}
	for _, res := range r.results {
		if res.Err != nil {
			return fmt.Errorf("layer %s failed: %w", res.Layer, res.Err)
		}
	}
	return nil
}
