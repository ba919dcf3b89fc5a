// Command gentiles renders the layer maps from synthetic tiles, without
// contacting the data provider. Each tile is a color ramp over the layer
// palette computed from the region's position, with the tile index drawn in
// its center, so a correctly arranged mosaic shows one continuous ramp.
//
// Usage:
//
//	go run ./cmd/gentiles -out static -size 128
//	go run ./cmd/gentiles -out /tmp/maps -layers vegetation,moisture -regions-out regions.geojson
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/couchcryptid/earth-layers-service/internal/adapter/geojson"
	"github.com/couchcryptid/earth-layers-service/internal/domain"
	"github.com/couchcryptid/earth-layers-service/internal/legend"
	"github.com/couchcryptid/earth-layers-service/internal/mosaic"
	"github.com/couchcryptid/earth-layers-service/internal/observability"
	"github.com/couchcryptid/earth-layers-service/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "static", "output directory for tiles and maps")
	size := flag.Int("size", 128, "tile size in pixels")
	canvas := flag.Int("canvas", legend.DefaultCanvasSize, "legend canvas size in pixels")
	only := flag.String("layers", "", "comma-separated layer names (default: all)")
	regionsOut := flag.String("regions-out", "", "also write the built-in region set as GeoJSON to this path")
	flag.Parse()

	if *size < 8 {
		flag.Usage()
		return fmt.Errorf("-size must be at least 8")
	}

	// Set a fixed clock for reproducible result timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2023, time.December, 31, 12, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	regions := domain.DefaultRegionSet()
	if *regionsOut != "" {
		data, err := geojson.EncodeRegions(regions)
		if err != nil {
			return fmt.Errorf("encode regions: %w", err)
		}
		if err := os.WriteFile(*regionsOut, data, 0o644); err != nil { //nolint:gosec // fixture output
			return fmt.Errorf("write regions: %w", err)
		}
		log.Printf("regions: %s", *regionsOut)
	}

	layers := selectLayers(domain.DefaultLayers("2023-01-01", "2023-12-31"), *only)
	if len(layers) == 0 {
		return fmt.Errorf("no layers match %q", *only)
	}

	if err := os.MkdirAll(*out, 0o755); err != nil { //nolint:gosec // served publicly
		return fmt.Errorf("create output dir: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	metrics := observability.NewMetricsForTesting()
	src := newSyntheticSource(regions.Bound())

	p := pipeline.New(
		pipeline.NewTileFetcher(src, src, *out, *size, logger, metrics),
		pipeline.AssembleFunc(mosaic.Assemble),
		legend.NewRenderer(*canvas, logger),
		pipeline.Grid{Regions: regions, Arrangement: domain.DefaultArrangement()},
		*out,
		logger,
		metrics,
	)
	runner := pipeline.NewRunner(p, 1, logger, metrics)
	if err := runner.RunAll(context.Background(), layers); err != nil {
		return err
	}

	for _, res := range runner.Results() {
		log.Printf("%s: %s", res.Layer, res.Path)
	}
	return nil
}

func selectLayers(all []domain.Layer, only string) []domain.Layer {
	if only == "" {
		return all
	}
	names := strings.Split(only, ",")
	return slices.DeleteFunc(all, func(l domain.Layer) bool {
		return !slices.Contains(names, l.Name)
	})
}

// syntheticSource stands in for both the thumbnail provider and the
// downloader. URLs carry no data; the request is remembered under its URL.
type syntheticSource struct {
	bound orb.Bound

	mu       sync.Mutex
	requests map[string]domain.ThumbnailRequest
	indexes  map[string]int // tiles requested per source
}

func newSyntheticSource(bound orb.Bound) *syntheticSource {
	return &syntheticSource{
		bound:    bound,
		requests: make(map[string]domain.ThumbnailRequest),
		indexes:  make(map[string]int),
	}
}

func (s *syntheticSource) ThumbnailURL(_ context.Context, req domain.ThumbnailRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := req.Source.Dataset + "/" + req.Source.Band
	s.indexes[key]++
	u := fmt.Sprintf("synthetic://%s/%s/%d", key, req.Region.ID, s.indexes[key])
	s.requests[u] = req
	return u, nil
}

func (s *syntheticSource) Get(_ context.Context, u string) ([]byte, error) {
	s.mu.Lock()
	req, ok := s.requests[u]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown synthetic url %q", u)
	}
	index, _ := strconv.Atoi(u[strings.LastIndex(u, "/")+1:])

	img, err := s.render(req, index)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// render draws a diagonal ramp over the palette, continuous across the whole
// region set, and labels the tile with its index.
func (s *syntheticSource) render(req domain.ThumbnailRequest, index int) (*image.NRGBA, error) {
	palette := make([]color.NRGBA, 0, len(req.Vis.Palette))
	for _, p := range req.Vis.Palette {
		c, err := domain.ParseColor(p)
		if err != nil {
			return nil, err
		}
		palette = append(palette, c)
	}

	rb := req.Region.Bound()
	img := image.NewNRGBA(image.Rect(0, 0, req.Width, req.Height))
	for y := range req.Height {
		lat := rb.Max.Lat() - (rb.Max.Lat()-rb.Min.Lat())*(float64(y)+0.5)/float64(req.Height)
		for x := range req.Width {
			lon := rb.Min.Lon() + (rb.Max.Lon()-rb.Min.Lon())*(float64(x)+0.5)/float64(req.Width)
			tx := (lon - s.bound.Min.Lon()) / (s.bound.Max.Lon() - s.bound.Min.Lon())
			ty := (s.bound.Max.Lat() - lat) / (s.bound.Max.Lat() - s.bound.Min.Lat())
			img.SetNRGBA(x, y, ramp(palette, (tx+ty)/2))
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
	}
	label := strconv.Itoa(index)
	d.Dot = fixed.P((req.Width-d.MeasureString(label).Ceil())/2, req.Height/2+5)
	d.DrawString(label)
	return img, nil
}

func ramp(palette []color.NRGBA, t float64) color.NRGBA {
	if len(palette) == 1 {
		return palette[0]
	}
	t = min(max(t, 0), 1)
	pos := t * float64(len(palette)-1)
	i := min(int(pos), len(palette)-2)
	f := pos - float64(i)
	a, b := palette[i], palette[i+1]
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*f) }
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xff}
}
