// Command validate checks a layer catalog, region set, and tile arrangement
// before deployment: layer definitions and legends, region geometry, and
// whether the arrangement lays the regions out north-to-south, west-to-east.
//
// Usage:
//
//	go run ./cmd/validate
//	go run ./cmd/validate -layers-file layers.yaml -regions-file regions.geojson
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/couchcryptid/earth-layers-service/internal/config"
	"github.com/couchcryptid/earth-layers-service/internal/domain"
	"github.com/couchcryptid/earth-layers-service/internal/legend"
	"github.com/couchcryptid/earth-layers-service/internal/mosaic"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	layersFile := flag.String("layers-file", "", "YAML layer catalog (default: built-in)")
	regionsFile := flag.String("regions-file", "", "GeoJSON region set (default: built-in France set)")
	start := flag.String("start", "2023-01-01", "collection start date")
	end := flag.String("end", "2023-12-31", "collection end date")
	flag.Parse()

	cfg := &config.Config{
		LayersFile:  *layersFile,
		RegionsFile: *regionsFile,
		StartDate:   *start,
		EndDate:     *end,
	}
	os.Exit(run(cfg))
}

func run(cfg *config.Config) int {
	fmt.Println("=== Earth Layers Catalog Validation ===")
	fmt.Println()

	cat, err := cfg.Catalog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load catalog: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateLegends(cat.Layers),
		validateRegions(cat.Regions),
		validateLayout(cat.Regions, cat.Arrangement),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Layers: %d, regions: %d, grid: %dx%d\n",
		len(cat.Layers), len(cat.Regions), cat.Arrangement.Columns, cat.Arrangement.Rows())
	printPlacement(cat.Regions, cat.Arrangement)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// validateLegends checks that every layer's palette parses into legend entries.
func validateLegends(layers []domain.Layer) *phase {
	p := &phase{name: "Layer legends"}
	for _, l := range layers {
		if _, err := legend.Entries(l.Vis); err != nil {
			p.errorf("%s: %v", l.Name, err)
		}
	}
	return p
}

// validateRegions checks that regions tile their union without overlap.
func validateRegions(regions domain.RegionSet) *phase {
	p := &phase{name: "Region geometry"}
	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			a, b := regions[i].Bound(), regions[j].Bound()
			// Shared edges are fine; only positive-area overlap counts.
			if a.Min.X() < b.Max.X() && b.Min.X() < a.Max.X() &&
				a.Min.Y() < b.Max.Y() && b.Min.Y() < a.Max.Y() {
				p.errorf("%s overlaps %s", regions[i].ID, regions[j].ID)
			}
		}
	}
	return p
}

// validateLayout checks that each grid row runs west to east and each column
// north to south.
func validateLayout(regions domain.RegionSet, a domain.Arrangement) *phase {
	p := &phase{name: "Arrangement layout (N→S, W→E)"}
	cells := mosaic.Placement(a)
	center := func(c mosaic.Cell) (lon, lat float64) {
		pt := regions[c.Source-1].Center()
		return pt.Lon(), pt.Lat()
	}
	for _, c := range cells {
		lon, lat := center(c)
		if c.Col > 0 {
			west := cells[c.Position-1]
			if wlon, _ := center(west); wlon >= lon {
				p.errorf("position %d (tile %d) is not east of tile %d", c.Position, c.Source, west.Source)
			}
		}
		if c.Row > 0 {
			north := cells[c.Position-a.Columns]
			if _, nlat := center(north); nlat <= lat {
				p.errorf("position %d (tile %d) is not south of tile %d", c.Position, c.Source, north.Source)
			}
		}
	}
	return p
}

func printPlacement(regions domain.RegionSet, a domain.Arrangement) {
	fmt.Println()
	for _, c := range mosaic.Placement(a) {
		if c.Col == 0 && c.Row > 0 {
			fmt.Println()
		}
		fmt.Printf("  %2d:%-12s", c.Source, regions[c.Source-1].ID)
	}
	fmt.Println()
}
