package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/earth-layers-service/internal/adapter/geojson"
	"github.com/couchcryptid/earth-layers-service/internal/domain"
)

// Catalog is everything a generation run needs besides credentials: the
// layers, the region set, and the arrangement of its tiles.
type Catalog struct {
	Layers      []domain.Layer
	Regions     domain.RegionSet
	Arrangement domain.Arrangement
}

// layersFile is the YAML layout of LAYERS_FILE. Omitted sections keep the
// built-in values.
type layersFile struct {
	Arrangement *domain.Arrangement `yaml:"arrangement"`
	Layers      []domain.Layer      `yaml:"layers"`
}

// Catalog loads the layer catalog and region set, falling back to the
// built-in France set and layers, and validates that they fit together.
func (c *Config) Catalog() (Catalog, error) {
	cat := Catalog{
		Layers:      domain.DefaultLayers(c.StartDate, c.EndDate),
		Regions:     domain.DefaultRegionSet(),
		Arrangement: domain.DefaultArrangement(),
	}

	if c.LayersFile != "" {
		lf, err := readLayersFile(c.LayersFile)
		if err != nil {
			return Catalog{}, err
		}
		if lf.Arrangement != nil {
			cat.Arrangement = *lf.Arrangement
		}
		if len(lf.Layers) > 0 {
			cat.Layers = lf.Layers
		}
	}

	if c.RegionsFile != "" {
		rs, err := geojson.LoadRegions(c.RegionsFile)
		if err != nil {
			return Catalog{}, fmt.Errorf("REGIONS_FILE: %w", err)
		}
		cat.Regions = rs
	}

	if err := domain.ValidateLayers(cat.Layers); err != nil {
		return Catalog{}, err
	}
	if err := cat.Regions.Validate(); err != nil {
		return Catalog{}, err
	}
	if err := cat.Arrangement.ValidateFor(cat.Regions); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

func readLayersFile(path string) (layersFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return layersFile{}, fmt.Errorf("LAYERS_FILE: %w", err)
	}
	var lf layersFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&lf); err != nil && !errors.Is(err, io.EOF) {
		return layersFile{}, fmt.Errorf("LAYERS_FILE %s: %w", path, err)
	}
	return lf, nil
}
