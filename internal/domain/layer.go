package domain

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidLayer is returned when a layer definition fails validation.
var ErrInvalidLayer = errors.New("invalid layer")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("palettecolor", func(fl validator.FieldLevel) bool {
		_, err := ParseColor(fl.Field().String())
		return err == nil
	})
	return v
}

// Source is the provider-side description of a layer's scalar raster. The
// thumbnail provider compiles it into a remote computation. A Source with a
// Reducer names an image collection filtered to the date window and reduced
// per pixel; without one, Dataset is a single image.
type Source struct {
	Dataset string `yaml:"dataset" json:"dataset" validate:"required"`
	Band    string `yaml:"band" json:"band" validate:"required"`
	// NormalizedDifference names the two bands of a (a-b)/(a+b) index, e.g. NDVI from B8 and B4.
	NormalizedDifference []string `yaml:"normalized_difference,omitempty" json:"normalizedDifference,omitempty" validate:"omitempty,len=2"`
	Mask                 string   `yaml:"mask,omitempty" json:"mask,omitempty" validate:"omitempty,oneof=s2clouds"`
	Reducer              string   `yaml:"reducer,omitempty" json:"reducer,omitempty" validate:"omitempty,oneof=mean median min max"`
	Offset               float64  `yaml:"offset,omitempty" json:"offset,omitempty"`
	StartDate            string   `yaml:"start_date,omitempty" json:"startDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate              string   `yaml:"end_date,omitempty" json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// VisParams holds the value range and discrete legend of a layer. Labels align
// positionally with Palette entries.
type VisParams struct {
	Min     float64  `yaml:"min" json:"min"`
	Max     float64  `yaml:"max" json:"max" validate:"gtfield=Min"`
	Palette []string `yaml:"palette" json:"palette" validate:"required,min=1,dive,palettecolor"`
	Labels  []string `yaml:"labels" json:"labels" validate:"required,eqfield=Palette,dive,required"`
}

// Layer is one thematic raster product rendered to its own map.
type Layer struct {
	Name   string    `yaml:"name" json:"name" validate:"required,lowercase,alphanum"`
	Title  string    `yaml:"title" json:"title"`
	Source Source    `yaml:"source" json:"source"`
	Vis    VisParams `yaml:"vis" json:"vis"`
}

// Validate checks the layer definition, including len(Labels) == len(Palette).
func (l Layer) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidLayer, l.Name, err)
	}
	return nil
}

// ValidateLayers validates every layer and rejects duplicate names, which
// would collide on disk.
func ValidateLayers(layers []Layer) error {
	if len(layers) == 0 {
		return fmt.Errorf("%w: no layers configured", ErrInvalidLayer)
	}
	seen := make(map[string]struct{}, len(layers))
	for _, l := range layers {
		if err := l.Validate(); err != nil {
			return err
		}
		if _, dup := seen[l.Name]; dup {
			return fmt.Errorf("%w: duplicate layer name %q", ErrInvalidLayer, l.Name)
		}
		seen[l.Name] = struct{}{}
	}
	return nil
}

// DefaultLayers returns the built-in catalog. Collection-based layers are
// filtered to the [start, end] date window (YYYY-MM-DD).
func DefaultLayers(start, end string) []Layer {
	return []Layer{
		{
			Name:  "vegetation",
			Title: "Vegetation (NDVI)",
			Source: Source{
				Dataset:              "COPERNICUS/S2_HARMONIZED",
				Band:                 "NDVI",
				NormalizedDifference: []string{"B8", "B4"},
				Mask:                 "s2clouds",
				Reducer:              "mean",
				StartDate:            start,
				EndDate:              end,
			},
			Vis: VisParams{
				Min:     0.0,
				Max:     1.0,
				Palette: []string{"blue", "white", "green"},
				Labels:  []string{"Water/No Vegetation", "Low Vegetation", "High Vegetation"},
			},
		},
		{
			Name:  "topography",
			Title: "Topography",
			Source: Source{
				Dataset: "USGS/SRTMGL1_003",
				Band:    "elevation",
			},
			Vis: VisParams{
				Min:     0,
				Max:     4000,
				Palette: []string{"0000ff", "00ff00", "ffff00", "ff0000", "ffffff"},
				Labels:  []string{"0m", "1000m", "2000m", "3000m", "4000m"},
			},
		},
		{
			Name:  "temperature",
			Title: "Mean 2 m temperature",
			Source: Source{
				Dataset:   "ECMWF/ERA5_LAND/HOURLY",
				Band:      "temperature_2m",
				Reducer:   "mean",
				Offset:    -273.15,
				StartDate: start,
				EndDate:   end,
			},
			Vis: VisParams{
				Min:     -10,
				Max:     30,
				Palette: []string{"0000ff", "00ffff", "ffff00", "ff0000"},
				Labels:  []string{"-10°C", "0°C", "15°C", "30°C"},
			},
		},
		{
			Name:  "moisture",
			Title: "Surface soil moisture",
			Source: Source{
				Dataset:   "NASA/SMAP/SPL4SMGP/007",
				Band:      "sm_surface",
				Reducer:   "mean",
				StartDate: start,
				EndDate:   end,
			},
			Vis: VisParams{
				Min:     0.0,
				Max:     0.5,
				Palette: []string{"a52a2a", "ffff00", "00ff00", "0000ff"},
				Labels:  []string{"Dry", "Moderate", "Moist", "Saturated"},
			},
		},
	}
}
