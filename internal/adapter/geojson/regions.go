// Package geojson reads and writes region sets as GeoJSON feature collections.
package geojson

import (
	"errors"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	orbjson "github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/earth-layers-service/internal/domain"
)

var errUnsupportedGeometry = errors.New("unsupported geometry")

// LoadRegions reads a region set from a GeoJSON FeatureCollection file.
// Feature order is the tile order.
func LoadRegions(path string) (domain.RegionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read regions file: %w", err)
	}
	rs, err := ParseRegions(data)
	if err != nil {
		return nil, fmt.Errorf("regions file %s: %w", path, err)
	}
	return rs, nil
}

// ParseRegions decodes a FeatureCollection of Polygon features. Each feature
// is identified by its "id" property, falling back to the feature id.
func ParseRegions(data []byte) (domain.RegionSet, error) {
	fc, err := orbjson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}

	rs := make(domain.RegionSet, 0, len(fc.Features))
	for i, f := range fc.Features {
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok {
			return nil, fmt.Errorf("feature %d: %w %s", i+1, errUnsupportedGeometry, geometryType(f.Geometry))
		}
		rs = append(rs, domain.Region{ID: featureID(f), Polygon: poly})
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// EncodeRegions writes a region set as a FeatureCollection readable by ParseRegions.
func EncodeRegions(rs domain.RegionSet) ([]byte, error) {
	fc := orbjson.NewFeatureCollection()
	for i, r := range rs {
		f := orbjson.NewFeature(r.Polygon)
		f.Properties["id"] = r.ID
		f.Properties["tile"] = i + 1
		fc.Append(f)
	}
	return fc.MarshalJSON()
}

func featureID(f *orbjson.Feature) string {
	if id := f.Properties.MustString("id", ""); id != "" {
		return id
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return ""
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "null"
	}
	return g.GeoJSONType()
}
