package domain

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// ErrInvalidRegionSet is returned when a region set cannot be used for tiling.
var ErrInvalidRegionSet = errors.New("invalid region set")

// Region is one tile of the area of interest.
type Region struct {
	ID      string
	Polygon orb.Polygon
}

// Bound returns the bounding box of the region polygon.
func (r Region) Bound() orb.Bound {
	return r.Polygon.Bound()
}

// Center returns the center of the region's bounding box.
func (r Region) Center() orb.Point {
	return r.Bound().Center()
}

// RegionSet is an ordered list of regions. Order is significant: region i
// (0-based) produces tile i+1.
type RegionSet []Region

// Bound returns the union of all region bounds.
func (rs RegionSet) Bound() orb.Bound {
	if len(rs) == 0 {
		return orb.Bound{}
	}
	b := rs[0].Bound()
	for _, r := range rs[1:] {
		b = b.Union(r.Bound())
	}
	return b
}

// Validate checks that every region has an ID, a unique ID, and a closed outer ring.
func (rs RegionSet) Validate() error {
	if len(rs) == 0 {
		return fmt.Errorf("%w: no regions", ErrInvalidRegionSet)
	}
	seen := make(map[string]struct{}, len(rs))
	for i, r := range rs {
		if r.ID == "" {
			return fmt.Errorf("%w: region %d has no id", ErrInvalidRegionSet, i+1)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: duplicate region id %q", ErrInvalidRegionSet, r.ID)
		}
		seen[r.ID] = struct{}{}
		if len(r.Polygon) == 0 || len(r.Polygon[0]) < 4 {
			return fmt.Errorf("%w: region %q has no outer ring", ErrInvalidRegionSet, r.ID)
		}
		if !r.Polygon[0].Closed() {
			return fmt.Errorf("%w: region %q outer ring is not closed", ErrInvalidRegionSet, r.ID)
		}
	}
	return nil
}

// DefaultRegionSet returns the nine France regions in authoring order.
// See the package documentation for the layout.
func DefaultRegionSet() RegionSet {
	return RegionSet{
		{ID: "france-1", Polygon: rect(-5, 48.0, 0, 51.5)},
		{ID: "france-2", Polygon: rect(0, 48.0, 5, 51.5)},
		{ID: "france-3", Polygon: rect(0, 44.5, 5, 48.0)},
		{ID: "france-4", Polygon: rect(-5, 44.5, 0, 48.0)},
		{ID: "france-5", Polygon: rect(0, 41.0, 5, 44.5)},
		{ID: "france-6", Polygon: rect(-5, 41.0, 0, 44.5)},
		{ID: "france-7", Polygon: rect(5, 48.0, 10, 51.5)},
		{ID: "france-8", Polygon: rect(5, 44.5, 10, 48.0)},
		{ID: "france-9", Polygon: rect(5, 41.0, 10, 44.5)},
	}
}

// rect builds a closed counter-clockwise rectangle polygon.
func rect(west, south, east, north float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{west, south},
		{east, south},
		{east, north},
		{west, north},
		{west, south},
	}}
}
