package domain

import "fmt"

// TileFilename is the on-disk name of tile index (1-based) for a layer.
func TileFilename(layer string, index int) string {
	return fmt.Sprintf("%s_tile_%d.png", layer, index)
}

// ArtifactFilename is the on-disk name of a layer's annotated map.
func ArtifactFilename(layer string) string {
	return layer + "_map_with_legend.png"
}

// TileRef ties a region to the tile downloaded for it.
type TileRef struct {
	Index    int    // 1-based, equal to the region's position in the set + 1
	RegionID string // Region.ID
	URL      string // provider thumbnail URL
	Path     string // downloaded file
}

// Manifest lists the tiles fetched for one layer, in region order.
type Manifest struct {
	Layer string
	Tiles []TileRef
}

// Tile returns the tile with the given 1-based index.
func (m Manifest) Tile(index int) (TileRef, bool) {
	for _, t := range m.Tiles {
		if t.Index == index {
			return t, true
		}
	}
	return TileRef{}, false
}
