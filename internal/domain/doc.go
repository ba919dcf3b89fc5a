// Package domain models the raster layers, region set, and tile arrangement
// behind the France layer mosaics.
//
// # Region Set
//
// The area of interest is metropolitan France, split into nine rectangular
// regions of 5° longitude by 3.5° latitude:
//
//	lon  -5 ───── 0 ───── 5 ───── 10
//	lat 51.5 ┌───────┬───────┬───────┐
//	         │   1   │   2   │   7   │
//	    48.0 ├───────┼───────┼───────┤
//	         │   4   │   3   │   8   │
//	    44.5 ├───────┼───────┼───────┤
//	         │   6   │   5   │   9   │
//	    41.0 └───────┴───────┴───────┘
//
// The numbers are the 1-based authoring order of the regions, which is also the
// order thumbnails are requested and the index in each tile filename. The
// authoring order does not follow the visual layout, so assembly applies an
// [Arrangement]: output position p (row-major, north-to-south, west-to-east)
// takes the tile at Order[p]. The default order [1,2,7,4,3,8,6,5,9] reads the
// grid above left to right, top to bottom.
//
// # Layers
//
// Each layer names a provider-side scalar raster ([Source]) and the
// visualization parameters ([VisParams]) used to color it:
//
//	vegetation   Sentinel-2 NDVI (B8, B4), cloud/cirrus masked via QA60 bits 10-11, mean
//	topography   SRTM 30 m elevation
//	temperature  ERA5-Land hourly 2 m temperature, mean, Kelvin shifted to Celsius
//	moisture     SMAP L4 surface soil moisture, mean
//
// Legend labels are positional with palette entries. They mark discrete
// reference colors, not bucket boundaries: the temperature layer carries four
// labels over a continuous -10..30 °C ramp.
//
// # Files
//
// Tiles are written as "<layer>_tile_<i>.png" and final artifacts as
// "<layer>_map_with_legend.png". See [TileFilename] and [ArtifactFilename];
// the web page references the same names.
package domain
