// Package mosaic reassembles downloaded tiles into a single composite image.
package mosaic

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"github.com/couchcryptid/earth-layers-service/internal/domain"
)

var (
	// ErrTileDecode is returned when a tile file is not a readable PNG.
	ErrTileDecode = errors.New("tile decode failed")
	// ErrTileSize is returned when tiles in one grid differ in size.
	ErrTileSize = errors.New("tile size mismatch")
	// ErrMissingTile is returned when the arrangement references a tile the manifest lacks.
	ErrMissingTile = errors.New("missing tile")
)

// Cell is one grid position and the source tile drawn there.
type Cell struct {
	Position int // row-major, 0-based
	Source   int // 1-based tile index
	Col      int
	Row      int
}

// Placement lists the grid cells of an arrangement in position order.
func Placement(a domain.Arrangement) []Cell {
	cells := make([]Cell, 0, a.Len())
	for p, src := range a.Order {
		col, row := a.Cell(p)
		cells = append(cells, Cell{Position: p, Source: src, Col: col, Row: row})
	}
	return cells
}

// Assemble loads the manifest's tiles and composes them in arrangement order.
func Assemble(m domain.Manifest, a domain.Arrangement) (*image.NRGBA, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	tiles := make([]image.Image, 0, a.Len())
	for _, cell := range Placement(a) {
		ref, ok := m.Tile(cell.Source)
		if !ok {
			return nil, fmt.Errorf("%w: %s tile %d", ErrMissingTile, m.Layer, cell.Source)
		}
		img, err := LoadTile(ref.Path)
		if err != nil {
			return nil, fmt.Errorf("%s tile %d: %w", m.Layer, cell.Source, err)
		}
		tiles = append(tiles, img)
	}
	return Compose(tiles, a.Columns)
}

// Compose pastes tiles, given in output order, onto a grid of the given
// width. Every tile must match the size of the first; none are resized.
func Compose(tiles []image.Image, columns int) (*image.NRGBA, error) {
	if len(tiles) == 0 {
		return nil, fmt.Errorf("%w: no tiles", ErrMissingTile)
	}
	if columns <= 0 || len(tiles)%columns != 0 {
		return nil, fmt.Errorf("%w: %d tiles do not fill %d columns", domain.ErrInvalidArrangement, len(tiles), columns)
	}

	size := tiles[0].Bounds().Size()
	rows := len(tiles) / columns
	out := image.NewNRGBA(image.Rect(0, 0, size.X*columns, size.Y*rows))
	for p, tile := range tiles {
		b := tile.Bounds()
		if b.Size() != size {
			return nil, fmt.Errorf("%w: position %d is %v, want %v", ErrTileSize, p, b.Size(), size)
		}
		dp := image.Pt((p%columns)*size.X, (p/columns)*size.Y)
		draw.Draw(out, b.Sub(b.Min).Add(dp), tile, b.Min, draw.Src)
	}
	return out, nil
}

// LoadTile decodes a PNG tile from disk.
func LoadTile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTileDecode, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTileDecode, path, err)
	}
	return img, nil
}
