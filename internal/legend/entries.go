package legend

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/couchcryptid/earth-layers-service/internal/domain"
)

// ErrLegendMismatch is returned when a palette and its labels differ in length.
var ErrLegendMismatch = errors.New("legend palette and labels differ in length")

// Entry is one legend row: a color patch and its label.
type Entry struct {
	Color color.NRGBA
	Label string
}

// Entries pairs each palette color with the label at the same position.
func Entries(vis domain.VisParams) ([]Entry, error) {
	if len(vis.Palette) != len(vis.Labels) {
		return nil, fmt.Errorf("%w: %d colors, %d labels", ErrLegendMismatch, len(vis.Palette), len(vis.Labels))
	}
	entries := make([]Entry, len(vis.Palette))
	for i, p := range vis.Palette {
		c, err := domain.ParseColor(p)
		if err != nil {
			return nil, fmt.Errorf("legend entry %d: %w", i+1, err)
		}
		entries[i] = Entry{Color: c, Label: vis.Labels[i]}
	}
	return entries, nil
}
