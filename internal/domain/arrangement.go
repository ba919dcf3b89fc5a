package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidArrangement is returned when an arrangement is not a grid permutation.
var ErrInvalidArrangement = errors.New("invalid arrangement")

// Arrangement maps grid positions to source tiles. Order[p] is the 1-based
// index of the tile drawn at row-major position p; Columns is the grid width.
type Arrangement struct {
	Columns int   `yaml:"columns" json:"columns"`
	Order   []int `yaml:"order" json:"order"`
}

// DefaultArrangement compensates for the authoring order of DefaultRegionSet,
// producing a north-to-south, west-to-east 3x3 grid.
func DefaultArrangement() Arrangement {
	return Arrangement{
		Columns: 3,
		Order:   []int{1, 2, 7, 4, 3, 8, 6, 5, 9},
	}
}

// Len returns the number of grid positions.
func (a Arrangement) Len() int { return len(a.Order) }

// Rows returns the number of grid rows.
func (a Arrangement) Rows() int {
	if a.Columns <= 0 {
		return 0
	}
	return len(a.Order) / a.Columns
}

// Cell returns the column and row of grid position p.
func (a Arrangement) Cell(p int) (col, row int) {
	return p % a.Columns, p / a.Columns
}

// Validate checks that Order is a permutation of 1..len(Order) that fills
// whole rows of Columns.
func (a Arrangement) Validate() error {
	if a.Columns <= 0 {
		return fmt.Errorf("%w: columns must be positive, got %d", ErrInvalidArrangement, a.Columns)
	}
	n := len(a.Order)
	if n == 0 {
		return fmt.Errorf("%w: empty order", ErrInvalidArrangement)
	}
	if n%a.Columns != 0 {
		return fmt.Errorf("%w: %d tiles do not fill %d columns", ErrInvalidArrangement, n, a.Columns)
	}
	seen := make([]bool, n+1)
	for p, idx := range a.Order {
		if idx < 1 || idx > n {
			return fmt.Errorf("%w: position %d references tile %d outside 1..%d", ErrInvalidArrangement, p, idx, n)
		}
		if seen[idx] {
			return fmt.Errorf("%w: tile %d placed twice", ErrInvalidArrangement, idx)
		}
		seen[idx] = true
	}
	return nil
}

// ValidateFor checks the arrangement and that it covers exactly the given region set.
func (a Arrangement) ValidateFor(regions RegionSet) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if len(regions) != a.Len() {
		return fmt.Errorf("%w: %d positions for %d regions", ErrInvalidArrangement, a.Len(), len(regions))
	}
	return nil
}
