package domain

import "context"

// ThumbnailRequest describes one rendered tile: a layer's source reduced over
// a region, colored by its visualization parameters.
type ThumbnailRequest struct {
	Source Source
	Region Region
	Width  int
	Height int
	Format string // "png"
	Vis    VisParams
}

// ThumbnailProvider resolves a request to a URL the tile image can be
// downloaded from.
type ThumbnailProvider interface {
	ThumbnailURL(ctx context.Context, req ThumbnailRequest) (string, error)
}
