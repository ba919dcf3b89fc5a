// Package legend draws a composite onto a square canvas with a color legend
// in the lower-right corner and writes the result as PNG.
package legend

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/sync/semaphore"
)

// DefaultCanvasSize is the side of the output image in pixels.
const DefaultCanvasSize = 1000

var errCanvasReleased = errors.New("canvas already released")

var (
	background  = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	frameFill   = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xcc}
	frameBorder = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
	textColor   = color.NRGBA{A: 0xff}
)

// Renderer hands out one drawing canvas at a time.
type Renderer struct {
	size   int
	face   font.Face
	layout layout
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewRenderer creates a renderer producing size x size images. The legend
// text scales with the canvas.
func NewRenderer(size int, logger *slog.Logger) *Renderer {
	if size <= 0 {
		size = DefaultCanvasSize
	}
	fontSize := max(float64(size)/50, 10)
	face := newFace(fontSize)
	return &Renderer{
		size:   size,
		face:   face,
		layout: newLayout(face),
		sem:    semaphore.NewWeighted(1),
		logger: logger,
	}
}

// Size returns the canvas side in pixels.
func (r *Renderer) Size() int { return r.size }

// Acquire blocks until the canvas is free or ctx is done. The caller owns the
// returned canvas until Release.
func (r *Renderer) Acquire(ctx context.Context) (*Canvas, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire canvas: %w", err)
	}
	img := image.NewNRGBA(image.Rect(0, 0, r.size, r.size))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)
	return &Canvas{img: img, r: r}, nil
}

// Render draws composite and the legend for entries, then writes the PNG to path.
func (r *Renderer) Render(ctx context.Context, path string, composite image.Image, entries []Entry) error {
	c, err := r.Acquire(ctx)
	if err != nil {
		return err
	}
	defer c.Release()

	c.DrawComposite(composite)
	c.DrawLegend(entries)
	if err := c.WritePNG(path); err != nil {
		return err
	}
	r.logger.Debug("legend rendered", "path", path, "entries", len(entries))
	return nil
}

// LegendRect returns where the legend for entries is drawn.
func (r *Renderer) LegendRect(entries []Entry) image.Rectangle {
	return r.layout.box(len(entries), r.labelWidth(entries), image.Rect(0, 0, r.size, r.size))
}

func (r *Renderer) labelWidth(entries []Entry) int {
	w := 0
	for _, e := range entries {
		w = max(w, font.MeasureString(r.face, e.Label).Ceil())
	}
	return w
}

// Canvas is a drawing surface owned by one caller between Acquire and Release.
type Canvas struct {
	img      *image.NRGBA
	r        *Renderer
	released bool
}

// Image returns the canvas pixels.
func (c *Canvas) Image() *image.NRGBA { return c.img }

// DrawComposite scales src to fit the canvas, keeping its aspect ratio, centered.
func (c *Canvas) DrawComposite(src image.Image) {
	dst := fit(src.Bounds().Size(), c.img.Bounds())
	draw.CatmullRom.Scale(c.img, dst, src, src.Bounds(), draw.Src, nil)
}

// DrawLegend draws one patch and label per entry in a framed box flush with
// the lower-right corner. It returns the box.
func (c *Canvas) DrawLegend(entries []Entry) image.Rectangle {
	if len(entries) == 0 {
		return image.Rectangle{}
	}
	l := c.r.layout
	box := c.r.LegendRect(entries)

	draw.Draw(c.img, box, &image.Uniform{C: frameFill}, image.Point{}, draw.Over)
	strokeRect(c.img, box, frameBorder, 1)

	for i, e := range entries {
		patch := l.patch(box, i)
		draw.Draw(c.img, patch, &image.Uniform{C: e.Color}, image.Point{}, draw.Src)
		strokeRect(c.img, patch, frameBorder, 1)
		drawText(c.img, e.Label, patch.Max.X+l.gap, l.baseline(box, i), textColor, c.r.face)
	}
	return box
}

// WritePNG encodes the canvas to path. A partially written file is removed.
func (c *Canvas) WritePNG(path string) (err error) {
	if c.released {
		return errCanvasReleased
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if err := png.Encode(f, c.img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

// Release returns the canvas to its renderer. Further calls are no-ops.
func (c *Canvas) Release() {
	if c.released {
		return
	}
	c.released = true
	c.r.sem.Release(1)
}

// fit returns the largest rectangle with the proportions of size centered in bounds.
func fit(size image.Point, bounds image.Rectangle) image.Rectangle {
	if size.X <= 0 || size.Y <= 0 {
		return image.Rectangle{}
	}
	bw, bh := bounds.Dx(), bounds.Dy()
	w, h := bw, size.Y*bw/size.X
	if h > bh {
		w, h = size.X*bh/size.Y, bh
	}
	x := bounds.Min.X + (bw-w)/2
	y := bounds.Min.Y + (bh-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// layout holds legend metrics derived from the font face.
type layout struct {
	pad     int // inside the frame
	gap     int // between patch and label
	spacing int // between rows
	row     int // row height
	patchW  int
	ascent  int
}

func newLayout(face font.Face) layout {
	m := face.Metrics()
	row := m.Height.Ceil()
	return layout{
		pad:     row / 2,
		gap:     row / 2,
		spacing: row / 4,
		row:     row,
		patchW:  row * 2,
		ascent:  m.Ascent.Ceil(),
	}
}

func (l layout) box(n, labelWidth int, canvas image.Rectangle) image.Rectangle {
	w := l.pad + l.patchW + l.gap + labelWidth + l.pad
	h := l.pad + n*l.row + max(n-1, 0)*l.spacing + l.pad
	return image.Rect(canvas.Max.X-w, canvas.Max.Y-h, canvas.Max.X, canvas.Max.Y)
}

func (l layout) rowTop(box image.Rectangle, i int) int {
	return box.Min.Y + l.pad + i*(l.row+l.spacing)
}

func (l layout) patch(box image.Rectangle, i int) image.Rectangle {
	top := l.rowTop(box, i)
	inset := l.row / 6
	x := box.Min.X + l.pad
	return image.Rect(x, top+inset, x+l.patchW, top+l.row-inset)
}

func (l layout) baseline(box image.Rectangle, i int) int {
	return l.rowTop(box, i) + l.ascent
}
