package legend

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// newFace returns Go Regular at size pixels, or the basic bitmap face if the
// embedded font cannot be loaded.
func newFace(size float64) font.Face {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

func drawText(img draw.Image, text string, x, y int, c color.NRGBA, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func strokeRect(img draw.Image, r image.Rectangle, c color.NRGBA, width int) {
	for i := range width {
		top := image.Rect(r.Min.X+i, r.Min.Y+i, r.Max.X-i, r.Min.Y+i+1)
		bottom := image.Rect(r.Min.X+i, r.Max.Y-i-1, r.Max.X-i, r.Max.Y-i)
		left := image.Rect(r.Min.X+i, r.Min.Y+i, r.Min.X+i+1, r.Max.Y-i)
		right := image.Rect(r.Max.X-i-1, r.Min.Y+i, r.Max.X-i, r.Max.Y-i)
		for _, edge := range []image.Rectangle{top, bottom, left, right} {
			draw.Draw(img, edge, &image.Uniform{C: c}, image.Point{}, draw.Src)
		}
	}
}
