package segmentation

import (
	"fmt"
	"image"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/gofont/goregular"
)

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Palette returns n visually distinct colors, stepping hue by the golden angle.
func Palette(n int) []colorful.Color {
	out := make([]colorful.Color, n)
	for i := range out {
		hue := math.Mod(float64(i)*137.508, 360)
		out[i] = colorful.Hsv(hue, 0.85, 0.95)
	}
	return out
}

// Annotate strokes every contour over the mask in its own color and writes its
// amplitude above the bounding box when positive.
func Annotate(mask *image.Gray, contours []Contour) *image.RGBA {
	dc := gg.NewContextForImage(mask)
	dc.SetFontFace(truetype.NewFace(labelFont, &truetype.Options{Size: 12}))
	colors := Palette(len(contours))

	for i, c := range contours {
		if len(c.Points) == 0 {
			continue
		}
		dc.SetColor(colors[i])
		dc.SetLineWidth(2)
		dc.MoveTo(float64(c.Points[0].X), float64(c.Points[0].Y))
		for _, p := range c.Points[1:] {
			dc.LineTo(float64(p.X), float64(p.Y))
		}
		dc.ClosePath()
		dc.Stroke()

		if c.Amplitude > 0 {
			b := c.Bounds()
			dc.DrawString(fmt.Sprintf("%.2f", c.Amplitude), float64(b.Min.X), float64(b.Min.Y-10))
		}
	}

	img, ok := dc.Image().(*image.RGBA)
	if !ok {
		return image.NewRGBA(mask.Rect)
	}
	return img
}
