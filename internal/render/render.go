// Package render turns 8-bit depth maps into images for people.
package render

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
)

// Jet maps v in 0..255 onto the blue-cyan-yellow-red jet ramp.
func Jet(v uint8) color.RGBA {
	x := float64(v) / 255
	channel := func(offset float64) uint8 {
		c := 1.5 - math.Abs(4*x-offset)
		if c < 0 {
			c = 0
		}
		if c > 1 {
			c = 1
		}
		return uint8(math.Round(c * 255))
	}
	return color.RGBA{R: channel(3), G: channel(2), B: channel(1), A: 255}
}

// Colorize applies the jet ramp to every pixel of img.
func Colorize(img *image.Gray) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	var lut [256]color.RGBA
	for i := range lut {
		lut[i] = Jet(uint8(i))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := lut[img.Pix[y*img.Stride+x]]
			o := out.PixOffset(x, y)
			out.Pix[o+0] = c.R
			out.Pix[o+1] = c.G
			out.Pix[o+2] = c.B
			out.Pix[o+3] = c.A
		}
	}
	return out
}

// Preview colorizes img and scales it down to at most maxWidth pixels wide.
func Preview(img *image.Gray, maxWidth int) image.Image {
	colored := Colorize(img)
	if maxWidth <= 0 || colored.Rect.Dx() <= maxWidth {
		return colored
	}
	return imaging.Resize(colored, maxWidth, 0, imaging.NearestNeighbor)
}

// EncodePNGBase64 returns img as a base64 PNG for JSON transport.
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
