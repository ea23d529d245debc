package segmentation

import (
	"image"
)

// BandMask keeps the pixels of normalized whose value lies in b and zeroes the rest.
func BandMask(normalized *image.Gray, b Band) *image.Gray {
	w, h := normalized.Rect.Dx(), normalized.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := normalized.Pix[y*normalized.Stride : y*normalized.Stride+w]
		dst := out.Pix[y*out.Stride : y*out.Stride+w]
		for x, v := range src {
			if b.Contains(v) {
				dst[x] = v
			}
		}
	}
	return out
}

// Histogram counts pixel intensities into 256 bins.
func Histogram(img *image.Gray) [256]int {
	var hist [256]int
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		for _, v := range img.Pix[y*img.Stride : y*img.Stride+w] {
			hist[v]++
		}
	}
	return hist
}

// NonZeroCount sums bins 1..255.
func NonZeroCount(hist [256]int) int {
	total := 0
	for _, n := range hist[1:] {
		total += n
	}
	return total
}
