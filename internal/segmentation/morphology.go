package segmentation

import (
	"fmt"
	"image"
)

// Clean runs dilate^d, erode^e, dilate^d with a square structuring element of
// side kernelSize. Pixels outside the image never contribute to the window.
func Clean(mask *image.Gray, kernelSize, dilateIters, erodeIters int) (*image.Gray, error) {
	if kernelSize < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKernel, kernelSize)
	}
	if dilateIters < 0 || erodeIters < 0 {
		return nil, fmt.Errorf("iterations must be non-negative, got dilate=%d erode=%d", dilateIters, erodeIters)
	}
	out := cloneGray(mask)
	for i := 0; i < dilateIters; i++ {
		out = Dilate(out, kernelSize)
	}
	for i := 0; i < erodeIters; i++ {
		out = Erode(out, kernelSize)
	}
	for i := 0; i < dilateIters; i++ {
		out = Dilate(out, kernelSize)
	}
	return out, nil
}

// Dilate is a grayscale max filter over a k×k window anchored at k/2.
func Dilate(src *image.Gray, k int) *image.Gray {
	return rankFilter(src, k, func(a, b uint8) uint8 {
		if b > a {
			return b
		}
		return a
	})
}

// Erode is a grayscale min filter over a k×k window anchored at k/2.
func Erode(src *image.Gray, k int) *image.Gray {
	return rankFilter(src, k, func(a, b uint8) uint8 {
		if b < a {
			return b
		}
		return a
	})
}

// rankFilter applies pick over the square window as a row pass then a column pass.
func rankFilter(src *image.Gray, k int, pick func(a, b uint8) uint8) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}
	lo := -(k / 2)
	hi := lo + k - 1

	tmp := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		for x := 0; x < w; x++ {
			start, end := clampWindow(x+lo, x+hi, w)
			v := row[start]
			for i := start + 1; i <= end; i++ {
				v = pick(v, row[i])
			}
			tmp[y*w+x] = v
		}
	}
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			start, end := clampWindow(y+lo, y+hi, h)
			v := tmp[start*w+x]
			for i := start + 1; i <= end; i++ {
				v = pick(v, tmp[i*w+x])
			}
			dst.Pix[y*dst.Stride+x] = v
		}
	}
	return dst
}

func clampWindow(start, end, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > n-1 {
		end = n - 1
	}
	return start, end
}

// cloneGray copies img into a new image anchored at the origin.
func cloneGray(img *image.Gray) *image.Gray {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+w], img.Pix[y*img.Stride:y*img.Stride+w])
	}
	return out
}
