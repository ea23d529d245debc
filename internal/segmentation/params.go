package segmentation

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidThresholds is returned when thresholds cannot form at least one band.
	ErrInvalidThresholds = errors.New("invalid thresholds")
	// ErrInvalidKernel is returned for a structuring element smaller than one pixel.
	ErrInvalidKernel = errors.New("invalid kernel size")
)

// Params configures one segmentation pass.
type Params struct {
	Thresholds       []int
	KernelSize       int
	DilateIterations int
	ErodeIterations  int
	PixelMin         int
	MinContourArea   float64
}

func (p Params) Validate() error {
	if _, err := BandsFromThresholds(p.Thresholds); err != nil {
		return err
	}
	if p.KernelSize < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidKernel, p.KernelSize)
	}
	if p.DilateIterations < 0 || p.ErodeIterations < 0 {
		return fmt.Errorf("iterations must be non-negative, got dilate=%d erode=%d", p.DilateIterations, p.ErodeIterations)
	}
	if p.PixelMin < 0 {
		return fmt.Errorf("pixel_min must be non-negative, got %d", p.PixelMin)
	}
	if p.MinContourArea < 0 {
		return fmt.Errorf("min_contour_area must be non-negative, got %v", p.MinContourArea)
	}
	return nil
}

// Band is an inclusive intensity interval of the normalized map.
type Band struct {
	Lower uint8 `json:"lower"`
	Upper uint8 `json:"upper"`
}

func (b Band) Contains(v uint8) bool {
	return v >= b.Lower && v <= b.Upper
}

func (b Band) String() string {
	return fmt.Sprintf("%d-%d", b.Lower, b.Upper)
}

// BandsFromThresholds pairs consecutive thresholds into bands. Thresholds must be
// non-decreasing values in [0,255], at least two of them.
func BandsFromThresholds(thresholds []int) ([]Band, error) {
	if len(thresholds) < 2 {
		return nil, fmt.Errorf("%w: need at least 2, got %d", ErrInvalidThresholds, len(thresholds))
	}
	for i, t := range thresholds {
		if t < 0 || t > 255 {
			return nil, fmt.Errorf("%w: threshold %d out of range [0,255]", ErrInvalidThresholds, t)
		}
		if i > 0 && t < thresholds[i-1] {
			return nil, fmt.Errorf("%w: %d follows %d", ErrInvalidThresholds, t, thresholds[i-1])
		}
	}
	bands := make([]Band, 0, len(thresholds)-1)
	for i := 1; i < len(thresholds); i++ {
		bands = append(bands, Band{Lower: uint8(thresholds[i-1]), Upper: uint8(thresholds[i])})
	}
	return bands, nil
}
