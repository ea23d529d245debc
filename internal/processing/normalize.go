package processing

import (
	"image"
	"math"

	"depthrig-go/internal/types"
)

// Defaults for the ToF sensor.
const (
	DefaultMaxDistance = 4.0
	amplitudeFullScale = 1024.0
	amplitudeCutoff    = 7
)

// Defaults for the stereo rig.
const (
	DefaultFocalLength = 1300.0
	DefaultBaseline    = 0.06
)

// NormalizeMinMax stretches the finite range of grid onto 0..255 with rounding.
// A flat grid maps to zero.
func NormalizeMinMax(grid types.Float32Grid) *image.Gray {
	out := image.NewGray(grid.Bounds())
	lo, hi, ok := grid.MinMax()
	if !ok || hi == lo {
		return out
	}
	scale := 255 / (float64(hi) - float64(lo))
	for i, v := range grid.Pix {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			continue
		}
		out.Pix[i] = uint8(clamp(math.Round((float64(v)-float64(lo))*scale), 0, 255))
	}
	return out
}

// ClipNegative returns a copy of grid with negative samples set to zero.
func ClipNegative(grid types.Float32Grid) types.Float32Grid {
	out := grid.Clone()
	for i, v := range out.Pix {
		if v < 0 {
			out.Pix[i] = 0
		}
	}
	return out
}

// DepthFromDisparity converts disparity to depth as focal*baseline/disparity.
// Pixels without positive disparity get depth 0.
func DepthFromDisparity(disparity types.Float32Grid, focal, baseline float64) types.Float32Grid {
	out := types.NewFloat32Grid(disparity.Width, disparity.Height)
	for i, d := range disparity.Pix {
		if d > 0 {
			out.Pix[i] = float32(focal * baseline / float64(d))
		}
	}
	return out
}

// NormalizeToF maps depth in metres to 0..255 with near objects bright:
// (1 - d/maxDistance)*255, clipped and truncated. NaN samples count as 0.
func NormalizeToF(depth types.Float32Grid, maxDistance float64) *image.Gray {
	out := image.NewGray(depth.Bounds())
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	for i, v := range depth.Pix {
		d := float64(v)
		if math.IsNaN(d) {
			d = 0
		}
		out.Pix[i] = uint8(clamp((1-d/maxDistance)*255, 0, 255))
	}
	return out
}

// AmplitudeMask scales amplitude to 8 bits and marks confident pixels 255.
func AmplitudeMask(amplitude types.Float32Grid) *image.Gray {
	out := image.NewGray(amplitude.Bounds())
	for i, v := range amplitude.Pix {
		a := float64(v)
		if math.IsNaN(a) {
			continue
		}
		if clamp(a*255/amplitudeFullScale, 0, 255) > amplitudeCutoff {
			out.Pix[i] = 255
		}
	}
	return out
}

// CombineMasks is the bitwise AND of two co-registered maps.
func CombineMasks(a, b *image.Gray) *image.Gray {
	out := image.NewGray(a.Rect)
	for i := range out.Pix {
		if i >= len(b.Pix) {
			break
		}
		out.Pix[i] = a.Pix[i] & b.Pix[i]
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
