package types

import (
	"errors"
	"image"
	"math"
	"time"
)

// SourceKind names the sensor a frame came from.
type SourceKind string

const (
	KindStereo    SourceKind = "stereo"
	KindToF       SourceKind = "tof"
	KindSynthetic SourceKind = "synthetic"
)

// ErrMissingBuffer is returned by a frame source when a cycle produced no usable
// buffers. Callers treat it as transient and retry on the next cycle.
var ErrMissingBuffer = errors.New("frame buffers missing")

// Float32Grid is a row-major 2-D grid of float32 samples.
type Float32Grid struct {
	Width  int
	Height int
	Pix    []float32
}

func NewFloat32Grid(width, height int) Float32Grid {
	return Float32Grid{
		Width:  width,
		Height: height,
		Pix:    make([]float32, width*height),
	}
}

// GridFromRows copies a [][]float32 into a grid. Ragged input is rejected.
func GridFromRows(rows [][]float32) (Float32Grid, error) {
	if len(rows) == 0 {
		return Float32Grid{}, errors.New("empty grid")
	}
	width := len(rows[0])
	grid := NewFloat32Grid(width, len(rows))
	for y, row := range rows {
		if len(row) != width {
			return Float32Grid{}, errors.New("ragged grid rows")
		}
		copy(grid.Pix[y*width:(y+1)*width], row)
	}
	return grid, nil
}

func (g Float32Grid) At(x, y int) float32 {
	return g.Pix[y*g.Width+x]
}

func (g Float32Grid) Set(x, y int, v float32) {
	g.Pix[y*g.Width+x] = v
}

func (g Float32Grid) Empty() bool {
	return g.Width == 0 || g.Height == 0
}

func (g Float32Grid) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.Width, g.Height)
}

func (g Float32Grid) Clone() Float32Grid {
	out := Float32Grid{Width: g.Width, Height: g.Height, Pix: make([]float32, len(g.Pix))}
	copy(out.Pix, g.Pix)
	return out
}

// MinMax returns the extremes of the finite samples.
func (g Float32Grid) MinMax() (float32, float32, bool) {
	var lo, hi float32
	found := false
	for _, v := range g.Pix {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			continue
		}
		if !found {
			lo, hi = v, v
			found = true
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, found
}

// Frame is one capture cycle. It is immutable once handed to the pipeline.
type Frame struct {
	Seq      int
	Kind     SourceKind
	Captured time.Time

	// RawDepth is in metres for ToF and synthetic frames and in the depth units of
	// the stereo baseline otherwise.
	RawDepth  Float32Grid
	Amplitude *Float32Grid

	// Normalized is the 8-bit map segmentation runs on. Preview, when set, is the
	// confidence-gated map shown to the operator.
	Normalized *image.Gray
	Preview    *image.Gray

	// Rectified stereo views, when the source has them.
	Left  *image.Gray
	Right *image.Gray
}

// DisplayImage returns the map an operator should see for this frame.
func (f Frame) DisplayImage() *image.Gray {
	if f.Preview != nil {
		return f.Preview
	}
	return f.Normalized
}

// RawFrame is a decoded wire message before normalization.
type RawFrame struct {
	Seq         int
	Kind        SourceKind
	Timestamp   float64
	MaxDistance float64
	Data        map[string]any
}

// RawMessage is any decoded wire message: frame data or stream metadata.
type RawMessage struct {
	Type  string
	Frame RawFrame
	Meta  map[string]any
}
