// Package stereo turns rectified left/right pairs into disparity frames. Image
// capture and disparity matching are supplied by the caller.
package stereo

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"depthrig-go/internal/calibration"
	"depthrig-go/internal/processing"
	"depthrig-go/internal/types"
)

// Capture delivers raw left/right images from the camera pair.
type Capture interface {
	Open(ctx context.Context) error
	Grab(ctx context.Context) (left, right *image.Gray, err error)
	Close() error
}

// Rectifier aligns a raw pair so that matching points share a row.
type Rectifier interface {
	Rectify(left, right *image.Gray) (*image.Gray, *image.Gray, error)
}

// DisparityEngine computes a disparity map from a rectified pair.
type DisparityEngine interface {
	Compute(left, right *image.Gray, params MatcherParams) (types.Float32Grid, error)
}

// MatcherParams is the semi-global block matching parameter set.
type MatcherParams struct {
	BlockSize         int
	MinDisparity      int
	NumDisparities    int
	MaxDisparity      int
	P1                int
	P2                int
	UniquenessRatio   int
	SpeckleWindowSize int
	SpeckleRange      int
	Disp12MaxDiff     int
}

func DefaultMatcherParams() MatcherParams {
	return MatcherParams{
		BlockSize:         15,
		MinDisparity:      -16,
		NumDisparities:    144,
		MaxDisparity:      128,
		P1:                150,
		P2:                64,
		UniquenessRatio:   4,
		SpeckleWindowSize: 200,
		SpeckleRange:      4,
		Disp12MaxDiff:     0,
	}
}

func (p MatcherParams) Validate() error {
	if p.BlockSize < 1 || p.BlockSize%2 == 0 {
		return fmt.Errorf("block size must be odd and positive, got %d", p.BlockSize)
	}
	if p.NumDisparities <= 0 || p.NumDisparities%16 != 0 {
		return fmt.Errorf("disparity count must be a positive multiple of 16, got %d", p.NumDisparities)
	}
	if p.MaxDisparity <= p.MinDisparity {
		return fmt.Errorf("max disparity %d must exceed min disparity %d", p.MaxDisparity, p.MinDisparity)
	}
	return nil
}

// MapRectifier remaps each side through its calibration lookup tables: the
// undistortion map holds source columns and the rectification map source rows.
type MapRectifier struct {
	left, right remap
}

type remap struct {
	xs, ys *mat.Dense
}

func NewMapRectifier(cal *calibration.StereoCalibration) (*MapRectifier, error) {
	left, err := newRemap(&cal.Left)
	if err != nil {
		return nil, fmt.Errorf("left: %w", err)
	}
	right, err := newRemap(&cal.Right)
	if err != nil {
		return nil, fmt.Errorf("right: %w", err)
	}
	return &MapRectifier{left: left, right: right}, nil
}

func newRemap(side *calibration.SideCalibration) (remap, error) {
	if !side.HasMaps() {
		return remap{}, fmt.Errorf("rectification maps not loaded")
	}
	xr, xc := side.UndistortionMap.Mat.Dims()
	yr, yc := side.RectificationMap.Mat.Dims()
	if xr != yr || xc != yc {
		return remap{}, fmt.Errorf("map shapes differ: %dx%d and %dx%d", xr, xc, yr, yc)
	}
	return remap{xs: side.UndistortionMap.Mat, ys: side.RectificationMap.Mat}, nil
}

func (m *MapRectifier) Rectify(left, right *image.Gray) (*image.Gray, *image.Gray, error) {
	return m.left.apply(left), m.right.apply(right), nil
}

// apply samples src at the nearest mapped pixel; positions outside src become 0.
func (r remap) apply(src *image.Gray) *image.Gray {
	rows, cols := r.xs.Dims()
	out := image.NewGray(image.Rect(0, 0, cols, rows))
	b := src.Bounds()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			sx := int(math.Round(r.xs.At(y, x)))
			sy := int(math.Round(r.ys.At(y, x)))
			if sx < 0 || sy < 0 || sx >= b.Dx() || sy >= b.Dy() {
				continue
			}
			out.Pix[y*out.Stride+x] = src.GrayAt(b.Min.X+sx, b.Min.Y+sy).Y
		}
	}
	return out
}

// Source is a FrameSource over a stereo rig: capture, rectify, match, then clip
// and normalize the disparity and convert it to depth.
type Source struct {
	capture   Capture
	rectifier Rectifier
	engine    DisparityEngine
	params    MatcherParams
	opts      processing.Options

	mu  sync.Mutex
	seq int
}

func NewSource(capture Capture, rectifier Rectifier, engine DisparityEngine, params MatcherParams, opts processing.Options) *Source {
	return &Source{
		capture:   capture,
		rectifier: rectifier,
		engine:    engine,
		params:    params,
		opts:      opts,
	}
}

func (s *Source) Open(ctx context.Context) error {
	if err := s.params.Validate(); err != nil {
		return fmt.Errorf("matcher params: %w", err)
	}
	if err := s.capture.Open(ctx); err != nil {
		return fmt.Errorf("stereo capture: %w", err)
	}
	return nil
}

func (s *Source) Acquire(ctx context.Context) (types.Frame, error) {
	left, right, err := s.capture.Grab(ctx)
	if err != nil {
		return types.Frame{}, err
	}
	if left == nil || right == nil {
		return types.Frame{}, fmt.Errorf("%w: stereo pair incomplete", types.ErrMissingBuffer)
	}
	if s.rectifier != nil {
		if left, right, err = s.rectifier.Rectify(left, right); err != nil {
			return types.Frame{}, fmt.Errorf("rectify: %w", err)
		}
	}
	disparity, err := s.engine.Compute(left, right, s.params)
	if err != nil {
		return types.Frame{}, fmt.Errorf("disparity: %w", err)
	}

	s.mu.Lock()
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	disparity = processing.ClipNegative(disparity)
	return types.Frame{
		Seq:        seq,
		Kind:       types.KindStereo,
		Captured:   time.Now(),
		RawDepth:   processing.DepthFromDisparity(disparity, s.opts.FocalLength, s.opts.Baseline),
		Normalized: processing.NormalizeMinMax(disparity),
		Left:       left,
		Right:      right,
	}, nil
}

func (s *Source) Close() error {
	var err error
	if closer, ok := s.engine.(interface{ Close() error }); ok {
		err = closer.Close()
	}
	return multierr.Append(s.capture.Close(), err)
}
