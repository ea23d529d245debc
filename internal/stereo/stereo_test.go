package stereo

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"depthrig-go/internal/calibration"
	"depthrig-go/internal/processing"
	"depthrig-go/internal/types"
)

type fakeCapture struct {
	left, right *image.Gray
	err         error
	opened      bool
	closed      bool
}

func (c *fakeCapture) Open(context.Context) error {
	c.opened = true
	return nil
}

func (c *fakeCapture) Grab(context.Context) (*image.Gray, *image.Gray, error) {
	return c.left, c.right, c.err
}

func (c *fakeCapture) Close() error {
	c.closed = true
	return nil
}

type constantEngine struct {
	values []float32
	params MatcherParams
}

func (e *constantEngine) Compute(left, _ *image.Gray, params MatcherParams) (types.Float32Grid, error) {
	e.params = params
	grid := types.NewFloat32Grid(left.Rect.Dx(), left.Rect.Dy())
	copy(grid.Pix, e.values)
	return grid, nil
}

func gradient(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[y*img.Stride+x] = uint8(10*y + x)
		}
	}
	return img
}

func shiftMaps(w, h, dx int) (*mat.Dense, *mat.Dense) {
	xs := mat.NewDense(h, w, nil)
	ys := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			xs.Set(y, x, float64(x+dx))
			ys.Set(y, x, float64(y))
		}
	}
	return xs, ys
}

func TestDefaultMatcherParams(t *testing.T) {
	p := DefaultMatcherParams()
	require.NoError(t, p.Validate())
	assert.Equal(t, 15, p.BlockSize)
	assert.Equal(t, -16, p.MinDisparity)
	assert.Equal(t, 128, p.MaxDisparity)
	assert.Equal(t, 150, p.P1)
	assert.Equal(t, 64, p.P2)
	assert.Equal(t, 4, p.UniquenessRatio)
	assert.Equal(t, 200, p.SpeckleWindowSize)
	assert.Equal(t, 4, p.SpeckleRange)
	assert.Equal(t, 0, p.Disp12MaxDiff)

	bad := p
	bad.BlockSize = 4
	assert.Error(t, bad.Validate())
	bad = p
	bad.NumDisparities = 100
	assert.Error(t, bad.Validate())
}

func TestMapRectifierShiftsAndBlanks(t *testing.T) {
	cal := calibration.New()
	lx, ly := shiftMaps(4, 3, 1)
	cal.Left.UndistortionMap.Set(lx)
	cal.Left.RectificationMap.Set(ly)
	rx, ry := shiftMaps(4, 3, 0)
	cal.Right.UndistortionMap.Set(rx)
	cal.Right.RectificationMap.Set(ry)

	r, err := NewMapRectifier(cal)
	require.NoError(t, err)

	src := gradient(4, 3)
	left, right, err := r.Rectify(src, src)
	require.NoError(t, err)

	assert.Equal(t, src.Pix, right.Pix)
	assert.Equal(t, uint8(11), left.GrayAt(0, 1).Y)
	assert.Equal(t, uint8(13), left.GrayAt(2, 1).Y)
	assert.Equal(t, uint8(0), left.GrayAt(3, 1).Y)
}

func TestMapRectifierNeedsMaps(t *testing.T) {
	_, err := NewMapRectifier(calibration.New())
	assert.Error(t, err)
}

func TestSourceProducesStereoFrame(t *testing.T) {
	capture := &fakeCapture{left: gradient(2, 2), right: gradient(2, 2)}
	engine := &constantEngine{values: []float32{-3, 0, 10, 20}}
	src := NewSource(capture, nil, engine, DefaultMatcherParams(), processing.DefaultOptions())

	require.NoError(t, src.Open(context.Background()))
	assert.True(t, capture.opened)

	frame, err := src.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.KindStereo, frame.Kind)
	assert.Equal(t, 0, frame.Seq)
	assert.Equal(t, []uint8{0, 0, 128, 255}, frame.Normalized.Pix)
	assert.Equal(t, float32(0), frame.RawDepth.At(0, 0))
	assert.InDelta(t, 1300*0.06/10, frame.RawDepth.At(0, 1), 1e-5)
	assert.Same(t, capture.left, frame.Left)
	assert.Equal(t, 15, engine.params.BlockSize)

	next, err := src.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, next.Seq)

	require.NoError(t, src.Close())
	assert.True(t, capture.closed)
}

func TestSourceIncompletePairIsMissingBuffer(t *testing.T) {
	capture := &fakeCapture{left: gradient(2, 2)}
	src := NewSource(capture, nil, &constantEngine{}, DefaultMatcherParams(), processing.DefaultOptions())
	_, err := src.Acquire(context.Background())
	assert.ErrorIs(t, err, types.ErrMissingBuffer)

	capture.err = errors.New("usb reset")
	_, err = src.Acquire(context.Background())
	assert.EqualError(t, err, "usb reset")
}

func TestSourceRejectsInvalidParams(t *testing.T) {
	params := DefaultMatcherParams()
	params.BlockSize = 0
	capture := &fakeCapture{}
	src := NewSource(capture, nil, &constantEngine{}, params, processing.DefaultOptions())
	assert.Error(t, src.Open(context.Background()))
	assert.False(t, capture.opened)
}

func TestFileCapture(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"left0.png", "right0.png", "left1.png"} {
		f, err := os.Create(filepath.Join(dir, name))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, gradient(3, 2)))
		require.NoError(t, f.Close())
	}

	pairs := PairsInDir(dir)
	require.Len(t, pairs, 1)

	capture := NewFileCapture(pairs)
	require.NoError(t, capture.Open(context.Background()))
	left, right, err := capture.Grab(context.Background())
	require.NoError(t, err)
	assert.Equal(t, gradient(3, 2).Pix, left.Pix)
	assert.Equal(t, 3, right.Rect.Dx())

	_, _, err = capture.Grab(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	assert.Error(t, NewFileCapture(nil).Open(context.Background()))
}
