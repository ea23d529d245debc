package output

import (
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthrig-go/internal/segmentation"
	"depthrig-go/internal/types"
)

func grayFilled(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestSaveFrameNumbersOnlyFramesWithDepth(t *testing.T) {
	dir := t.TempDir()
	encoded := 0
	w, err := NewWriter(dir, func(types.Frame) ([]byte, error) {
		encoded++
		return []byte{0xa0}, nil
	})
	require.NoError(t, err)

	stereo := types.Frame{
		Seq:        3,
		Kind:       types.KindStereo,
		Left:       grayFilled(8, 6, 10),
		Right:      grayFilled(8, 6, 20),
		Normalized: grayFilled(8, 6, 128),
	}
	paths, err := w.SaveFrame(stereo)
	require.NoError(t, err)
	assert.Len(t, paths, 5)
	for _, name := range []string{"left0.png", "right0.png", "depthmap0.png", "preview0.png", "frame0.cbor"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	_, err = w.SaveFrame(types.Frame{Left: grayFilled(4, 4, 1)})
	assert.ErrorIs(t, err, types.ErrMissingBuffer)

	_, err = w.SaveFrame(types.Frame{Normalized: grayFilled(4, 4, 1)})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "depthmap1.png"))
	assert.NoFileExists(t, filepath.Join(dir, "depthmap2.png"))
	assert.Equal(t, 2, encoded)
}

func TestSaveFrameReportsEncoderFailure(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("boom")
	w, err := NewWriter(dir, func(types.Frame) ([]byte, error) { return nil, boom })
	require.NoError(t, err)

	paths, err := w.SaveFrame(types.Frame{Normalized: grayFilled(4, 4, 9)})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, paths, 2)
	assert.NoFileExists(t, filepath.Join(dir, "frame0.cbor"))
}

func TestWriteAnalysisSkipsRejectedBands(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, nil)
	require.NoError(t, err)

	var hist [256]int
	hist[60] = 400
	result := &segmentation.Result{Bands: []segmentation.BandResult{
		{
			Band:       segmentation.Band{Lower: 50, Upper: 100},
			PixelCount: 400,
			Accepted:   true,
			Histogram:  hist,
			Extraction: &segmentation.Extraction{Annotated: image.NewRGBA(image.Rect(0, 0, 20, 20))},
		},
		{Band: segmentation.Band{Lower: 100, Upper: 200}},
	}}

	paths, err := w.WriteAnalysis(types.Frame{Seq: 7}, result)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
	assert.FileExists(t, filepath.Join(dir, "contour_7_50-100.png"))
	assert.FileExists(t, filepath.Join(dir, "histogram_7_50-100.png"))
	assert.NoFileExists(t, filepath.Join(dir, "contour_7_100-200.png"))
}

func TestWritePNGFailsOnMissingDir(t *testing.T) {
	err := WritePNG(filepath.Join(t.TempDir(), "nope", "x.png"), grayFilled(2, 2, 0))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNormalizeJSONValue(t *testing.T) {
	decoded := map[any]any{
		"type": "frame",
		uint64(1): []any{map[any]any{"k": []byte{1, 2}}},
		"blob":    make([]byte, 100),
		"tagged":  cbor.Tag{Number: 64, Content: []byte{7}},
	}
	out := NormalizeJSONValue(decoded)
	_, err := json.Marshal(out)
	require.NoError(t, err)

	m := out.(map[string]any)
	assert.Equal(t, "frame", m["type"])
	assert.Equal(t, "<100 bytes>", m["blob"])
	assert.Equal(t, "AQI=", m["1"].([]any)[0].(map[string]any)["k"])
	assert.Equal(t, uint64(64), m["tagged"].(map[string]any)["tag"])
}
