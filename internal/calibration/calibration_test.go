package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"depthrig-go/internal/logging"
)

func TestFieldNames(t *testing.T) {
	c := New()
	assert.Len(t, c.Fields(), 19)
	assert.Equal(t, "cam_mats_left.cbor", c.Left.CameraMatrix.FileName())
	assert.Equal(t, "rectification_map_right.cbor", c.Right.RectificationMap.FileName())
	assert.Equal(t, "disp_to_depth_mat.cbor", c.DispToDepth.FileName())
	assert.False(t, c.Complete())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := New()
	camera := mat.NewDense(3, 3, []float64{1300, 0, 320, 0, 1300, 240, 0, 0, 1})
	c.Left.CameraMatrix.Set(camera)
	c.Translation.Set(mat.NewDense(3, 1, []float64{-0.06, 0, 0}))
	require.NoError(t, c.Save(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	logger, logs := logging.NewObservedTestLogger(t)
	loaded, err := Load(dir, logger)
	require.NoError(t, err)

	assert.True(t, loaded.Left.CameraMatrix.Loaded)
	assert.True(t, mat.Equal(camera, loaded.Left.CameraMatrix.Mat))
	assert.True(t, loaded.Translation.Loaded)
	assert.Equal(t, -0.06, loaded.Translation.Mat.At(0, 0))

	assert.False(t, loaded.Right.CameraMatrix.Loaded)
	assert.Nil(t, loaded.Right.CameraMatrix.Mat)
	assert.False(t, loaded.Left.HasMaps())
	assert.Equal(t, 17, logs.FilterMessage("calibration field missing").Len())

	status := loaded.Status()
	assert.True(t, status["cam_mats_left.cbor"])
	assert.False(t, status["cam_mats_right.cbor"])
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rot_mat.cbor"), []byte{0xff, 0x00}, 0o644))

	c, err := Load(dir, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rot_mat.cbor")
	assert.False(t, c.Rotation.Loaded)
}

func TestSetNilUnloads(t *testing.T) {
	var f Field
	f.Set(mat.NewDense(1, 1, []float64{2}))
	assert.True(t, f.Loaded)
	f.Set(nil)
	assert.False(t, f.Loaded)
}
