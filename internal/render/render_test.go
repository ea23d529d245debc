package render

import (
	"encoding/base64"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJetEnds(t *testing.T) {
	low := Jet(0)
	high := Jet(255)
	assert.Equal(t, uint8(0), low.R)
	assert.Equal(t, uint8(128), low.B)
	assert.Equal(t, uint8(128), high.R)
	assert.Equal(t, uint8(0), high.B)
}

func TestPreviewDownscales(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 100))
	out := Preview(img, 50)
	assert.Equal(t, 50, out.Bounds().Dx())
	assert.Equal(t, 25, out.Bounds().Dy())

	same := Preview(img, 400)
	assert.Equal(t, 200, same.Bounds().Dx())
}

func TestEncodePNGBase64(t *testing.T) {
	encoded, err := EncodePNGBase64(Colorize(image.NewGray(image.Rect(0, 0, 4, 4))))
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(raw[:4]))
}
