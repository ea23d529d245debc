package ingest

import (
	"encoding/binary"
	"image"
	"math"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthrig-go/internal/types"
)

func le16(values ...uint16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func leFloat32(values ...float32) []byte {
	out := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

func TestDecodeMultiDimArray(t *testing.T) {
	tests := []struct {
		name  string
		rows  int
		cols  int
		typed cbor.Tag
		want  any
	}{
		{
			name:  "uint8 amplitude",
			rows:  2,
			cols:  2,
			typed: cbor.Tag{Number: tagUint8, Content: []byte{1, 2, 3, 4}},
			want:  [][]uint8{{1, 2}, {3, 4}},
		},
		{
			name:  "uint16 raw depth",
			rows:  1,
			cols:  3,
			typed: cbor.Tag{Number: tagUint16LE, Content: le16(10, 500, 65535)},
			want:  [][]uint16{{10, 500, 65535}},
		},
		{
			name:  "float32 depth",
			rows:  2,
			cols:  1,
			typed: cbor.Tag{Number: tagFloat32LE, Content: leFloat32(1.5, 3.25)},
			want:  [][]float32{{1.5}, {3.25}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeMultiDimArray(multiDim(tc.rows, tc.cols, tc.typed))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeMultiDimArrayRejectsMalformed(t *testing.T) {
	_, err := decodeMultiDimArray(multiDim(3, 3, cbor.Tag{Number: tagUint8, Content: []byte{1, 2}}))
	assert.ErrorContains(t, err, "dimension mismatch")

	_, err = decodeMultiDimArray(multiDim(1, 1, cbor.Tag{Number: 99, Content: []byte{1}}))
	assert.ErrorContains(t, err, "unsupported typed array tag 99")

	_, err = decodeMultiDimArray(cbor.Tag{Number: tagUint8, Content: []byte{1}})
	assert.Error(t, err)
}

func TestEncodedGridsDecodeBack(t *testing.T) {
	grid := types.NewFloat32Grid(3, 2)
	copy(grid.Pix, []float32{0.5, 1, 1.5, 2, 2.5, float32(math.Inf(1))})

	payload, err := cbor.Marshal(encodeFloat32Grid(grid))
	require.NoError(t, err)
	var value any
	require.NoError(t, cbor.Unmarshal(payload, &value))
	got, err := decodeMultiDimArray(value)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 1, 1.5}, {2, 2.5, float32(math.Inf(1))}}, got)

	img := image.NewGray(image.Rect(0, 0, 2, 2))
	copy(img.Pix, []uint8{0, 64, 128, 255})
	payload, err = cbor.Marshal(encodeGray(img))
	require.NoError(t, err)
	require.NoError(t, cbor.Unmarshal(payload, &value))
	got, err = decodeMultiDimArray(value)
	require.NoError(t, err)
	assert.Equal(t, [][]uint8{{0, 64}, {128, 255}}, got)
}
