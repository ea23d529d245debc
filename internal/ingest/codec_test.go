package ingest

import (
	"image"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthrig-go/internal/processing"
	"depthrig-go/internal/types"
)

func tofFrame() types.Frame {
	depth := types.NewFloat32Grid(3, 2)
	copy(depth.Pix, []float32{0.5, 1, 2, 3, 4, 0})
	amp := types.NewFloat32Grid(3, 2)
	copy(amp.Pix, []float32{1000, 1000, 1000, 0, 1000, 1000})
	normalized := processing.NormalizeToF(depth, 4)
	return types.Frame{
		Seq:        42,
		Kind:       types.KindToF,
		Captured:   time.Unix(1700000000, 500000000),
		RawDepth:   depth,
		Amplitude:  &amp,
		Normalized: normalized,
		Left:       image.NewGray(image.Rect(0, 0, 3, 2)),
	}
}

func TestFrameRoundTrip(t *testing.T) {
	frame := tofFrame()
	payload, err := EncodeFrame(frame, 4)
	require.NoError(t, err)

	msg, err := DecodeMessage(payload)
	require.NoError(t, err)
	require.Equal(t, TypeFrame, msg.Type)
	assert.Equal(t, 42, msg.Frame.Seq)
	assert.Equal(t, types.KindToF, msg.Frame.Kind)
	assert.Equal(t, 4.0, msg.Frame.MaxDistance)

	restored, err := FrameFromRaw(msg.Frame)
	require.NoError(t, err)
	if diff := cmp.Diff(frame.RawDepth, restored.RawDepth); diff != "" {
		t.Errorf("depth mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, restored.Amplitude)
	assert.Equal(t, frame.Amplitude.Pix, restored.Amplitude.Pix)
	assert.Equal(t, frame.Normalized.Pix, restored.Normalized.Pix)
	assert.NotNil(t, restored.Left)
	assert.Nil(t, restored.Right)
	assert.Equal(t, frame.Captured.Unix(), restored.Captured.Unix())
}

func TestReceivedFrameIsNormalized(t *testing.T) {
	frame := tofFrame()
	payload, err := EncodeFrame(frame, 4)
	require.NoError(t, err)
	msg, err := DecodeMessage(payload)
	require.NoError(t, err)

	processed, err := processing.ProcessRawFrame(msg.Frame, processing.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, frame.Normalized.Pix, processed.Normalized.Pix)
	require.NotNil(t, processed.Preview)
	// Amplitude 0 at (0,1) is masked out of the preview.
	assert.Equal(t, uint8(0), processed.Preview.GrayAt(0, 1).Y)
}

func TestMetaMessages(t *testing.T) {
	payload, err := EncodeMeta(TypeStart, map[string]any{"rig": "bench", "type": "ignored"})
	require.NoError(t, err)
	msg, err := DecodeMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, TypeStart, msg.Type)
	assert.Equal(t, "bench", msg.Meta["rig"])
	assert.NotContains(t, msg.Meta, "type")
}

func TestDecodeMessageErrors(t *testing.T) {
	_, err := DecodeMessage([]byte{0xff})
	assert.Error(t, err)

	unknown, err := cbor.Marshal(map[string]any{"type": "bogus"})
	require.NoError(t, err)
	_, err = DecodeMessage(unknown)
	assert.Error(t, err)

	noKind, err := cbor.Marshal(map[string]any{"type": "frame", "seq": 1, "data": map[string]any{}})
	require.NoError(t, err)
	_, err = DecodeMessage(noKind)
	assert.Error(t, err)
}

func TestFrameFromRawNeedsDepth(t *testing.T) {
	_, err := FrameFromRaw(types.RawFrame{Kind: types.KindToF, Data: map[string]any{}})
	assert.ErrorIs(t, err, types.ErrMissingBuffer)
}
