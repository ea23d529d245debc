package ingest

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthrig-go/internal/output"
	"depthrig-go/internal/processing"
	"depthrig-go/internal/types"
)

func TestReplaySourcePlaysFramesInOrder(t *testing.T) {
	writer, err := output.NewRawLogWriter(t.TempDir(), "replay")
	require.NoError(t, err)

	start, err := EncodeMeta(TypeStart, map[string]any{"rig": "bench"})
	require.NoError(t, err)
	require.NoError(t, writer.Record(start))
	for seq := 0; seq < 2; seq++ {
		depth := types.NewFloat32Grid(2, 2)
		copy(depth.Pix, []float32{1, 2, 3, float32(seq)})
		payload, err := EncodeFrame(types.Frame{Seq: seq, Kind: types.KindToF, RawDepth: depth}, 4)
		require.NoError(t, err)
		require.NoError(t, writer.Record(payload))
	}
	require.NoError(t, writer.Record([]byte("not cbor")))
	require.NoError(t, writer.Close())

	src := NewReplaySource(writer.Path(), 0, processing.DefaultOptions(), nil)
	ctx := context.Background()
	require.NoError(t, src.Open(ctx))
	defer src.Close()

	for seq := 0; seq < 2; seq++ {
		frame, err := src.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, seq, frame.Seq)
		assert.Equal(t, types.KindToF, frame.Kind)
		assert.Equal(t, float32(seq), frame.RawDepth.At(1, 1))
		require.NotNil(t, frame.Normalized)
	}

	_, err = src.Acquire(ctx)
	assert.ErrorIs(t, err, types.ErrMissingBuffer)

	_, err = src.Acquire(ctx)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReplaySourceRequiresOpen(t *testing.T) {
	src := NewReplaySource("missing.bin", 0, processing.DefaultOptions(), nil)
	_, err := src.Acquire(context.Background())
	assert.Error(t, err)
	assert.Error(t, src.Open(context.Background()))
	assert.NoError(t, src.Close())
}

func TestReplaySourceHonoursContext(t *testing.T) {
	writer, err := output.NewRawLogWriter(t.TempDir(), "replay")
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	src := NewReplaySource(writer.Path(), time.Hour, processing.DefaultOptions(), nil)
	require.NoError(t, src.Open(context.Background()))
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
