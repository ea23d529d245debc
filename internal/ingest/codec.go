package ingest

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/fxamacker/cbor/v2"

	"depthrig-go/internal/types"
)

// Message types on the wire.
const (
	TypeFrame = "frame"
	TypeStart = "start"
	TypeEnd   = "end"
)

// EncodeFrame serializes a frame as a CBOR "frame" message:
// { "type": "frame", "seq": <int>, "kind": <string>, "timestamp": <float>,
//   "data": { "depth": <tag40>, "amplitude": <tag40>, "normalized": <tag40>, "left": <tag40>, "right": <tag40> } }
func EncodeFrame(frame types.Frame, maxDistance float64) ([]byte, error) {
	data := map[string]any{
		"depth": encodeFloat32Grid(frame.RawDepth),
	}
	if frame.Amplitude != nil {
		data["amplitude"] = encodeFloat32Grid(*frame.Amplitude)
	}
	if frame.Normalized != nil {
		data["normalized"] = encodeGray(frame.Normalized)
	}
	if frame.Left != nil {
		data["left"] = encodeGray(frame.Left)
	}
	if frame.Right != nil {
		data["right"] = encodeGray(frame.Right)
	}
	timestamp := 0.0
	if !frame.Captured.IsZero() {
		timestamp = float64(frame.Captured.UnixNano()) / 1e9
	}
	msg := map[string]any{
		"type":      TypeFrame,
		"seq":       frame.Seq,
		"kind":      string(frame.Kind),
		"timestamp": timestamp,
		"data":      data,
	}
	if maxDistance > 0 {
		msg["max_distance"] = maxDistance
	}
	return cbor.Marshal(msg)
}

// EncodeMeta serializes a start or end message carrying free-form metadata.
func EncodeMeta(msgType string, meta map[string]any) ([]byte, error) {
	msg := map[string]any{"type": msgType}
	for k, v := range meta {
		if k == "type" {
			continue
		}
		msg[k] = v
	}
	return cbor.Marshal(msg)
}

// DecodeMessage parses one wire message. Typed arrays in "data" are reshaped to
// [][]T; unknown data entries are kept as decoded.
func DecodeMessage(payload []byte) (types.RawMessage, error) {
	var msg map[string]any
	if err := cbor.Unmarshal(payload, &msg); err != nil {
		return types.RawMessage{}, fmt.Errorf("cbor decode: %w", err)
	}
	msgType, _ := msg["type"].(string)
	switch msgType {
	case TypeFrame:
		frame, err := decodeFrame(msg)
		if err != nil {
			return types.RawMessage{}, err
		}
		return types.RawMessage{Type: msgType, Frame: frame}, nil
	case TypeStart, TypeEnd:
		meta := make(map[string]any, len(msg))
		for k, v := range msg {
			if k != "type" {
				meta[k] = v
			}
		}
		return types.RawMessage{Type: msgType, Meta: meta}, nil
	default:
		return types.RawMessage{}, fmt.Errorf("unsupported message type %q", msgType)
	}
}

func decodeFrame(msg map[string]any) (types.RawFrame, error) {
	seq, err := toInt(msg["seq"])
	if err != nil {
		return types.RawFrame{}, fmt.Errorf("invalid seq: %w", err)
	}
	kind, _ := msg["kind"].(string)
	if kind == "" {
		return types.RawFrame{}, errors.New("missing kind")
	}
	raw := types.RawFrame{Seq: seq, Kind: types.SourceKind(kind), Data: map[string]any{}}
	if v, ok := msg["timestamp"]; ok {
		if raw.Timestamp, err = toFloat(v); err != nil {
			return types.RawFrame{}, fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	if v, ok := msg["max_distance"]; ok {
		if raw.MaxDistance, err = toFloat(v); err != nil {
			return types.RawFrame{}, fmt.Errorf("invalid max_distance: %w", err)
		}
	}

	data, ok := msg["data"].(map[any]any)
	if !ok {
		if m, ok2 := msg["data"].(map[string]any); ok2 {
			data = make(map[any]any, len(m))
			for k, v := range m {
				data[k] = v
			}
		} else {
			return types.RawFrame{}, errors.New("invalid data field")
		}
	}
	for k, v := range data {
		key, ok := k.(string)
		if !ok {
			continue
		}
		if tag, isTag := v.(cbor.Tag); isTag && tag.Number == tagMultiDimArray {
			decoded, err := decodeMultiDimArray(tag)
			if err != nil {
				return types.RawFrame{}, fmt.Errorf("data %q: %w", key, err)
			}
			raw.Data[key] = decoded
			continue
		}
		raw.Data[key] = v
	}
	return raw, nil
}

// FrameFromRaw restores a frame written by EncodeFrame without renormalizing,
// so saved frames analyze exactly as they were displayed.
func FrameFromRaw(raw types.RawFrame) (types.Frame, error) {
	rows, ok := raw.Data["depth"].([][]float32)
	if !ok {
		return types.Frame{}, fmt.Errorf("%w: depth", types.ErrMissingBuffer)
	}
	depth, err := types.GridFromRows(rows)
	if err != nil {
		return types.Frame{}, err
	}
	frame := types.Frame{
		Seq:      raw.Seq,
		Kind:     raw.Kind,
		RawDepth: depth,
	}
	if raw.Timestamp > 0 {
		frame.Captured = time.Unix(0, int64(raw.Timestamp*1e9))
	}
	if rows, ok := raw.Data["amplitude"].([][]float32); ok {
		amp, err := types.GridFromRows(rows)
		if err != nil {
			return types.Frame{}, err
		}
		frame.Amplitude = &amp
	}
	frame.Normalized = grayFromRows(raw.Data["normalized"])
	frame.Left = grayFromRows(raw.Data["left"])
	frame.Right = grayFromRows(raw.Data["right"])
	if frame.Normalized == nil {
		return types.Frame{}, fmt.Errorf("%w: normalized", types.ErrMissingBuffer)
	}
	return frame, nil
}

func grayFromRows(v any) *image.Gray {
	rows, ok := v.([][]uint8)
	if !ok || len(rows) == 0 {
		return nil
	}
	img := image.NewGray(image.Rect(0, 0, len(rows[0]), len(rows)))
	for y, row := range rows {
		copy(img.Pix[y*img.Stride:(y+1)*img.Stride], row)
	}
	return img
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unsupported float type %T", v)
	}
}
