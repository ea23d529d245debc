package processing

import (
	"errors"
	"fmt"
	"image"
	"math"
	"reflect"
	"time"

	"depthrig-go/internal/types"
)

// Options carries the sensor constants needed to turn wire payloads into frames.
type Options struct {
	MaxDistance float64
	FocalLength float64
	Baseline    float64
}

func DefaultOptions() Options {
	return Options{
		MaxDistance: DefaultMaxDistance,
		FocalLength: DefaultFocalLength,
		Baseline:    DefaultBaseline,
	}
}

// ProcessRawFrame builds a Frame from decoded buffers. A frame whose required
// buffer is absent yields types.ErrMissingBuffer.
func ProcessRawFrame(raw types.RawFrame, opts Options) (types.Frame, error) {
	frame := types.Frame{
		Seq:      raw.Seq,
		Kind:     raw.Kind,
		Captured: captured(raw.Timestamp),
	}

	switch raw.Kind {
	case types.KindToF, types.KindSynthetic:
		depth, ok, err := gridField(raw.Data, "depth")
		if err != nil {
			return types.Frame{}, err
		}
		if !ok {
			return types.Frame{}, fmt.Errorf("%w: depth", types.ErrMissingBuffer)
		}
		maxDistance := raw.MaxDistance
		if maxDistance <= 0 {
			maxDistance = opts.MaxDistance
		}
		frame.RawDepth = depth
		frame.Normalized = NormalizeToF(depth, maxDistance)

		amplitude, ok, err := gridField(raw.Data, "amplitude")
		if err != nil {
			return types.Frame{}, err
		}
		if ok {
			frame.Amplitude = &amplitude
			frame.Preview = CombineMasks(frame.Normalized, AmplitudeMask(amplitude))
		}
	case types.KindStereo:
		disparity, ok, err := gridField(raw.Data, "disparity")
		if err != nil {
			return types.Frame{}, err
		}
		if !ok {
			return types.Frame{}, fmt.Errorf("%w: disparity", types.ErrMissingBuffer)
		}
		disparity = ClipNegative(disparity)
		frame.Normalized = NormalizeMinMax(disparity)
		frame.RawDepth = DepthFromDisparity(disparity, opts.FocalLength, opts.Baseline)

		if left, ok := grayField(raw.Data, "left"); ok {
			frame.Left = left
		}
		if right, ok := grayField(raw.Data, "right"); ok {
			frame.Right = right
		}
	default:
		return types.Frame{}, fmt.Errorf("unsupported frame kind %q", raw.Kind)
	}
	return frame, nil
}

func captured(ts float64) time.Time {
	if ts <= 0 {
		return time.Now()
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func gridField(data map[string]any, key string) (types.Float32Grid, bool, error) {
	payload, ok := data[key]
	if !ok || payload == nil {
		return types.Float32Grid{}, false, nil
	}
	grid, err := ToGrid(payload)
	if err != nil {
		return types.Float32Grid{}, false, fmt.Errorf("%s: %w", key, err)
	}
	return grid, true, nil
}

func grayField(data map[string]any, key string) (*image.Gray, bool) {
	payload, ok := data[key]
	if !ok {
		return nil, false
	}
	rows, ok := payload.([][]uint8)
	if !ok || len(rows) == 0 {
		return nil, false
	}
	img := image.NewGray(image.Rect(0, 0, len(rows[0]), len(rows)))
	for y, row := range rows {
		if len(row) != img.Rect.Dx() {
			return nil, false
		}
		copy(img.Pix[y*img.Stride:], row)
	}
	return img, true
}

// ToGrid converts any decoded 2-D numeric payload into a float32 grid.
func ToGrid(payload any) (types.Float32Grid, error) {
	switch v := payload.(type) {
	case types.Float32Grid:
		return v, nil
	case [][]float32:
		return types.GridFromRows(v)
	case [][]float64:
		return gridFrom(v, func(x float64) float32 { return float32(x) })
	case [][]uint8:
		return gridFrom(v, func(x uint8) float32 { return float32(x) })
	case [][]uint16:
		return gridFrom(v, func(x uint16) float32 { return float32(x) })
	case [][]uint32:
		return gridFrom(v, func(x uint32) float32 { return float32(x) })
	case [][]int16:
		return gridFrom(v, func(x int16) float32 { return float32(x) })
	case [][]any:
		return gridFromAny(v)
	case []any:
		rows := make([][]any, 0, len(v))
		for _, row := range v {
			r, ok := row.([]any)
			if !ok {
				return types.Float32Grid{}, fmt.Errorf("unsupported row type %T", row)
			}
			rows = append(rows, r)
		}
		return gridFromAny(rows)
	default:
		rv := reflect.ValueOf(payload)
		if rv.Kind() == reflect.Slice {
			return types.Float32Grid{}, fmt.Errorf("unsupported grid element type %s", rv.Type().Elem())
		}
		return types.Float32Grid{}, fmt.Errorf("unsupported grid type %T", payload)
	}
}

func gridFrom[T any](rows [][]T, conv func(T) float32) (types.Float32Grid, error) {
	if len(rows) == 0 {
		return types.Float32Grid{}, errors.New("empty grid")
	}
	width := len(rows[0])
	grid := types.NewFloat32Grid(width, len(rows))
	for y, row := range rows {
		if len(row) != width {
			return types.Float32Grid{}, errors.New("ragged grid rows")
		}
		for x, v := range row {
			grid.Pix[y*width+x] = conv(v)
		}
	}
	return grid, nil
}

func gridFromAny(rows [][]any) (types.Float32Grid, error) {
	return gridFrom(rows, func(v any) float32 {
		switch n := v.(type) {
		case float64:
			return float32(n)
		case float32:
			return n
		case int64:
			return float32(n)
		case uint64:
			return float32(n)
		case int:
			return float32(n)
		default:
			return float32(math.NaN())
		}
	})
}
