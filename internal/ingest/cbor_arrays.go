package ingest

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/fxamacker/cbor/v2"

	"depthrig-go/internal/types"
)

// RFC 8746 tags for typed and multi-dimensional arrays.
const (
	tagMultiDimArray = 40
	tagUint8         = 64
	tagUint16LE      = 69
	tagUint32LE      = 70
	tagFloat32LE     = 85
)

func decodeMultiDimArray(value any) (any, error) {
	tag, ok := value.(cbor.Tag)
	if !ok || tag.Number != tagMultiDimArray {
		return nil, fmt.Errorf("expected multidim tag 40")
	}

	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return nil, fmt.Errorf("invalid multidim array content")
	}

	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) != 2 {
		return nil, fmt.Errorf("invalid multidim dimensions")
	}
	rows, err := toInt(dimsRaw[0])
	if err != nil {
		return nil, err
	}
	cols, err := toInt(dimsRaw[1])
	if err != nil {
		return nil, err
	}

	flat, err := decodeTypedArray(items[1])
	if err != nil {
		return nil, err
	}

	switch v := flat.(type) {
	case []uint8:
		return reshape(v, rows, cols)
	case []uint16:
		return reshape(v, rows, cols)
	case []uint32:
		return reshape(v, rows, cols)
	case []float32:
		return reshape(v, rows, cols)
	default:
		return nil, errors.New("unsupported typed array type")
	}
}

func decodeTypedArray(value any) (any, error) {
	tag, ok := value.(cbor.Tag)
	if !ok {
		return nil, fmt.Errorf("expected typed array tag")
	}
	data, ok := tag.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported typed array content %T", tag.Content)
	}

	switch tag.Number {
	case tagUint8:
		return data, nil
	case tagUint16LE:
		return bytesToUint16(data), nil
	case tagUint32LE:
		return bytesToUint32(data), nil
	case tagFloat32LE:
		return bytesToFloat32(data), nil
	default:
		return nil, fmt.Errorf("unsupported typed array tag %d", tag.Number)
	}
}

func bytesToUint16(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(data[i*2 : i*2+2])
	}
	return out
}

func bytesToUint32(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}
	return out
}

func bytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : i*4+4]))
	}
	return out
}

func reshape[T any](flat []T, rows, cols int) ([][]T, error) {
	if rows < 0 || cols < 0 || rows*cols != len(flat) {
		return nil, fmt.Errorf("dimension mismatch: %dx%d for %d values", rows, cols, len(flat))
	}
	out := make([][]T, rows)
	for r := 0; r < rows; r++ {
		row := make([]T, cols)
		copy(row, flat[r*cols:(r+1)*cols])
		out[r] = row
	}
	return out, nil
}

// encodeFloat32Grid wraps grid as a tag-40 array of little-endian float32.
func encodeFloat32Grid(grid types.Float32Grid) cbor.Tag {
	data := make([]byte, len(grid.Pix)*4)
	for i, v := range grid.Pix {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return multiDim(grid.Height, grid.Width, cbor.Tag{Number: tagFloat32LE, Content: data})
}

// encodeGray wraps img as a tag-40 array of uint8.
func encodeGray(img *image.Gray) cbor.Tag {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		copy(data[y*w:(y+1)*w], img.Pix[y*img.Stride:y*img.Stride+w])
	}
	return multiDim(h, w, cbor.Tag{Number: tagUint8, Content: data})
}

func multiDim(rows, cols int, typed cbor.Tag) cbor.Tag {
	return cbor.Tag{
		Number:  tagMultiDimArray,
		Content: []any{[]any{rows, cols}, typed},
	}
}
