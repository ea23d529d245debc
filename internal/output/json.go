package output

import (
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// NormalizeJSONValue converts decoded CBOR into values encoding/json accepts.
// Large byte strings are summarized instead of dumped.
func NormalizeJSONValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = NormalizeJSONValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = NormalizeJSONValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeJSONValue(item)
		}
		return out
	case []byte:
		if len(val) > 64 {
			return fmt.Sprintf("<%d bytes>", len(val))
		}
		return base64.StdEncoding.EncodeToString(val)
	case cbor.Tag:
		return map[string]any{
			"tag":     val.Number,
			"content": NormalizeJSONValue(val.Content),
		}
	default:
		return val
	}
}
