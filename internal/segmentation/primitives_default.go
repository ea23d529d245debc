//go:build !gocv

package segmentation

// NewPrimitives returns the native primitives. The edge thresholds only apply to
// the OpenCV build.
func NewPrimitives(edgeLow, edgeHigh float64) Primitives {
	return Native{}
}
