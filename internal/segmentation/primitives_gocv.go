//go:build gocv

package segmentation

import (
	"image"

	"gocv.io/x/gocv"
)

// OpenCV implements Primitives with Canny and external contour retrieval.
type OpenCV struct {
	Low  float32
	High float32
}

// NewPrimitives returns the OpenCV primitives.
func NewPrimitives(edgeLow, edgeHigh float64) Primitives {
	return OpenCV{Low: float32(edgeLow), High: float32(edgeHigh)}
}

func (o OpenCV) Edges(src *image.Gray) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, src.Rect.Dx(), src.Rect.Dy()))
	mat, err := gocv.ImageGrayToMatGray(cloneGray(src))
	if err != nil {
		return out
	}
	defer mat.Close()

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(mat, &edges, o.Low, o.High)

	img, err := edges.ToImage()
	if err != nil {
		return out
	}
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			out.Pix[(y-b.Min.Y)*out.Stride+(x-b.Min.X)] = uint8(r >> 8)
		}
	}
	return out
}

func (o OpenCV) Contours(edges *image.Gray) [][]image.Point {
	mat, err := gocv.ImageGrayToMatGray(cloneGray(edges))
	if err != nil {
		return nil
	}
	defer mat.Close()

	found := gocv.FindContours(mat, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer found.Close()

	out := make([][]image.Point, 0, found.Size())
	for i := 0; i < found.Size(); i++ {
		out = append(out, found.At(i).ToPoints())
	}
	return out
}
