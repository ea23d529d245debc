package segmentation

import (
	"image"
)

// Contour is an outer boundary found in one extraction call. Index is only
// meaningful within that call.
type Contour struct {
	Index     int           `json:"index"`
	Points    []image.Point `json:"points"`
	Area      float64       `json:"area"`
	Amplitude float64       `json:"amplitude"`
	Kept      bool          `json:"kept"`
}

// Bounds returns the bounding box of the contour points, inclusive of the last pixel.
func (c Contour) Bounds() image.Rectangle {
	if len(c.Points) == 0 {
		return image.Rectangle{}
	}
	r := image.Rectangle{Min: c.Points[0], Max: c.Points[0].Add(image.Pt(1, 1))}
	for _, p := range c.Points[1:] {
		r = r.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
	}
	return r
}

// Primitives are the edge and contour operations the analyzer depends on.
type Primitives interface {
	// Edges returns a binary edge map of src.
	Edges(src *image.Gray) *image.Gray
	// Contours returns the outer contours of a binary edge map as simplified point chains.
	Contours(edges *image.Gray) [][]image.Point
}

// PolygonArea is the shoelace area of a closed point chain.
func PolygonArea(points []image.Point) float64 {
	n := len(points)
	if n < 3 {
		return 0
	}
	var sum int64
	for i := 0; i < n; i++ {
		a := points[i]
		b := points[(i+1)%n]
		sum += int64(a.X)*int64(b.Y) - int64(b.X)*int64(a.Y)
	}
	if sum < 0 {
		sum = -sum
	}
	return float64(sum) / 2
}

// PolygonContains reports whether p lies inside or on the boundary of the polygon.
func PolygonContains(poly []image.Point, p image.Point) bool {
	n := len(poly)
	if n == 0 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if onSegment(a, b, p) {
			return true
		}
		if (a.Y > p.Y) != (b.Y > p.Y) {
			cross := float64(b.X-a.X)*float64(p.Y-a.Y)/float64(b.Y-a.Y) + float64(a.X)
			if float64(p.X) < cross {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(a, b, p image.Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	if cross != 0 {
		return false
	}
	return p.X >= min(a.X, b.X) && p.X <= max(a.X, b.X) &&
		p.Y >= min(a.Y, b.Y) && p.Y <= max(a.Y, b.Y)
}
