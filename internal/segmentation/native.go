package segmentation

import (
	"image"
)

// Native implements Primitives without OpenCV. Edges are taken on the support of
// the mask, so intensity steps inside a non-zero region are not edges.
type Native struct{}

// moore lists the 8 neighbours clockwise (image y grows downwards), starting east.
var moore = [8]image.Point{
	{1, 0}, {1, 1}, {0, 1}, {-1, 1},
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1},
}

const west = 4

// Edges marks every non-zero pixel that has a zero 4-neighbour. Pixels outside
// the image count as zero, so regions touching the border stay closed.
func (Native) Edges(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	at := func(x, y int) uint8 { return src.Pix[y*src.Stride+x] }
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if at(x, y) == 0 {
				continue
			}
			if x == 0 || at(x-1, y) == 0 ||
				x == w-1 || at(x+1, y) == 0 ||
				y == 0 || at(x, y-1) == 0 ||
				y == h-1 || at(x, y+1) == 0 {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// Contours traces the outer boundary of every 8-connected edge component and
// drops components lying inside an earlier outer boundary.
func (Native) Contours(edges *image.Gray) [][]image.Point {
	w, h := edges.Rect.Dx(), edges.Rect.Dy()
	labels := make([]int32, w*h)
	var (
		contours [][]image.Point
		label    int32
		stack    []image.Point
	)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if edges.Pix[y*edges.Stride+x] == 0 || labels[y*w+x] != 0 {
				continue
			}
			label++
			size := 0
			labels[y*w+x] = label
			stack = append(stack[:0], image.Pt(x, y))
			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				size++
				for _, d := range moore {
					q := p.Add(d)
					if q.X < 0 || q.Y < 0 || q.X >= w || q.Y >= h {
						continue
					}
					if edges.Pix[q.Y*edges.Stride+q.X] == 0 || labels[q.Y*w+q.X] != 0 {
						continue
					}
					labels[q.Y*w+q.X] = label
					stack = append(stack, q)
				}
			}

			start := image.Pt(x, y)
			if insideAny(contours, start) {
				continue
			}
			current := label
			member := func(p image.Point) bool {
				return p.X >= 0 && p.Y >= 0 && p.X < w && p.Y < h && labels[p.Y*w+p.X] == current
			}
			contours = append(contours, simplifyChain(traceBoundary(start, member, 4*size+8)))
		}
	}
	return contours
}

func insideAny(contours [][]image.Point, p image.Point) bool {
	for _, c := range contours {
		if len(c) >= 3 && PolygonContains(c, p) {
			return true
		}
	}
	return false
}

// traceBoundary follows the outer boundary clockwise with Moore-neighbour
// tracing. start must be the raster-first pixel of its component.
func traceBoundary(start image.Point, member func(image.Point) bool, maxSteps int) []image.Point {
	points := []image.Point{start}
	cur := start
	back := west
	var first image.Point
	haveFirst := false

	for step := 0; step < maxSteps; step++ {
		found := -1
		for i := 1; i <= 8; i++ {
			d := (back + i) % 8
			if member(cur.Add(moore[d])) {
				found = d
				break
			}
		}
		if found < 0 {
			return points
		}
		next := cur.Add(moore[found])
		if cur == start {
			if haveFirst && next == first {
				break
			}
			if !haveFirst {
				first = next
				haveFirst = true
			}
		}
		examined := cur.Add(moore[(found+7)%8])
		back = directionOf(examined.Sub(next))
		points = append(points, next)
		cur = next
	}
	if len(points) > 1 && points[len(points)-1] == start {
		points = points[:len(points)-1]
	}
	return points
}

func directionOf(d image.Point) int {
	for i, m := range moore {
		if m == d {
			return i
		}
	}
	return west
}

// simplifyChain keeps only the points where the chain changes direction.
func simplifyChain(points []image.Point) []image.Point {
	n := len(points)
	if n < 3 {
		return points
	}
	out := make([]image.Point, 0, n)
	for i := 0; i < n; i++ {
		prev := points[(i-1+n)%n]
		next := points[(i+1)%n]
		p := points[i]
		if p.Sub(prev) == next.Sub(p) {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return points[:1]
	}
	return out
}
