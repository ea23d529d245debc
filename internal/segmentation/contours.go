package segmentation

import (
	"fmt"
	"image"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"depthrig-go/internal/types"
)

// AmplitudeRecord maps a contour index to the mean raw depth under its fill mask.
type AmplitudeRecord map[int]float64

// Extraction is the outcome of one ContourAnalyzer call.
type Extraction struct {
	Contours  []Contour
	Records   AmplitudeRecord
	Annotated *image.RGBA
}

// Kept returns the contours that passed the area filter.
func (e *Extraction) Kept() []Contour {
	var out []Contour
	for _, c := range e.Contours {
		if c.Kept {
			out = append(out, c)
		}
	}
	return out
}

// Analyzer finds object outlines in a cleaned mask and measures their depth.
type Analyzer struct {
	prims  Primitives
	logger *zap.SugaredLogger
}

func NewAnalyzer(prims Primitives, logger *zap.SugaredLogger) *Analyzer {
	if prims == nil {
		prims = Native{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Analyzer{prims: prims, logger: logger}
}

// Extract detects outer contours of cleaned, drops those below minArea, and
// averages rawDepth under each surviving contour's filled interior.
func (a *Analyzer) Extract(cleaned *image.Gray, rawDepth types.Float32Grid, minArea float64) (*Extraction, error) {
	w, h := cleaned.Rect.Dx(), cleaned.Rect.Dy()
	if rawDepth.Width != w || rawDepth.Height != h {
		return nil, fmt.Errorf("raw depth %dx%d does not match mask %dx%d", rawDepth.Width, rawDepth.Height, w, h)
	}

	edges := a.prims.Edges(cleaned)
	chains := a.prims.Contours(edges)

	out := &Extraction{
		Contours: make([]Contour, 0, len(chains)),
		Records:  AmplitudeRecord{},
	}
	for i, points := range chains {
		c := Contour{Index: i, Points: points, Area: PolygonArea(points)}
		if c.Area < minArea {
			a.logger.Debugw("contour discarded", "index", i, "area", c.Area, "min_area", minArea)
			out.Contours = append(out.Contours, c)
			continue
		}
		c.Kept = true
		c.Amplitude = meanUnderPolygon(points, rawDepth)
		out.Records[i] = c.Amplitude
		out.Contours = append(out.Contours, c)
	}
	out.Annotated = Annotate(cleaned, out.Kept())
	return out, nil
}

// meanUnderPolygon averages rawDepth over the filled polygon, boundary included.
// NaN samples count as zero. An empty fill yields 0.
func meanUnderPolygon(points []image.Point, rawDepth types.Float32Grid) float64 {
	mask := FillMask(points, rawDepth.Width, rawDepth.Height)
	if len(mask) == 0 {
		return 0
	}
	values := make([]float64, 0, len(mask))
	for _, p := range mask {
		v := float64(rawDepth.At(p.X, p.Y))
		if math.IsNaN(v) {
			v = 0
		}
		values = append(values, v)
	}
	return stat.Mean(values, nil)
}

// FillMask lists the pixels inside or on the polygon, clipped to the image.
func FillMask(points []image.Point, width, height int) []image.Point {
	if len(points) == 0 {
		return nil
	}
	bounds := Contour{Points: points}.Bounds().Intersect(image.Rect(0, 0, width, height))
	var out []image.Point
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			p := image.Pt(x, y)
			if PolygonContains(points, p) {
				out = append(out, p)
			}
		}
	}
	return out
}
