// Package segmentation splits a normalized depth map into intensity bands, cleans
// each band with morphology, and measures the mean depth of every object outline.
package segmentation

import (
	"fmt"
	"image"

	"go.uber.org/zap"

	"depthrig-go/internal/types"
)

// BandResult is the outcome for one band. Cleaned and Extraction are only set for
// accepted bands.
type BandResult struct {
	Band       Band
	PixelCount int
	Accepted   bool
	Histogram  [256]int
	Cleaned    *image.Gray
	Extraction *Extraction
}

// Result holds one entry per band in threshold order.
type Result struct {
	Bands []BandResult
}

// TaggedRecord is one contour amplitude tagged with the band it came from.
type TaggedRecord struct {
	Band      Band    `json:"band"`
	Contour   int     `json:"contour"`
	Amplitude float64 `json:"amplitude"`
}

// Records returns the union of the accepted bands' amplitude records, ordered by
// band then contour index.
func (r *Result) Records() []TaggedRecord {
	var out []TaggedRecord
	for _, br := range r.Bands {
		if !br.Accepted || br.Extraction == nil {
			continue
		}
		for _, c := range br.Extraction.Contours {
			if !c.Kept {
				continue
			}
			out = append(out, TaggedRecord{Band: br.Band, Contour: c.Index, Amplitude: c.Amplitude})
		}
	}
	return out
}

// Accepted counts bands that passed the pixel gate.
func (r *Result) Accepted() int {
	n := 0
	for _, br := range r.Bands {
		if br.Accepted {
			n++
		}
	}
	return n
}

type Engine struct {
	params   Params
	analyzer *Analyzer
	logger   *zap.SugaredLogger
}

func NewEngine(params Params, prims Primitives, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		params:   params,
		analyzer: NewAnalyzer(prims, logger),
		logger:   logger,
	}
}

func (e *Engine) Params() Params {
	return e.params
}

// Segment runs every band of the configured thresholds over normalized. Nothing
// is processed when the parameters or the input dimensions are invalid.
func (e *Engine) Segment(rawDepth types.Float32Grid, normalized *image.Gray) (*Result, error) {
	if err := e.params.Validate(); err != nil {
		return nil, err
	}
	bands, _ := BandsFromThresholds(e.params.Thresholds)
	if normalized == nil {
		return nil, fmt.Errorf("normalized map is missing")
	}
	w, h := normalized.Rect.Dx(), normalized.Rect.Dy()
	if rawDepth.Width != w || rawDepth.Height != h {
		return nil, fmt.Errorf("raw depth %dx%d does not match normalized map %dx%d", rawDepth.Width, rawDepth.Height, w, h)
	}

	result := &Result{Bands: make([]BandResult, 0, len(bands))}
	for _, band := range bands {
		segment := BandMask(normalized, band)
		hist := Histogram(segment)
		br := BandResult{
			Band:       band,
			Histogram:  hist,
			PixelCount: NonZeroCount(hist),
		}
		if br.PixelCount < e.params.PixelMin {
			e.logger.Infow("band rejected", "lower", band.Lower, "upper", band.Upper, "count", br.PixelCount, "pixel_min", e.params.PixelMin)
			result.Bands = append(result.Bands, br)
			continue
		}
		br.Accepted = true

		cleaned, err := Clean(segment, e.params.KernelSize, e.params.DilateIterations, e.params.ErodeIterations)
		if err != nil {
			return nil, err
		}
		br.Cleaned = cleaned
		extraction, err := e.analyzer.Extract(cleaned, rawDepth, e.params.MinContourArea)
		if err != nil {
			return nil, err
		}
		br.Extraction = extraction
		e.logger.Infow("band accepted", "lower", band.Lower, "upper", band.Upper, "count", br.PixelCount, "contours", len(extraction.Records))
		result.Bands = append(result.Bands, br)
	}
	return result, nil
}
