// Package output writes the artifacts an operator asks for: saved frames,
// annotated analyses, histogram plots and raw stream logs.
package output

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"

	"depthrig-go/internal/render"
	"depthrig-go/internal/segmentation"
	"depthrig-go/internal/types"
)

// FrameEncoder serializes a frame for offline analysis.
type FrameEncoder func(frame types.Frame) ([]byte, error)

// Writer numbers saved frames from zero; the counter advances only when a depth
// map was written.
type Writer struct {
	dir     string
	encoder FrameEncoder

	mu   sync.Mutex
	next int
}

func NewWriter(dir string, encoder FrameEncoder) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{dir: dir, encoder: encoder}, nil
}

func (w *Writer) Dir() string {
	return w.dir
}

// SaveFrame writes left{n}.png, right{n}.png, depthmap{n}.png, preview{n}.png and
// frame{n}.cbor for whatever the frame carries, and returns the written paths.
func (w *Writer) SaveFrame(frame types.Frame) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := w.next
	var written []string
	var errs error
	write := func(name string, img image.Image) {
		path := filepath.Join(w.dir, name)
		if err := WritePNG(path, img); err != nil {
			errs = multierr.Append(errs, err)
			return
		}
		written = append(written, path)
	}

	if frame.Left != nil {
		write(fmt.Sprintf("left%d.png", n), frame.Left)
	}
	if frame.Right != nil {
		write(fmt.Sprintf("right%d.png", n), frame.Right)
	}
	if frame.Normalized == nil {
		return written, multierr.Append(errs, fmt.Errorf("%w: normalized", types.ErrMissingBuffer))
	}
	write(fmt.Sprintf("depthmap%d.png", n), frame.Normalized)
	write(fmt.Sprintf("preview%d.png", n), render.Colorize(frame.DisplayImage()))
	if w.encoder != nil {
		payload, err := w.encoder(frame)
		if err == nil {
			path := filepath.Join(w.dir, fmt.Sprintf("frame%d.cbor", n))
			err = os.WriteFile(path, payload, 0o644)
			if err == nil {
				written = append(written, path)
			}
		}
		errs = multierr.Append(errs, err)
	}
	w.next++
	return written, errs
}

// WriteAnalysis writes contour_<seq>_<band>.png and histogram_<seq>_<band>.png for
// every accepted band.
func (w *Writer) WriteAnalysis(frame types.Frame, result *segmentation.Result) ([]string, error) {
	var written []string
	var errs error
	for _, br := range result.Bands {
		if !br.Accepted || br.Extraction == nil {
			continue
		}
		contourPath := filepath.Join(w.dir, fmt.Sprintf("contour_%d_%s.png", frame.Seq, br.Band))
		if err := WritePNG(contourPath, br.Extraction.Annotated); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			written = append(written, contourPath)
		}
		histPath := filepath.Join(w.dir, fmt.Sprintf("histogram_%d_%s.png", frame.Seq, br.Band))
		if err := PlotHistogram(histPath, br.Band, br.Histogram); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			written = append(written, histPath)
		}
	}
	return written, errs
}

func WritePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return png.Encode(f, img)
}
