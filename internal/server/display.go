package server

import (
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"depthrig-go/internal/render"
	"depthrig-go/internal/segmentation"
	"depthrig-go/internal/types"
)

// FrameMessage carries one rendered preview.
type FrameMessage struct {
	Type string `json:"type"`
	Seq  int    `json:"seq"`
	Kind string `json:"kind"`
	PNG  string `json:"png"`
}

type BandSummary struct {
	Lower      uint8           `json:"lower"`
	Upper      uint8           `json:"upper"`
	PixelCount int             `json:"pixel_count"`
	Accepted   bool            `json:"accepted"`
	Contours   map[int]float64 `json:"contours,omitempty"`
	Annotated  string          `json:"annotated,omitempty"`
}

// AnalysisMessage carries per-band results of one analysis.
type AnalysisMessage struct {
	Type  string        `json:"type"`
	Seq   int           `json:"seq"`
	Bands []BandSummary `json:"bands"`
}

// Display renders frames into messages for the websocket. It never blocks: when
// the outgoing buffer is full the message is dropped and counted.
type Display struct {
	out      chan any
	maxWidth int
	logger   *zap.SugaredLogger
	dropped  atomic.Int64
}

func NewDisplay(buffer, maxWidth int, logger *zap.SugaredLogger) *Display {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Display{out: make(chan any, buffer), maxWidth: maxWidth, logger: logger}
}

// Messages is the stream to hand to Server.Run.
func (d *Display) Messages() <-chan any {
	return d.out
}

func (d *Display) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Display) Render(frame types.Frame) {
	img := frame.DisplayImage()
	if img == nil {
		return
	}
	encoded, err := render.EncodePNGBase64(render.Preview(img, d.maxWidth))
	if err != nil {
		d.logger.Warnw("preview encode failed", "seq", frame.Seq, "error", err)
		return
	}
	d.send(FrameMessage{Type: "frame", Seq: frame.Seq, Kind: string(frame.Kind), PNG: encoded})
}

func (d *Display) RenderAnalysis(frame types.Frame, result *segmentation.Result) {
	msg := AnalysisMessage{Type: "analysis", Seq: frame.Seq}
	for _, br := range result.Bands {
		summary := BandSummary{
			Lower:      br.Band.Lower,
			Upper:      br.Band.Upper,
			PixelCount: br.PixelCount,
			Accepted:   br.Accepted,
		}
		if br.Extraction != nil {
			summary.Contours = br.Extraction.Records
			if br.Extraction.Annotated != nil {
				if encoded, err := render.EncodePNGBase64(br.Extraction.Annotated); err == nil {
					summary.Annotated = encoded
				}
			}
		}
		msg.Bands = append(msg.Bands, summary)
	}
	d.send(msg)
}

func (d *Display) send(msg any) {
	select {
	case d.out <- msg:
	default:
		if d.dropped.Inc()%100 == 1 {
			d.logger.Warnw("live display behind, dropping messages", "dropped", d.dropped.Load())
		}
	}
}
