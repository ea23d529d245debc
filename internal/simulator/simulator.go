// Package simulator produces a synthetic time-of-flight scene for running the
// pipeline without hardware.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sync"
	"time"

	"depthrig-go/internal/processing"
	"depthrig-go/internal/types"
)

// Object is an axis-aligned box at a fixed distance that slides horizontally.
type Object struct {
	X, Y          int
	Width, Height int
	Distance      float32
	Amplitude     float32
	Speed         int
}

type Config struct {
	Width, Height int
	// Rate is frames per second. Zero or less produces frames as fast as they are
	// acquired.
	Rate float64
	// DropEvery makes every Nth acquisition fail with types.ErrMissingBuffer.
	DropEvery   int
	MaxDistance float64
	Background  float32
	Noise       float64
	Seed        int64
	Objects     []Object
	// Frames stops the source with io.EOF after this many frames when positive.
	Frames int
}

func DefaultConfig() Config {
	return Config{
		Width:       160,
		Height:      120,
		Rate:        15,
		MaxDistance: processing.DefaultMaxDistance,
		Background:  3.6,
		Noise:       0.01,
		Seed:        1,
		Objects: []Object{
			{X: 10, Y: 15, Width: 40, Height: 35, Distance: 1.0, Amplitude: 700, Speed: 2},
			{X: 70, Y: 60, Width: 50, Height: 40, Distance: 2.0, Amplitude: 500, Speed: -1},
			{X: 100, Y: 10, Width: 45, Height: 30, Distance: 2.8, Amplitude: 300, Speed: 1},
		},
	}
}

// ErrNotOpen is returned by Acquire before Open or after Close.
var ErrNotOpen = errors.New("simulator not open")

// Source is a FrameSource producing ToF-style frames: a background plane, moving
// boxes, gaussian depth noise and a dark border the amplitude mask removes.
type Source struct {
	cfg  Config
	opts processing.Options

	mu     sync.Mutex
	rng    *rand.Rand
	ticker *time.Ticker
	open   bool
	seq    int
	cycles int
}

func New(cfg Config) *Source {
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = processing.DefaultMaxDistance
	}
	opts := processing.DefaultOptions()
	opts.MaxDistance = cfg.MaxDistance
	return &Source{cfg: cfg, opts: opts}
}

func (s *Source) Open(context.Context) error {
	if s.cfg.Width <= 0 || s.cfg.Height <= 0 {
		return fmt.Errorf("invalid simulator size %dx%d", s.cfg.Width, s.cfg.Height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rand.New(rand.NewSource(s.cfg.Seed))
	if s.cfg.Rate > 0 {
		s.ticker = time.NewTicker(time.Duration(float64(time.Second) / s.cfg.Rate))
	}
	s.open = true
	return nil
}

func (s *Source) Acquire(ctx context.Context) (types.Frame, error) {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return types.Frame{}, ErrNotOpen
	}
	ticker := s.ticker
	s.mu.Unlock()

	if ticker != nil {
		select {
		case <-ctx.Done():
			return types.Frame{}, ctx.Err()
		case <-ticker.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return types.Frame{}, ErrNotOpen
	}
	if s.cfg.Frames > 0 && s.seq >= s.cfg.Frames {
		return types.Frame{}, io.EOF
	}
	s.cycles++
	if s.cfg.DropEvery > 0 && s.cycles%s.cfg.DropEvery == 0 {
		return types.Frame{}, fmt.Errorf("%w: simulated drop on cycle %d", types.ErrMissingBuffer, s.cycles)
	}

	depth, amplitude := s.scene(s.seq)
	raw := types.RawFrame{
		Seq:         s.seq,
		Kind:        types.KindSynthetic,
		Timestamp:   float64(time.Now().UnixNano()) / 1e9,
		MaxDistance: s.cfg.MaxDistance,
		Data: map[string]any{
			"depth":     depth,
			"amplitude": amplitude,
		},
	}
	s.seq++
	return processing.ProcessRawFrame(raw, s.opts)
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.open = false
	return nil
}

// scene renders frame seq. Objects wrap around the horizontal edge.
func (s *Source) scene(seq int) (types.Float32Grid, types.Float32Grid) {
	w, h := s.cfg.Width, s.cfg.Height
	depth := types.NewFloat32Grid(w, h)
	amplitude := types.NewFloat32Grid(w, h)
	for i := range depth.Pix {
		depth.Pix[i] = s.cfg.Background
		amplitude.Pix[i] = 150
	}

	for _, obj := range s.cfg.Objects {
		x0 := obj.X + obj.Speed*seq
		x0 = ((x0 % w) + w) % w
		for y := obj.Y; y < obj.Y+obj.Height && y < h; y++ {
			if y < 0 {
				continue
			}
			for dx := 0; dx < obj.Width; dx++ {
				x := (x0 + dx) % w
				depth.Set(x, y, obj.Distance)
				amplitude.Set(x, y, obj.Amplitude)
			}
		}
	}

	if s.cfg.Noise > 0 {
		for i, v := range depth.Pix {
			depth.Pix[i] = float32(math.Max(0, float64(v)+s.rng.NormFloat64()*s.cfg.Noise))
		}
	}

	// Dark border: too little light returned for a trustworthy depth.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < 2 || y < 2 || x >= w-2 || y >= h-2 {
				amplitude.Set(x, y, 0)
			}
		}
	}
	return depth, amplitude
}
