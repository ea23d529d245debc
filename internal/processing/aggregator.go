package processing

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"depthrig-go/internal/types"
)

// DepthStats summarizes the valid depth samples of one frame.
type DepthStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Valid int     `json:"valid"`
}

// Aggregator keeps running counters and the stats of the latest frame for the
// status surface. It is safe for concurrent use.
type Aggregator struct {
	mu         sync.Mutex
	frameCount int
	lastSeq    int
	lastKind   types.SourceKind
	lastFrame  time.Time
	stats      DepthStats
}

func NewAggregator() *Aggregator {
	return &Aggregator{lastSeq: -1}
}

func (a *Aggregator) AddFrame(frame types.Frame) DepthStats {
	stats := ComputeDepthStats(frame.RawDepth)
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frameCount++
	a.lastSeq = frame.Seq
	a.lastKind = frame.Kind
	a.lastFrame = frame.Captured
	a.stats = stats
	return stats
}

func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frameCount = 0
	a.lastSeq = -1
	a.stats = DepthStats{}
}

func (a *Aggregator) Snapshot() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	last := ""
	if !a.lastFrame.IsZero() {
		last = a.lastFrame.Format(time.RFC3339)
	}
	return map[string]any{
		"frames":      a.frameCount,
		"last_seq":    a.lastSeq,
		"last_kind":   string(a.lastKind),
		"last_frame":  last,
		"depth_stats": a.stats,
	}
}

// ComputeDepthStats ignores zero, NaN and infinite samples.
func ComputeDepthStats(grid types.Float32Grid) DepthStats {
	values := make([]float64, 0, len(grid.Pix))
	stats := DepthStats{}
	for _, v := range grid.Pix {
		d := float64(v)
		if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			continue
		}
		if len(values) == 0 || d < stats.Min {
			stats.Min = d
		}
		if len(values) == 0 || d > stats.Max {
			stats.Max = d
		}
		values = append(values, d)
	}
	stats.Valid = len(values)
	if stats.Valid > 0 {
		stats.Mean = stat.Mean(values, nil)
	}
	return stats
}
