package config

import (
	"fmt"
	"time"

	"depthrig-go/internal/segmentation"
)

// AppConfig is the runtime configuration of the depthrig run command.
type AppConfig struct {
	Port           int
	Source         string
	Preset         string
	PipelineFile   string
	Endpoint       string
	ReplayPath     string
	ReceiveTimeout time.Duration
	Debug          bool
	SimRate        float64
	SimWidth       int
	SimHeight      int
	SimDropEvery   int
	MaxDistance    float64
	FocalLength    float64
	Baseline       float64
	OutputDir      string
	RawLogEnabled  bool
	RawLogDir      string
	StorePath      string
	IngestLogEvery int
	Pipeline       PipelineConfig
}

// PipelineConfig is read-only once the orchestrator has been built.
type PipelineConfig struct {
	Thresholds       []int
	KernelSize       int
	DilateIterations int
	ErodeIterations  int
	PixelMin         int
	MinContourArea   float64
	EdgeLow          float64
	EdgeHigh         float64
	PollInterval     time.Duration
	// DrainTimeout bounds how long the display worker waits for EndOfStream
	// once the run is cancelled. Zero waits until it arrives.
	DrainTimeout     time.Duration
	StopTimeout      time.Duration
}

// StereoPipelineConfig holds the defaults tuned for disparity maps.
func StereoPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Thresholds:       []int{50, 100, 200, 255},
		KernelSize:       5,
		DilateIterations: 1,
		ErodeIterations:  2,
		PixelMin:         20000,
		MinContourArea:   10,
		EdgeLow:          50,
		EdgeHigh:         150,
		PollInterval:     10 * time.Millisecond,
		StopTimeout:      5 * time.Second,
	}
}

// ToFPipelineConfig holds the defaults tuned for time-of-flight depth maps.
func ToFPipelineConfig() PipelineConfig {
	cfg := StereoPipelineConfig()
	cfg.PixelMin = 18000
	cfg.MinContourArea = 20
	cfg.ErodeIterations = 3
	return cfg
}

// PipelineConfigFor picks the preset by name: "stereo" or anything else for ToF.
func PipelineConfigFor(source string) PipelineConfig {
	if source == "stereo" {
		return StereoPipelineConfig()
	}
	return ToFPipelineConfig()
}

// Segmentation returns the parameters the segmentation engine consumes.
func (c PipelineConfig) Segmentation() segmentation.Params {
	return segmentation.Params{
		Thresholds:       append([]int(nil), c.Thresholds...),
		KernelSize:       c.KernelSize,
		DilateIterations: c.DilateIterations,
		ErodeIterations:  c.ErodeIterations,
		PixelMin:         c.PixelMin,
		MinContourArea:   c.MinContourArea,
	}
}

// Validate checks the configuration before any worker is started.
func (c PipelineConfig) Validate() error {
	if err := c.Segmentation().Validate(); err != nil {
		return err
	}
	if c.EdgeLow < 0 || c.EdgeHigh < c.EdgeLow {
		return fmt.Errorf("edge thresholds must satisfy 0 <= low <= high, got %v/%v", c.EdgeLow, c.EdgeHigh)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.StopTimeout <= 0 {
		return fmt.Errorf("stop_timeout must be positive, got %s", c.StopTimeout)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("drain_timeout must be non-negative, got %s", c.DrainTimeout)
	}
	return nil
}
