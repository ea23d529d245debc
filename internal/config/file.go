package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const maxConfigFileSize = 1 * 1024 * 1024

// pipelineFile is the JSON form of PipelineConfig. Omitted fields keep the
// values of the base configuration.
type pipelineFile struct {
	Thresholds       []int    `json:"thresholds,omitempty"`
	KernelSize       *int     `json:"kernel_size,omitempty"`
	DilateIterations *int     `json:"dilate_iterations,omitempty"`
	ErodeIterations  *int     `json:"erode_iterations,omitempty"`
	PixelMin         *int     `json:"pixel_min,omitempty"`
	MinContourArea   *float64 `json:"min_contour_area,omitempty"`
	EdgeLow          *float64 `json:"edge_low,omitempty"`
	EdgeHigh         *float64 `json:"edge_high,omitempty"`
	PollInterval     *string  `json:"poll_interval,omitempty"`
	DrainTimeout     *string  `json:"drain_timeout,omitempty"`
	StopTimeout      *string  `json:"stop_timeout,omitempty"`
}

// LoadPipelineConfig overlays the JSON file at path onto base and validates the
// result. The file must have a .json extension and be at most 1MB.
func LoadPipelineConfig(path string, base PipelineConfig) (PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return base, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return base, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return base, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return base, fmt.Errorf("failed to read config file: %w", err)
	}

	var file pipelineFile
	if err := json.Unmarshal(data, &file); err != nil {
		return base, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	cfg, err := file.apply(base)
	if err != nil {
		return base, err
	}
	if err := cfg.Validate(); err != nil {
		return base, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (f pipelineFile) apply(cfg PipelineConfig) (PipelineConfig, error) {
	if f.Thresholds != nil {
		cfg.Thresholds = append([]int(nil), f.Thresholds...)
	}
	if f.KernelSize != nil {
		cfg.KernelSize = *f.KernelSize
	}
	if f.DilateIterations != nil {
		cfg.DilateIterations = *f.DilateIterations
	}
	if f.ErodeIterations != nil {
		cfg.ErodeIterations = *f.ErodeIterations
	}
	if f.PixelMin != nil {
		cfg.PixelMin = *f.PixelMin
	}
	if f.MinContourArea != nil {
		cfg.MinContourArea = *f.MinContourArea
	}
	if f.EdgeLow != nil {
		cfg.EdgeLow = *f.EdgeLow
	}
	if f.EdgeHigh != nil {
		cfg.EdgeHigh = *f.EdgeHigh
	}
	durations := []struct {
		name string
		raw  *string
		dst  *time.Duration
	}{
		{"poll_interval", f.PollInterval, &cfg.PollInterval},
		{"drain_timeout", f.DrainTimeout, &cfg.DrainTimeout},
		{"stop_timeout", f.StopTimeout, &cfg.StopTimeout},
	}
	for _, d := range durations {
		if d.raw == nil || *d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.raw)
		if err != nil {
			return cfg, fmt.Errorf("invalid %s '%s': %w", d.name, *d.raw, err)
		}
		*d.dst = parsed
	}
	return cfg, nil
}
