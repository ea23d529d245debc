package main

import (
	"fmt"
	"image"
	"path/filepath"
	"sort"

	"github.com/urfave/cli/v2"

	"depthrig-go/internal/calibration"
	"depthrig-go/internal/logging"
	"depthrig-go/internal/output"
	"depthrig-go/internal/stereo"
)

func calibAction(c *cli.Context) error {
	logger := logging.NewLogger("calib", c.Bool(flagDebug))
	defer func() { _ = logger.Sync() }()

	dir := c.String(flagCalibDir)
	cal, err := calibration.Load(dir, logger)
	if err != nil {
		return err
	}

	status := cal.Status()
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		state := "missing"
		if status[name] {
			state = "loaded"
		}
		fmt.Fprintf(c.App.Writer, "%-32s %s\n", name, state)
	}

	leftPath, rightPath := c.String(flagLeft), c.String(flagRight)
	if leftPath == "" && rightPath == "" {
		return nil
	}
	if leftPath == "" || rightPath == "" {
		return cli.Exit("--left and --right go together", 1)
	}
	rectifier, err := stereo.NewMapRectifier(cal)
	if err != nil {
		return fmt.Errorf("calibration in %s: %w", dir, err)
	}
	left, err := stereo.LoadGray(leftPath)
	if err != nil {
		return err
	}
	right, err := stereo.LoadGray(rightPath)
	if err != nil {
		return err
	}
	rectLeft, rectRight, err := rectifier.Rectify(left, right)
	if err != nil {
		return err
	}

	outDir := c.String(flagOutputDir)
	writer, err := output.NewWriter(outDir, nil)
	if err != nil {
		return err
	}
	for name, img := range map[string]*image.Gray{"rectified_left.png": rectLeft, "rectified_right.png": rectRight} {
		path := filepath.Join(writer.Dir(), name)
		if err := output.WritePNG(path, img); err != nil {
			return err
		}
		logger.Infow("artifact written", "path", path)
	}
	return nil
}
