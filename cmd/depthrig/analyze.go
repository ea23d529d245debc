package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"depthrig-go/internal/ingest"
	"depthrig-go/internal/logging"
	"depthrig-go/internal/output"
	"depthrig-go/internal/segmentation"
	"depthrig-go/internal/store"
)

// analyzeAction segments frame files written by the save command, exactly as the
// display worker would have.
func analyzeAction(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("at least one frame file is required", 1)
	}
	logger := logging.NewLogger("analyze", c.Bool(flagDebug))
	defer func() { _ = logger.Sync() }()

	cfg, err := pipelineConfig(c.String(flagPreset), c.String(flagPipelineConfig))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	engine := segmentation.NewEngine(cfg.Segmentation(), segmentation.NewPrimitives(cfg.EdgeLow, cfg.EdgeHigh), logger)

	writer, err := output.NewWriter(c.String(flagOutputDir), nil)
	if err != nil {
		return err
	}
	var st *store.Store
	runID := store.NewRunID()
	if path := c.String(flagStore); path != "" {
		if st, err = store.Open(path); err != nil {
			return fmt.Errorf("open store %s: %w", path, err)
		}
		defer st.Close()
	}

	var errs error
	for _, path := range c.Args().Slice() {
		payload, err := os.ReadFile(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		msg, err := ingest.DecodeMessage(payload)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		frame, err := ingest.FrameFromRaw(msg.Frame)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		result, err := engine.Segment(frame.RawDepth, frame.Normalized)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		fmt.Fprintf(c.App.Writer, "%s (seq %d, %s)\n", path, frame.Seq, frame.Kind)
		for _, br := range result.Bands {
			state := "rejected"
			if br.Accepted {
				state = "accepted"
			}
			fmt.Fprintf(c.App.Writer, "  band %-8s %8d px  %s\n", br.Band, br.PixelCount, state)
			if br.Extraction == nil {
				continue
			}
			for _, contour := range br.Extraction.Kept() {
				fmt.Fprintf(c.App.Writer, "    contour %d  area %.1f  amplitude %.2f\n", contour.Index, contour.Area, contour.Amplitude)
			}
		}

		paths, err := writer.WriteAnalysis(frame, result)
		errs = multierr.Append(errs, err)
		for _, p := range paths {
			logger.Infow("artifact written", "path", p)
		}
		if st != nil {
			if _, err := st.RecordAnalysis(context.Background(), runID, frame, result); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}

func historyAction(c *cli.Context) error {
	st, err := store.Open(c.String(flagStore))
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	analyses, err := st.ListAnalyses(ctx, c.String(flagRun))
	if err != nil {
		return err
	}
	for _, a := range analyses {
		fmt.Fprintf(c.App.Writer, "%s run=%s seq=%d kind=%s bands=%d at=%s\n",
			a.ID, a.RunID, a.FrameSeq, a.Kind, a.AcceptedBands, a.Created.Format("2006-01-02 15:04:05"))
		records, err := st.Amplitudes(ctx, a.ID)
		if err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Fprintf(c.App.Writer, "  band %s contour %d amplitude %.2f\n", rec.Band, rec.Contour, rec.Amplitude)
		}
	}
	return nil
}
