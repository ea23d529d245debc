package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/maruel/interrupt"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"depthrig-go/internal/config"
	"depthrig-go/internal/ingest"
	"depthrig-go/internal/logging"
	"depthrig-go/internal/output"
	"depthrig-go/internal/pipeline"
	"depthrig-go/internal/processing"
	"depthrig-go/internal/segmentation"
	"depthrig-go/internal/server"
	"depthrig-go/internal/simulator"
	"depthrig-go/internal/store"
	"depthrig-go/internal/types"
)

func appConfigFromFlags(c *cli.Context) (config.AppConfig, error) {
	cfg := config.AppConfig{
		Port:           c.Int(flagPort),
		Source:         c.String(flagSource),
		Preset:         c.String(flagPreset),
		PipelineFile:   c.String(flagPipelineConfig),
		Endpoint:       c.String(flagEndpoint),
		ReplayPath:     c.String(flagReplay),
		ReceiveTimeout: c.Duration(flagReceiveTimeout),
		Debug:          c.Bool(flagDebug),
		SimRate:        c.Float64(flagSimRate),
		SimWidth:       c.Int(flagSimWidth),
		SimHeight:      c.Int(flagSimHeight),
		SimDropEvery:   c.Int(flagSimDropEvery),
		MaxDistance:    c.Float64(flagMaxDistance),
		FocalLength:    c.Float64(flagFocalLength),
		Baseline:       c.Float64(flagBaseline),
		OutputDir:      c.String(flagOutputDir),
		RawLogEnabled:  c.Bool(flagRawLog),
		RawLogDir:      c.String(flagRawLogDir),
		StorePath:      c.String(flagStore),
		IngestLogEvery: c.Int(flagIngestLogEvery),
	}
	pipelineCfg, err := pipelineConfig(cfg.Preset, cfg.PipelineFile)
	if err != nil {
		return cfg, err
	}
	cfg.Pipeline = pipelineCfg
	return cfg, nil
}

func pipelineConfig(preset, path string) (config.PipelineConfig, error) {
	cfg := config.PipelineConfigFor(preset)
	if path == "" {
		return cfg, nil
	}
	return config.LoadPipelineConfig(path, cfg)
}

func processingOptions(cfg config.AppConfig) processing.Options {
	opts := processing.DefaultOptions()
	if cfg.MaxDistance > 0 {
		opts.MaxDistance = cfg.MaxDistance
	}
	if cfg.FocalLength > 0 {
		opts.FocalLength = cfg.FocalLength
	}
	if cfg.Baseline > 0 {
		opts.Baseline = cfg.Baseline
	}
	return opts
}

// statsSource is implemented by sources that keep their own counters.
type statsSource interface {
	Stats() map[string]any
}

// buildSource returns the frame source named in cfg and a closer for anything it
// owns besides the source itself.
func buildSource(cfg config.AppConfig, logger *zap.SugaredLogger) (pipeline.FrameSource, io.Closer, error) {
	opts := processingOptions(cfg)
	switch cfg.Source {
	case "sim":
		simCfg := simulator.DefaultConfig()
		simCfg.Rate = cfg.SimRate
		simCfg.Width = cfg.SimWidth
		simCfg.Height = cfg.SimHeight
		simCfg.DropEvery = cfg.SimDropEvery
		simCfg.MaxDistance = opts.MaxDistance
		return simulator.New(simCfg), nil, nil
	case "ingest":
		srcCfg := ingest.SourceConfig{
			Endpoint:       cfg.Endpoint,
			ReceiveTimeout: cfg.ReceiveTimeout,
			LogEvery:       cfg.IngestLogEvery,
			Options:        opts,
		}
		var closer io.Closer
		if cfg.RawLogEnabled {
			writer, err := output.NewRawLogWriter(cfg.RawLogDir, "raw_cbor")
			if err != nil {
				return nil, nil, fmt.Errorf("start raw log: %w", err)
			}
			logger.Infow("recording raw messages", "path", writer.Path())
			srcCfg.Recorder = writer
			closer = writer
		}
		return ingest.NewSource(srcCfg, logger), closer, nil
	case "replay":
		if cfg.ReplayPath == "" {
			return nil, nil, errors.New("--replay is required for the replay source")
		}
		var interval time.Duration
		if cfg.SimRate > 0 {
			interval = time.Duration(float64(time.Second) / cfg.SimRate)
		}
		return ingest.NewReplaySource(cfg.ReplayPath, interval, opts, logger), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

// artifactSink writes operator-requested artifacts and, when a store is open,
// records analyses in it.
type artifactSink struct {
	writer *output.Writer
	store  *store.Store
	runID  string
	logger *zap.SugaredLogger
}

func (s *artifactSink) Save(frame types.Frame) error {
	paths, err := s.writer.SaveFrame(frame)
	for _, p := range paths {
		s.logger.Infow("artifact written", "path", p)
	}
	return err
}

func (s *artifactSink) Analysis(frame types.Frame, result *segmentation.Result) error {
	paths, err := s.writer.WriteAnalysis(frame, result)
	for _, p := range paths {
		s.logger.Infow("artifact written", "path", p)
	}
	if s.store != nil {
		id, storeErr := s.store.RecordAnalysis(context.Background(), s.runID, frame, result)
		if storeErr != nil {
			err = multierr.Append(err, fmt.Errorf("store analysis: %w", storeErr))
		} else {
			s.logger.Infow("analysis stored", "id", id, "run", s.runID)
		}
	}
	return err
}

func frameEncoder(maxDistance float64) output.FrameEncoder {
	return func(frame types.Frame) ([]byte, error) {
		return ingest.EncodeFrame(frame, maxDistance)
	}
}

func runAction(c *cli.Context) (err error) {
	cfg, err := appConfigFromFlags(c)
	if err != nil {
		return err
	}
	logger := logging.NewLogger("depthrig", cfg.Debug)
	defer func() { _ = logger.Sync() }()

	source, owned, err := buildSource(cfg, logger)
	if err != nil {
		return err
	}
	if owned != nil {
		defer func() { err = multierr.Append(err, owned.Close()) }()
	}

	writer, err := output.NewWriter(cfg.OutputDir, frameEncoder(cfg.MaxDistance))
	if err != nil {
		return fmt.Errorf("output dir %s: %w", cfg.OutputDir, err)
	}
	sink := &artifactSink{writer: writer, runID: store.NewRunID(), logger: logger}
	if cfg.StorePath != "" {
		st, err := store.Open(cfg.StorePath)
		if err != nil {
			return fmt.Errorf("open store %s: %w", cfg.StorePath, err)
		}
		defer st.Close()
		sink.store = st
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithSink(sink),
	}
	var display *server.Display
	if cfg.Port > 0 {
		display = server.NewDisplay(16, 640, logger)
		opts = append(opts, pipeline.WithDisplay(display))
	}
	orch := pipeline.New(cfg.Pipeline, source, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := orch.Start(ctx); err != nil {
		logger.Errorw("pipeline failed to start", "source", cfg.Source, "error", err)
		return err
	}
	logger.Infow("run started", "run", sink.runID, "source", cfg.Source, "preset", cfg.Preset)

	if display != nil {
		status := func() map[string]any {
			stats := orch.Stats()
			stats["run_id"] = sink.runID
			stats["display_dropped"] = display.Dropped()
			if s, ok := source.(statsSource); ok {
				for k, v := range s.Stats() {
					stats[k] = v
				}
			}
			return stats
		}
		commands := func(input string) bool {
			cmd, ok := pipeline.ParseCommand(input)
			if !ok {
				return false
			}
			return orch.Commands().Push(cmd)
		}
		srv := server.New(cfg, status, commands, logger)
		go func() {
			if err := srv.Run(ctx, display.Messages()); err != nil {
				logger.Errorw("live display failed", "port", cfg.Port, "error", err)
			}
		}()
	}
	go pipeline.ReadKeys(ctx, os.Stdin, orch.Commands(), logger)

	interrupt.HandleCtrlC()
	select {
	case <-orch.Done():
	case <-interrupt.Channel:
		logger.Infow("interrupted, stopping")
	}

	if err := orch.Stop(); err != nil {
		if errors.Is(err, pipeline.ErrForcedShutdown) {
			logger.Warnw("pipeline did not stop cleanly", "error", err)
			return nil
		}
		return err
	}
	return nil
}
