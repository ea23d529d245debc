// Package pipeline runs the capture and display workers of a depth stream.
//
// The capture worker acquires frames from a FrameSource and appends them to an
// unbounded queue; the display worker drains the queue, renders frames and acts
// on operator commands. A shared flag, set by quit or Stop, ends the run. The
// capture worker always finishes with exactly one EndOfStream message.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"depthrig-go/internal/config"
	"depthrig-go/internal/processing"
	"depthrig-go/internal/segmentation"
	"depthrig-go/internal/types"
)

// ErrForcedShutdown is returned by Stop when a worker had to be abandoned.
var ErrForcedShutdown = errors.New("forced shutdown")

// FrameSource produces frames. Open failures are fatal; Acquire failures are
// per-cycle, and io.EOF marks a finite source as exhausted.
type FrameSource interface {
	Open(ctx context.Context) error
	Acquire(ctx context.Context) (types.Frame, error)
	Close() error
}

// Display renders frames for the operator. Render must not block for long.
type Display interface {
	Render(frame types.Frame)
}

// AnalysisDisplay is implemented by displays that also show analysis results.
type AnalysisDisplay interface {
	RenderAnalysis(frame types.Frame, result *segmentation.Result)
}

// Sink persists operator-requested artifacts.
type Sink interface {
	Save(frame types.Frame) error
	Analysis(frame types.Frame, result *segmentation.Result) error
}

type counters struct {
	captured   atomic.Int64
	skipped    atomic.Int64
	displayed  atomic.Int64
	saves      atomic.Int64
	analyses   atomic.Int64
	sinkErrors atomic.Int64
}

type Orchestrator struct {
	cfg      config.PipelineConfig
	source   FrameSource
	engine   *segmentation.Engine
	prims    segmentation.Primitives
	queue    *Queue
	commands *CommandQueue
	display  Display
	sink     Sink
	stats    *processing.Aggregator
	logger   *zap.SugaredLogger

	cancel       atomic.Bool
	started      atomic.Bool
	workerCtx    context.Context
	workerCancel context.CancelFunc
	captureDone  chan struct{}
	displayDone  chan struct{}

	stopOnce sync.Once
	stopErr  error
	counters counters
}

type Option func(*Orchestrator)

func WithDisplay(d Display) Option {
	return func(o *Orchestrator) { o.display = d }
}

func WithSink(s Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

func WithCommands(q *CommandQueue) Option {
	return func(o *Orchestrator) { o.commands = q }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithPrimitives(p segmentation.Primitives) Option {
	return func(o *Orchestrator) { o.prims = p }
}

func WithAggregator(a *processing.Aggregator) Option {
	return func(o *Orchestrator) { o.stats = a }
}

func New(cfg config.PipelineConfig, source FrameSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		source:      source,
		queue:       NewQueue(),
		logger:      zap.NewNop().Sugar(),
		captureDone: make(chan struct{}),
		displayDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.prims == nil {
		o.prims = segmentation.NewPrimitives(cfg.EdgeLow, cfg.EdgeHigh)
	}
	o.engine = segmentation.NewEngine(cfg.Segmentation(), o.prims, o.logger)
	if o.commands == nil {
		o.commands = NewCommandQueue(8)
	}
	if o.stats == nil {
		o.stats = processing.NewAggregator()
	}
	o.workerCtx, o.workerCancel = context.WithCancel(context.Background())
	return o
}

// Commands returns the queue the display worker reads operator commands from.
func (o *Orchestrator) Commands() *CommandQueue {
	return o.commands
}

// Start opens the source and launches both workers. It returns once both are
// running; nothing is spawned when the configuration or the source fails.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return errors.New("pipeline already started")
	}
	if err := o.cfg.Validate(); err != nil {
		o.started.Store(false)
		return fmt.Errorf("invalid pipeline configuration: %w", err)
	}
	if err := o.source.Open(ctx); err != nil {
		o.started.Store(false)
		return fmt.Errorf("open frame source: %w", err)
	}

	running := make(chan struct{}, 2)
	go o.captureLoop(running)
	go o.displayLoop(running)
	<-running
	<-running
	o.logger.Infow("pipeline started", "thresholds", o.cfg.Thresholds, "pixel_min", o.cfg.PixelMin)
	return nil
}

// Done is closed when the display worker has exited.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.displayDone
}

// Wait blocks until the display worker has exited. It returns at once if the
// pipeline was never started.
func (o *Orchestrator) Wait() {
	if !o.started.Load() {
		return
	}
	<-o.displayDone
}

// Cancelled reports whether the run has been asked to end.
func (o *Orchestrator) Cancelled() bool {
	return o.cancel.Load()
}

// Stop sets the cancellation flag and waits up to StopTimeout for both workers.
// Workers still running after that are cut off from their context and abandoned;
// the source is closed either way. Stop is idempotent.
func (o *Orchestrator) Stop() error {
	o.stopOnce.Do(func() {
		o.stopErr = o.stop()
	})
	return o.stopErr
}

func (o *Orchestrator) stop() error {
	if !o.started.Load() {
		o.workerCancel()
		return nil
	}
	o.cancel.Store(true)

	deadline := time.Now().Add(o.cfg.StopTimeout)
	var abandoned []string
	if !waitUntil(o.captureDone, deadline) {
		abandoned = append(abandoned, "capture")
	}
	if !waitUntil(o.displayDone, deadline) {
		abandoned = append(abandoned, "display")
	}

	o.workerCancel()
	closeErr := o.source.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("close frame source: %w", closeErr)
	}
	if len(abandoned) > 0 {
		o.logger.Warnw("abnormal shutdown, workers abandoned after timeout",
			"workers", abandoned, "timeout", o.cfg.StopTimeout)
		return multierr.Append(fmt.Errorf("%w: %s", ErrForcedShutdown, strings.Join(abandoned, ", ")), closeErr)
	}
	o.logger.Infow("pipeline stopped", "stats", o.Stats())
	return closeErr
}

func waitUntil(done <-chan struct{}, deadline time.Time) bool {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (o *Orchestrator) captureLoop(running chan<- struct{}) {
	defer close(o.captureDone)
	defer o.queue.Push(EndOfStream())
	running <- struct{}{}

	for !o.cancel.Load() {
		frame, err := o.source.Acquire(o.workerCtx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				o.logger.Infow("frame source exhausted")
				return
			}
			if o.workerCtx.Err() != nil {
				return
			}
			o.counters.skipped.Inc()
			if errors.Is(err, types.ErrMissingBuffer) {
				o.logger.Warnw("frame skipped", "error", err)
				continue
			}
			o.logger.Warnw("frame acquisition failed", "error", err)
			o.pause()
			continue
		}
		o.queue.Push(Data(frame))
		o.counters.captured.Inc()
	}
}

func (o *Orchestrator) pause() {
	timer := time.NewTimer(o.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-o.workerCtx.Done():
	}
}

func (o *Orchestrator) displayLoop(running chan<- struct{}) {
	defer close(o.displayDone)
	running <- struct{}{}

	var (
		last          *types.Frame
		drainDeadline time.Time
	)
	timer := time.NewTimer(o.cfg.PollInterval)
	defer timer.Stop()

	for {
		msg, ok := o.queue.TryPop()
		if ok {
			if msg.IsEndOfStream() {
				o.cancel.Store(true)
				o.logger.Infow("end of stream received")
				return
			}
			frame := msg.Frame
			last = &frame
			o.render(frame)
			o.evaluateCommand(last)
			continue
		}

		o.evaluateCommand(last)
		if o.cfg.DrainTimeout > 0 && o.cancel.Load() {
			if drainDeadline.IsZero() {
				drainDeadline = time.Now().Add(o.cfg.DrainTimeout)
			} else if time.Now().After(drainDeadline) {
				o.logger.Warnw("end of stream not received before drain timeout", "timeout", o.cfg.DrainTimeout)
				return
			}
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(o.cfg.PollInterval)
		select {
		case <-o.queue.Ready():
		case <-timer.C:
		case <-o.workerCtx.Done():
			return
		}
	}
}

func (o *Orchestrator) render(frame types.Frame) {
	o.stats.AddFrame(frame)
	if o.display != nil {
		o.display.Render(frame)
	}
	o.counters.displayed.Inc()
}

// evaluateCommand acts on at most one pending command against the most recent frame.
func (o *Orchestrator) evaluateCommand(last *types.Frame) {
	cmd, ok := o.commands.Poll()
	if !ok {
		return
	}
	switch cmd {
	case CommandQuit:
		o.logger.Infow("quit requested")
		o.cancel.Store(true)
	case CommandSave:
		if last == nil {
			o.logger.Warnw("save ignored, no frame displayed yet")
			return
		}
		o.save(*last)
	case CommandAnalyze:
		if last == nil {
			o.logger.Warnw("analyze ignored, no frame displayed yet")
			return
		}
		o.analyze(*last)
	}
}

func (o *Orchestrator) save(frame types.Frame) {
	if o.sink == nil {
		o.logger.Warnw("save ignored, no sink configured")
		return
	}
	if err := o.sink.Save(frame); err != nil {
		o.counters.sinkErrors.Inc()
		o.logger.Errorw("save failed", "seq", frame.Seq, "error", err)
		return
	}
	o.counters.saves.Inc()
	o.logger.Infow("frame saved", "seq", frame.Seq)
}

// analyze runs segmentation on frame and hands the result to the display and sink.
func (o *Orchestrator) analyze(frame types.Frame) *segmentation.Result {
	result, err := o.engine.Segment(frame.RawDepth, frame.Normalized)
	if err != nil {
		o.logger.Errorw("analysis failed", "seq", frame.Seq, "error", err)
		return nil
	}
	o.counters.analyses.Inc()
	for _, rec := range result.Records() {
		o.logger.Infow("contour amplitude",
			"seq", frame.Seq, "band", rec.Band.String(), "contour", rec.Contour, "amplitude", rec.Amplitude)
	}
	o.logger.Infow("analysis complete", "seq", frame.Seq, "accepted_bands", result.Accepted(), "records", len(result.Records()))

	if ad, ok := o.display.(AnalysisDisplay); ok {
		ad.RenderAnalysis(frame, result)
	}
	if o.sink != nil {
		if err := o.sink.Analysis(frame, result); err != nil {
			o.counters.sinkErrors.Inc()
			o.logger.Errorw("analysis artifacts failed", "seq", frame.Seq, "error", err)
		}
	}
	return result
}

// Stats returns counters and the latest frame statistics.
func (o *Orchestrator) Stats() map[string]any {
	return map[string]any{
		"frames_captured":  o.counters.captured.Load(),
		"frames_skipped":   o.counters.skipped.Load(),
		"frames_displayed": o.counters.displayed.Load(),
		"saves":            o.counters.saves.Load(),
		"analyses":         o.counters.analyses.Load(),
		"sink_errors":      o.counters.sinkErrors.Load(),
		"queue_depth":      o.queue.Len(),
		"cancelled":        o.cancel.Load(),
		"frame":            o.stats.Snapshot(),
	}
}
