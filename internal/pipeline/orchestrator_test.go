package pipeline

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest/observer"

	"depthrig-go/internal/config"
	"depthrig-go/internal/logging"
	"depthrig-go/internal/processing"
	"depthrig-go/internal/segmentation"
	"depthrig-go/internal/types"
)

type scriptSource struct {
	openErr error
	step    func(ctx context.Context, call int) (types.Frame, error)
	calls   atomic.Int64
	closed  atomic.Bool
}

func (s *scriptSource) Open(context.Context) error {
	return s.openErr
}

func (s *scriptSource) Acquire(ctx context.Context) (types.Frame, error) {
	n := int(s.calls.Inc()) - 1
	return s.step(ctx, n)
}

func (s *scriptSource) Close() error {
	s.closed.Store(true)
	return nil
}

type recordingDisplay struct {
	mu       sync.Mutex
	seqs     []int
	analyses int
}

func (d *recordingDisplay) Render(frame types.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seqs = append(d.seqs, frame.Seq)
}

func (d *recordingDisplay) RenderAnalysis(types.Frame, *segmentation.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.analyses++
}

func (d *recordingDisplay) rendered() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.seqs...)
}

type recordingSink struct {
	mu      sync.Mutex
	saved   []int
	results []*segmentation.Result
}

func (s *recordingSink) Save(frame types.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, frame.Seq)
	return nil
}

func (s *recordingSink) Analysis(_ types.Frame, result *segmentation.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func testConfig() config.PipelineConfig {
	cfg := config.ToFPipelineConfig()
	cfg.PixelMin = 100
	cfg.KernelSize = 3
	cfg.ErodeIterations = 1
	cfg.PollInterval = time.Millisecond
	cfg.StopTimeout = 2 * time.Second
	return cfg
}

func testFrame(seq int) types.Frame {
	norm := image.NewGray(image.Rect(0, 0, 40, 40))
	depth := types.NewFloat32Grid(40, 40)
	for y := 5; y < 35; y++ {
		for x := 5; x < 35; x++ {
			depth.Set(x, y, 1.5)
			if x >= 10 && x < 30 && y >= 10 && y < 30 {
				norm.Pix[norm.PixOffset(x, y)] = 75
			}
		}
	}
	return types.Frame{Seq: seq, Kind: types.KindSynthetic, RawDepth: depth, Normalized: norm}
}

func finiteSource(n int) *scriptSource {
	return &scriptSource{step: func(_ context.Context, call int) (types.Frame, error) {
		if call >= n {
			return types.Frame{}, io.EOF
		}
		return testFrame(call), nil
	}}
}

func endlessSource() *scriptSource {
	return &scriptSource{step: func(ctx context.Context, call int) (types.Frame, error) {
		select {
		case <-ctx.Done():
			return types.Frame{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
		return testFrame(call), nil
	}}
}

// assertEndedOnEndOfStream checks that the display worker exited on EndOfStream
// and not on a timeout.
func assertEndedOnEndOfStream(t *testing.T, logs *observer.ObservedLogs) {
	t.Helper()
	assert.Len(t, logs.FilterMessage("end of stream received").All(), 1)
	assert.Empty(t, logs.FilterMessage("end of stream not received before drain timeout").All())
	assert.Empty(t, logs.FilterMessage("abnormal shutdown, workers abandoned after timeout").All())
}

func waitDone(t *testing.T, o *Orchestrator) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("display worker did not finish")
	}
}

func TestFiniteSourceDeliversAllFramesInOrder(t *testing.T) {
	display := &recordingDisplay{}
	src := finiteSource(5)
	logger, logs := logging.NewObservedTestLogger(t)
	o := New(testConfig(), src, WithDisplay(display), WithLogger(logger))

	require.NoError(t, o.Start(context.Background()))
	waitDone(t, o)
	require.NoError(t, o.Stop())

	assert.Equal(t, []int{0, 1, 2, 3, 4}, display.rendered())
	assert.True(t, o.Cancelled())
	assert.Equal(t, 0, o.queue.Len())
	assert.True(t, src.closed.Load())
	assert.EqualValues(t, 5, o.Stats()["frames_displayed"])
	assertEndedOnEndOfStream(t, logs)
}

func TestTransientErrorsAreSkipped(t *testing.T) {
	display := &recordingDisplay{}
	src := &scriptSource{step: func(_ context.Context, call int) (types.Frame, error) {
		switch {
		case call == 1 || call == 3:
			return types.Frame{}, types.ErrMissingBuffer
		case call >= 6:
			return types.Frame{}, io.EOF
		default:
			return testFrame(call), nil
		}
	}}
	logger, logs := logging.NewObservedTestLogger(t)
	o := New(testConfig(), src, WithDisplay(display), WithLogger(logger))

	require.NoError(t, o.Start(context.Background()))
	waitDone(t, o)
	require.NoError(t, o.Stop())

	assert.Equal(t, []int{0, 2, 4, 5}, display.rendered())
	assert.EqualValues(t, 2, o.Stats()["frames_skipped"])
	assert.Len(t, logs.FilterMessage("frame skipped").All(), 2)
}

func TestStartFailsWhenSourceCannotOpen(t *testing.T) {
	src := &scriptSource{openErr: errors.New("no camera"), step: func(context.Context, int) (types.Frame, error) {
		t.Fatalf("acquire must not be called")
		return types.Frame{}, nil
	}}
	o := New(testConfig(), src)

	err := o.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no camera")
	assert.EqualValues(t, 0, src.calls.Load())
	o.Wait()
	require.NoError(t, o.Stop())
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Thresholds = []int{10}
	src := finiteSource(1)
	o := New(cfg, src)

	err := o.Start(context.Background())
	assert.ErrorIs(t, err, segmentation.ErrInvalidThresholds)
	assert.EqualValues(t, 0, src.calls.Load())
}

func TestQuitCommandEndsRun(t *testing.T) {
	display := &recordingDisplay{}
	src := endlessSource()
	logger, logs := logging.NewObservedTestLogger(t)
	o := New(testConfig(), src, WithDisplay(display), WithLogger(logger))

	require.NoError(t, o.Start(context.Background()))
	require.Eventually(t, func() bool { return len(display.rendered()) >= 3 }, 5*time.Second, time.Millisecond)
	o.Commands().Push(CommandQuit)

	waitDone(t, o)
	require.NoError(t, o.Stop())
	assert.True(t, o.Cancelled())
	assertEndedOnEndOfStream(t, logs)

	seqs := display.rendered()
	for i := 1; i < len(seqs); i++ {
		require.Equal(t, seqs[i-1]+1, seqs[i], "frames out of order")
	}
}

func TestSaveAndAnalyzeCommands(t *testing.T) {
	display := &recordingDisplay{}
	sink := &recordingSink{}
	o := New(testConfig(), endlessSource(),
		WithDisplay(display),
		WithSink(sink),
		WithPrimitives(segmentation.Native{}),
		WithLogger(logging.NewTestLogger(t)),
	)

	require.NoError(t, o.Start(context.Background()))
	require.Eventually(t, func() bool { return len(display.rendered()) >= 1 }, 5*time.Second, time.Millisecond)
	o.Commands().Push(CommandSave)
	o.Commands().Push(CommandAnalyze)
	require.Eventually(t, func() bool {
		display.mu.Lock()
		defer display.mu.Unlock()
		return display.analyses == 1
	}, 5*time.Second, time.Millisecond)
	o.Commands().Push(CommandQuit)
	waitDone(t, o)
	require.NoError(t, o.Stop())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.saved, 1)
	require.Len(t, sink.results, 1)
	records := sink.results[0].Records()
	require.Len(t, records, 1)
	assert.Equal(t, 1.5, records[0].Amplitude)
	assert.EqualValues(t, 1, o.Stats()["saves"])
}

func TestStopAbandonsStuckSource(t *testing.T) {
	release := make(chan struct{})

	entered := make(chan struct{})
	var once sync.Once
	src := &scriptSource{step: func(context.Context, int) (types.Frame, error) {
		once.Do(func() { close(entered) })
		<-release
		return types.Frame{}, io.EOF
	}}
	cfg := testConfig()
	cfg.StopTimeout = 50 * time.Millisecond
	cfg.DrainTimeout = 20 * time.Millisecond
	logger, logs := logging.NewObservedTestLogger(t)
	o := New(cfg, src, WithLogger(logger))

	require.NoError(t, o.Start(context.Background()))
	<-entered

	err := o.Stop()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForcedShutdown)
	assert.Contains(t, err.Error(), "capture")
	assert.NotContains(t, err.Error(), "display")
	assert.True(t, src.closed.Load())
	assert.Len(t, logs.FilterMessage("abnormal shutdown, workers abandoned after timeout").All(), 1)
	assert.Len(t, logs.FilterMessage("end of stream not received before drain timeout").All(), 1)
	assert.Equal(t, err, o.Stop())
}

func TestSharedCommandQueueAndAggregator(t *testing.T) {
	commands := NewCommandQueue(4)
	agg := processing.NewAggregator()
	o := New(testConfig(), finiteSource(50),
		WithCommands(commands),
		WithAggregator(agg),
		WithLogger(logging.NewTestLogger(t)),
	)
	require.Same(t, commands, o.Commands())

	require.NoError(t, o.Start(context.Background()))
	require.Eventually(t, func() bool { return agg.Snapshot()["frames"].(int) >= 1 }, 5*time.Second, time.Millisecond)
	commands.Push(CommandQuit)
	waitDone(t, o)
	require.NoError(t, o.Stop())

	snap := agg.Snapshot()
	assert.EqualValues(t, o.Stats()["frames_displayed"], snap["frames"])
	assert.Equal(t, processing.DepthStats{Min: 1.5, Max: 1.5, Mean: 1.5, Valid: 900}, snap["depth_stats"])
}

func TestStopDrainsToEndOfStream(t *testing.T) {
	display := &recordingDisplay{}
	logger, logs := logging.NewObservedTestLogger(t)
	o := New(testConfig(), endlessSource(), WithDisplay(display), WithLogger(logger))

	require.NoError(t, o.Start(context.Background()))
	require.Eventually(t, func() bool { return len(display.rendered()) >= 3 }, 5*time.Second, time.Millisecond)

	require.NoError(t, o.Stop())
	waitDone(t, o)
	assertEndedOnEndOfStream(t, logs)
	assert.Equal(t, 0, o.queue.Len())
}

func TestCommandsHandledBeforeFirstFrame(t *testing.T) {
	src := &scriptSource{step: func(ctx context.Context, _ int) (types.Frame, error) {
		select {
		case <-ctx.Done():
			return types.Frame{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
		return types.Frame{}, types.ErrMissingBuffer
	}}
	logger, logs := logging.NewObservedTestLogger(t)
	o := New(testConfig(), src, WithLogger(logger))
	o.Commands().Push(CommandSave)
	o.Commands().Push(CommandAnalyze)
	o.Commands().Push(CommandQuit)

	require.NoError(t, o.Start(context.Background()))
	waitDone(t, o)
	require.NoError(t, o.Stop())

	assert.True(t, o.Cancelled())
	assert.EqualValues(t, 0, o.Stats()["frames_displayed"])
	assert.Len(t, logs.FilterMessage("save ignored, no frame displayed yet").All(), 1)
	assert.Len(t, logs.FilterMessage("analyze ignored, no frame displayed yet").All(), 1)
	assertEndedOnEndOfStream(t, logs)
}
