package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"depthrig-go/internal/output"
	"depthrig-go/internal/processing"
	"depthrig-go/internal/types"
)

// ReplaySource plays back a raw log written by output.RawLogWriter. It returns
// io.EOF once the log is exhausted.
type ReplaySource struct {
	path     string
	interval time.Duration
	opts     processing.Options
	logger   *zap.SugaredLogger
	reader   *output.RawLogReader
}

// NewReplaySource paces frames interval apart; zero replays as fast as possible.
func NewReplaySource(path string, interval time.Duration, opts processing.Options, logger *zap.SugaredLogger) *ReplaySource {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ReplaySource{path: path, interval: interval, opts: opts, logger: logger}
}

func (r *ReplaySource) Open(context.Context) error {
	reader, err := output.OpenRawLog(r.path)
	if err != nil {
		return err
	}
	r.reader = reader
	r.logger.Infow("replaying raw log", "path", r.path)
	return nil
}

func (r *ReplaySource) Acquire(ctx context.Context) (types.Frame, error) {
	if r.reader == nil {
		return types.Frame{}, errors.New("replay source not open")
	}
	if r.interval > 0 {
		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return types.Frame{}, ctx.Err()
		case <-timer.C:
		}
	}
	for {
		record, err := r.reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return types.Frame{}, io.EOF
			}
			return types.Frame{}, fmt.Errorf("read raw log: %w", err)
		}
		msg, err := DecodeMessage(record.Payload)
		if err != nil {
			return types.Frame{}, fmt.Errorf("%w: %v", types.ErrMissingBuffer, err)
		}
		if msg.Type != TypeFrame {
			continue
		}
		return processing.ProcessRawFrame(msg.Frame, r.opts)
	}
}

func (r *ReplaySource) Close() error {
	if r.reader == nil {
		return nil
	}
	err := r.reader.Close()
	r.reader = nil
	return err
}
