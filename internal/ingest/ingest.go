// Package ingest receives depth frames from a remote rig over ZeroMQ and replays
// recorded streams.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pebbe/zmq4"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"depthrig-go/internal/processing"
	"depthrig-go/internal/types"
)

// RawRecorder stores every received payload before it is decoded.
type RawRecorder interface {
	Record(payload []byte) error
}

type SourceConfig struct {
	Endpoint       string
	ReceiveTimeout time.Duration
	LogEvery       int
	Options        processing.Options
	Recorder       RawRecorder
}

// Source is a FrameSource reading CBOR frame messages from a ZMQ PULL socket.
// Receive timeouts and undecodable messages count as missing buffers.
type Source struct {
	cfg    SourceConfig
	logger *zap.SugaredLogger

	mu     sync.Mutex
	socket *zmq4.Socket

	received       atomic.Int64
	decodeFailures atomic.Int64
	logCounter     atomic.Int64
}

func NewSource(cfg SourceConfig, logger *zap.SugaredLogger) *Source {
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = time.Second
	}
	if cfg.LogEvery < 1 {
		cfg.LogEvery = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Source{cfg: cfg, logger: logger}
}

func (s *Source) Open(context.Context) error {
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return fmt.Errorf("zmq socket: %w", err)
	}
	if err := socket.SetRcvtimeo(s.cfg.ReceiveTimeout); err != nil {
		_ = socket.Close()
		return fmt.Errorf("zmq receive timeout: %w", err)
	}
	if err := socket.Connect(s.cfg.Endpoint); err != nil {
		_ = socket.Close()
		return fmt.Errorf("zmq connect %s: %w", s.cfg.Endpoint, err)
	}
	s.mu.Lock()
	s.socket = socket
	s.mu.Unlock()
	s.logger.Infow("ingest connected", "endpoint", s.cfg.Endpoint)
	return nil
}

func (s *Source) Acquire(ctx context.Context) (types.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return types.Frame{}, err
		}
		s.mu.Lock()
		socket := s.socket
		s.mu.Unlock()
		if socket == nil {
			return types.Frame{}, errors.New("ingest socket closed")
		}

		payload, err := socket.RecvBytes(0)
		if err != nil {
			return types.Frame{}, fmt.Errorf("%w: receive: %v", types.ErrMissingBuffer, err)
		}
		s.received.Inc()
		if s.cfg.Recorder != nil {
			if err := s.cfg.Recorder.Record(payload); err != nil {
				s.logEveryN("raw log write failed", "error", err)
			}
		}

		msg, err := DecodeMessage(payload)
		if err != nil {
			s.decodeFailures.Inc()
			return types.Frame{}, fmt.Errorf("%w: %v", types.ErrMissingBuffer, err)
		}
		if msg.Type != TypeFrame {
			s.logger.Infow("stream metadata", "type", msg.Type, "meta", msg.Meta)
			continue
		}
		return processing.ProcessRawFrame(msg.Frame, s.cfg.Options)
	}
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.socket == nil {
		return nil
	}
	err := s.socket.Close()
	s.socket = nil
	return err
}

// Stats reports receive and decode counters.
func (s *Source) Stats() map[string]any {
	return map[string]any{
		"ingest_received_total":        s.received.Load(),
		"ingest_decode_failures_total": s.decodeFailures.Load(),
	}
}

func (s *Source) logEveryN(msg string, keysAndValues ...any) {
	if s.logCounter.Inc()%int64(s.cfg.LogEvery) == 0 {
		s.logger.Warnw(msg, keysAndValues...)
	}
}
