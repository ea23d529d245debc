package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/maruel/interrupt"
	"github.com/urfave/cli/v2"

	"depthrig-go/internal/ingest"
	"depthrig-go/internal/logging"
	"depthrig-go/internal/simulator"
	"depthrig-go/internal/types"
)

func publishAction(c *cli.Context) error {
	logger := logging.NewLogger("publish", c.Bool(flagDebug))
	defer func() { _ = logger.Sync() }()

	simCfg := simulator.DefaultConfig()
	simCfg.Rate = c.Float64(flagSimRate)
	simCfg.Width = c.Int(flagSimWidth)
	simCfg.Height = c.Int(flagSimHeight)
	simCfg.Frames = c.Int(flagFrames)
	simCfg.MaxDistance = c.Float64(flagMaxDistance)
	src := simulator.New(simCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := src.Open(ctx); err != nil {
		return err
	}
	defer src.Close()

	endpoint := c.String(flagEndpoint)
	pub, err := ingest.NewPublisher(endpoint, simCfg.MaxDistance)
	if err != nil {
		logger.Errorw("publisher failed to start", "endpoint", endpoint, "error", err)
		return err
	}
	defer pub.Close()
	logger.Infow("publishing", "endpoint", endpoint, "rate", simCfg.Rate)

	if err := pub.SendMeta(ingest.TypeStart, map[string]any{
		"width":  simCfg.Width,
		"height": simCfg.Height,
		"kind":   string(types.KindSynthetic),
	}); err != nil {
		return err
	}

	interrupt.HandleCtrlC()
	go func() {
		<-interrupt.Channel
		cancel()
	}()

	sent := 0
	for !interrupt.IsSet() {
		frame, err := src.Acquire(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			break
		}
		if err != nil {
			logger.Warnw("frame skipped", "error", err)
			continue
		}
		if err := pub.Send(frame); err != nil {
			logger.Warnw("send failed", "seq", frame.Seq, "error", err)
			continue
		}
		sent++
		if sent%100 == 0 {
			logger.Infow("published", "frames", sent)
		}
	}

	// Give connected receivers a moment to drain before the socket closes.
	_ = pub.SendMeta(ingest.TypeEnd, map[string]any{"frames": sent})
	time.Sleep(100 * time.Millisecond)
	logger.Infow("publisher stopped", "frames", sent)
	return nil
}
