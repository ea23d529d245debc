package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/urfave/cli/v2"

	"depthrig-go/internal/logging"
	"depthrig-go/internal/output"
)

func dumpAction(c *cli.Context) error {
	logger := logging.NewLogger("dump", c.Bool(flagDebug))
	defer func() { _ = logger.Sync() }()

	reader, err := output.OpenRawLog(c.String(flagPath))
	if err != nil {
		return err
	}
	defer reader.Close()

	limit := c.Int(flagLimit)
	for count := 0; limit <= 0 || count < limit; count++ {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			logger.Warnw("raw log ends in a truncated record", "record", count)
			return nil
		}
		if err != nil {
			return err
		}
		if len(record.Payload) == 0 {
			logger.Infow("empty payload", "record", count)
			continue
		}

		var decoded any
		if err := cbor.Unmarshal(record.Payload, &decoded); err != nil {
			logger.Warnw("CBOR decode error", "record", count, "error", err)
			continue
		}
		pretty, err := json.MarshalIndent(output.NormalizeJSONValue(decoded), "", "  ")
		if err != nil {
			logger.Warnw("JSON encode error", "record", count, "error", err)
			continue
		}
		logger.Infow("record", "index", count,
			"timestamp", record.Timestamp.Format(time.RFC3339Nano), "size", len(record.Payload))
		fmt.Fprintln(c.App.Writer, string(pretty))
	}
	return nil
}
