package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/urfave/cli/v2"

	"depthrig-go/internal/ingest"
	"depthrig-go/internal/logging"
)

const tagMultiDimArray = 40

func decodeAction(c *cli.Context) error {
	logger := logging.NewLogger("decode", c.Bool(flagDebug))
	defer func() { _ = logger.Sync() }()

	files, err := listFiles(c.String(flagPath))
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}

	limit := c.Int(flagLimit)
	var frames, starts, ends int
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			logger.Warnw("read failed", "path", file, "error", err)
			continue
		}
		var payload map[string]any
		if err := cbor.Unmarshal(data, &payload); err != nil {
			logger.Warnw("decode failed", "path", file, "error", err)
			continue
		}

		msgType, _ := payload["type"].(string)
		switch msgType {
		case ingest.TypeStart:
			starts++
			fmt.Fprintf(c.App.Writer, "start: %s\n", file)
		case ingest.TypeEnd:
			ends++
		case ingest.TypeFrame:
			frames++
			if frames > limit {
				continue
			}
			fmt.Fprintf(c.App.Writer, "frame: %s\n", file)
			fmt.Fprintf(c.App.Writer, "  seq: %v kind: %v\n", payload["seq"], payload["kind"])
			if dataMap, ok := payload["data"].(map[any]any); ok {
				keys := make([]string, 0, len(dataMap))
				for k := range dataMap {
					keys = append(keys, fmt.Sprint(k))
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(c.App.Writer, "  %s: %s\n", k, describeData(dataMap[k]))
				}
			}
		default:
			logger.Warnw("unknown message type", "path", file, "type", msgType)
		}
	}

	fmt.Fprintf(c.App.Writer, "summary: start=%d frame=%d end=%d\n", starts, frames, ends)
	return nil
}

func describeData(value any) string {
	tag, ok := value.(cbor.Tag)
	if !ok {
		return fmt.Sprintf("type %T", value)
	}
	if tag.Number != tagMultiDimArray {
		return fmt.Sprintf("tag %d", tag.Number)
	}
	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return "invalid multidim"
	}
	dims, ok := items[0].([]any)
	if !ok || len(dims) != 2 {
		return "invalid dims"
	}
	dataTag, _ := items[1].(cbor.Tag)
	return fmt.Sprintf("dims %v tag %d", dims, dataTag.Number)
}

func listFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == ".cbor" {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
