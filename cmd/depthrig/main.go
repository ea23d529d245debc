// Command depthrig runs the depth segmentation pipeline and its offline tools.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

const (
	flagDebug          = "debug"
	flagSource         = "source"
	flagPreset         = "preset"
	flagPipelineConfig = "pipeline-config"
	flagPort           = "port"
	flagEndpoint       = "endpoint"
	flagReplay         = "replay"
	flagReceiveTimeout = "receive-timeout"
	flagSimRate        = "sim-rate"
	flagSimWidth       = "sim-width"
	flagSimHeight      = "sim-height"
	flagSimDropEvery   = "sim-drop-every"
	flagFrames         = "frames"
	flagMaxDistance    = "max-distance"
	flagFocalLength    = "focal-length"
	flagBaseline       = "baseline"
	flagOutputDir      = "output-dir"
	flagRawLog         = "raw-log"
	flagRawLogDir      = "raw-log-dir"
	flagStore          = "store"
	flagIngestLogEvery = "ingest-log-every"
	flagPath           = "path"
	flagLimit          = "limit"
	flagCalibDir       = "calib-dir"
	flagLeft           = "left"
	flagRight          = "right"
	flagRun            = "run"
)

var debugFlag = &cli.BoolFlag{
	Name:  flagDebug,
	Usage: "enable debug logging",
}

var app = &cli.App{
	Name:            "depthrig",
	Usage:           "segment depth maps from a stereo/ToF rig by depth band",
	HideHelpCommand: true,
	Flags:           []cli.Flag{debugFlag},
	Commands: []*cli.Command{
		{
			Name:   "run",
			Usage:  "run the capture and display pipeline",
			Action: runAction,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  flagSource,
					Value: "sim",
					Usage: "frame source: sim, ingest or replay",
				},
				&cli.StringFlag{
					Name:  flagPreset,
					Value: "tof",
					Usage: "segmentation preset: tof or stereo",
				},
				&cli.StringFlag{
					Name:  flagPipelineConfig,
					Usage: "overlay the preset with the JSON `FILE`",
				},
				&cli.IntFlag{
					Name:  flagPort,
					Value: 8888,
					Usage: "HTTP port of the live display, 0 disables it",
				},
				&cli.StringFlag{
					Name:  flagEndpoint,
					Value: "tcp://localhost:31001",
					Usage: "ZMQ endpoint of the rig host",
				},
				&cli.StringFlag{
					Name:  flagReplay,
					Usage: "raw log `FILE` to replay",
				},
				&cli.DurationFlag{
					Name:  flagReceiveTimeout,
					Value: time.Second,
					Usage: "ZMQ receive timeout; a timeout counts as a missing buffer",
				},
				&cli.Float64Flag{
					Name:  flagSimRate,
					Value: 15,
					Usage: "simulated frames per second, also the replay pace",
				},
				&cli.IntFlag{Name: flagSimWidth, Value: 160, Usage: "simulated frame width"},
				&cli.IntFlag{Name: flagSimHeight, Value: 120, Usage: "simulated frame height"},
				&cli.IntFlag{
					Name:  flagSimDropEvery,
					Usage: "make every Nth simulated acquisition fail",
				},
				&cli.Float64Flag{Name: flagMaxDistance, Value: 4, Usage: "ToF range in metres"},
				&cli.Float64Flag{Name: flagFocalLength, Value: 1300, Usage: "stereo focal length in pixels"},
				&cli.Float64Flag{Name: flagBaseline, Value: 0.06, Usage: "stereo baseline in metres"},
				&cli.StringFlag{
					Name:  flagOutputDir,
					Value: "output",
					Usage: "directory for saved frames and analyses",
				},
				&cli.BoolFlag{Name: flagRawLog, Usage: "record received CBOR messages"},
				&cli.StringFlag{Name: flagRawLogDir, Value: "rawlog", Usage: "directory for raw logs"},
				&cli.StringFlag{
					Name:  flagStore,
					Usage: "sqlite `FILE` for the analysis history",
				},
				&cli.IntFlag{
					Name:  flagIngestLogEvery,
					Value: 100,
					Usage: "log every Nth ingest error",
				},
			},
		},
		{
			Name:   "publish",
			Usage:  "publish simulated frames over ZMQ, standing in for the rig host",
			Action: publishAction,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: flagEndpoint, Value: "tcp://*:31001", Usage: "ZMQ bind endpoint"},
				&cli.Float64Flag{Name: flagSimRate, Value: 15, Usage: "frames per second"},
				&cli.IntFlag{Name: flagSimWidth, Value: 160, Usage: "frame width"},
				&cli.IntFlag{Name: flagSimHeight, Value: 120, Usage: "frame height"},
				&cli.IntFlag{Name: flagFrames, Usage: "stop after N frames, 0 runs until interrupted"},
				&cli.Float64Flag{Name: flagMaxDistance, Value: 4, Usage: "ToF range in metres"},
			},
		},
		{
			Name:      "analyze",
			Usage:     "segment saved frame files offline",
			ArgsUsage: "frame.cbor...",
			Action:    analyzeAction,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: flagPreset, Value: "tof", Usage: "segmentation preset: tof or stereo"},
				&cli.StringFlag{Name: flagPipelineConfig, Usage: "overlay the preset with the JSON `FILE`"},
				&cli.StringFlag{Name: flagOutputDir, Value: "output", Usage: "directory for analysis artifacts"},
				&cli.StringFlag{Name: flagStore, Usage: "sqlite `FILE` for the analysis history"},
			},
		},
		{
			Name:   "history",
			Usage:  "list stored analyses",
			Action: historyAction,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: flagStore, Required: true, Usage: "sqlite `FILE`"},
				&cli.StringFlag{Name: flagRun, Usage: "only list this run id"},
			},
		},
		{
			Name:   "calib",
			Usage:  "inspect calibration artifacts and rectify an image pair",
			Action: calibAction,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: flagCalibDir, Required: true, Usage: "calibration `DIR`"},
				&cli.StringFlag{Name: flagLeft, Usage: "left image to rectify"},
				&cli.StringFlag{Name: flagRight, Usage: "right image to rectify"},
				&cli.StringFlag{Name: flagOutputDir, Value: "output", Usage: "directory for rectified images"},
			},
		},
		{
			Name:   "dump",
			Usage:  "print raw log records as JSON",
			Action: dumpAction,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: flagPath, Required: true, Usage: "raw log `FILE`"},
				&cli.IntFlag{Name: flagLimit, Value: 1, Usage: "records to print, 0 for all"},
			},
		},
		{
			Name:   "decode",
			Usage:  "summarize CBOR message files",
			Action: decodeAction,
			Flags: []cli.Flag{
				&cli.StringFlag{Name: flagPath, Required: true, Usage: "CBOR file or directory"},
				&cli.IntFlag{Name: flagLimit, Value: 5, Usage: "frame messages to describe"},
			},
		},
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "depthrig:", err)
		os.Exit(1)
	}
}
