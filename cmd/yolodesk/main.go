// Command yolodesk runs YOLO object detection on images, videos, folders,
// cameras and network streams, headless or behind a small web panel.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig        = "config"
	flagWeights       = "weights"
	flagSource        = "source"
	flagConf          = "conf"
	flagIoU           = "iou"
	flagImgSize       = "img-size"
	flagDevice        = "device"
	flagClasses       = "classes"
	flagAgnosticNMS   = "agnostic-nms"
	flagAugment       = "augment"
	flagNoSave        = "nosave"
	flagNoTrace       = "no-trace"
	flagProject       = "project"
	flagName          = "name"
	flagExistOK       = "exist-ok"
	flagMaxDet        = "max-det"
	flagLineThickness = "line-thickness"
	flagRect          = "rect"
	flagLogLevel      = "log-level"
	flagLogJSON       = "log-json"
	flagDB            = "db"
	flagPlugins       = "plugins"
	flagNoWatch       = "no-watch"
	flagAddr          = "addr"
	flagStatic        = "static"
	flagTray          = "tray"
	flagLimit         = "limit"
)

var commonFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    flagConfig,
		Aliases: []string{"c"},
		Usage:   "YAML config file",
		EnvVars: []string{"YOLODESK_CONFIG"},
	},
	&cli.StringFlag{
		Name:  flagLogLevel,
		Usage: "log level (debug, info, warn, error)",
	},
	&cli.BoolFlag{
		Name:  flagLogJSON,
		Usage: "log as JSON",
	},
	&cli.StringFlag{
		Name:  flagDB,
		Usage: "run history database (default ~/.yolodesk/yolodesk.db)",
	},
	&cli.StringFlag{
		Name:  flagPlugins,
		Usage: "run hook plugin directory",
	},
}

var runFlags = []cli.Flag{
	&cli.StringFlag{Name: flagWeights, Aliases: []string{"w"}, Usage: "ONNX weights path"},
	&cli.StringFlag{Name: flagSource, Aliases: []string{"s"}, Usage: "file, directory, glob, camera index or stream URL"},
	&cli.Float64Flag{Name: flagConf, Usage: "object confidence threshold"},
	&cli.Float64Flag{Name: flagIoU, Usage: "IoU threshold for NMS"},
	&cli.IntFlag{Name: flagImgSize, Usage: "inference size in pixels"},
	&cli.StringFlag{Name: flagDevice, Usage: "cpu, cuda or cuda:N"},
	&cli.IntSliceFlag{Name: flagClasses, Usage: "keep only these class ids"},
	&cli.BoolFlag{Name: flagAgnosticNMS, Usage: "class-agnostic NMS"},
	&cli.BoolFlag{Name: flagAugment, Usage: "augmented inference"},
	&cli.BoolFlag{Name: flagNoSave, Usage: "do not save annotated images or videos"},
	&cli.BoolFlag{Name: flagNoTrace, Usage: "do not trace the model"},
	&cli.StringFlag{Name: flagProject, Usage: "save results to project/name"},
	&cli.StringFlag{Name: flagName, Usage: "save results to project/name"},
	&cli.BoolFlag{Name: flagExistOK, Usage: "reuse an existing project/name"},
	&cli.IntFlag{Name: flagMaxDet, Usage: "maximum detections per frame"},
	&cli.IntFlag{Name: flagLineThickness, Usage: "bounding box thickness in pixels"},
	&cli.BoolFlag{Name: flagRect, Usage: "minimal letterbox padding (models exported with dynamic shapes only)"},
	&cli.BoolFlag{Name: flagNoWatch, Usage: "do not reload the model when the weights file changes"},
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "yolodesk",
		Usage: "YOLO object detection worker",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run detection once and exit",
				UsageText: "yolodesk run --weights best.onnx --source clip.mp4",
				Flags:     append(append([]cli.Flag{}, commonFlags...), runFlags...),
				Action:    runAction,
			},
			{
				Name:  "serve",
				Usage: "serve the control panel, optionally with a tray icon",
				Flags: append(append(append([]cli.Flag{}, commonFlags...), runFlags...),
					&cli.StringFlag{Name: flagAddr, Usage: "listen address"},
					&cli.StringFlag{Name: flagStatic, Usage: "static panel directory"},
					&cli.BoolFlag{Name: flagTray, Usage: "show a system tray icon"},
				),
				Action: serveAction,
			},
			{
				Name:  "runs",
				Usage: "print the run history",
				Flags: append(append([]cli.Flag{}, commonFlags...),
					&cli.IntFlag{Name: flagLimit, Value: 20, Usage: "number of runs to show"},
				),
				Action: runsAction,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
