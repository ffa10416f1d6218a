// Package config provides run and application configuration for yolodesk.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when a configuration value is out of range.
var ErrInvalid = errors.New("invalid config")

// Default run settings
const (
	DefaultWeights       = "./pt/best.onnx"
	DefaultConf          = 0.25
	DefaultIoU           = 0.40
	DefaultImgSize       = 640
	DefaultProject       = "result"
	DefaultName          = "exp"
	DefaultMaxDet        = 300
	DefaultLineThickness = 2
	DefaultAddr          = ":8080"
)

// Run holds the per-run detection settings.
// Weights may be replaced while the run is active; everything else is fixed
// for the lifetime of the run.
type Run struct {
	Weights       string  `yaml:"weights" json:"weights"`
	Source        string  `yaml:"source" json:"source"`
	Conf          float64 `yaml:"conf" json:"conf"`
	IoU           float64 `yaml:"iou" json:"iou"`
	ImgSize       int     `yaml:"img_size" json:"img_size"`
	Device        string  `yaml:"device" json:"device"`
	Classes       []int   `yaml:"classes" json:"classes,omitempty"`
	AgnosticNMS   bool    `yaml:"agnostic_nms" json:"agnostic_nms"`
	Augment       bool    `yaml:"augment" json:"augment"`
	Save          bool    `yaml:"save" json:"save"`
	NoTrace       bool    `yaml:"no_trace" json:"no_trace"`
	Project       string  `yaml:"project" json:"project"`
	Name          string  `yaml:"name" json:"name"`
	ExistOK       bool    `yaml:"exist_ok" json:"exist_ok"`
	MaxDet        int     `yaml:"max_det" json:"max_det"`
	// Rect pads to the smallest stride multiple instead of a full square.
	// Only models exported with dynamic input shapes accept it.
	Rect          bool    `yaml:"rect" json:"rect"`
	LineThickness int     `yaml:"line_thickness" json:"line_thickness"`
}

// Server holds the HTTP panel settings.
type Server struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
	Tray      bool   `yaml:"tray"`
}

// Store holds the run history database settings.
type Store struct {
	Path string `yaml:"path"`
}

// Plugins holds the run hook settings.
type Plugins struct {
	Dir       string `yaml:"dir"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Log holds logger settings.
type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the complete application configuration.
type Config struct {
	Run         Run     `yaml:"run"`
	Server      Server  `yaml:"server"`
	Store       Store   `yaml:"store"`
	Plugins     Plugins `yaml:"plugins"`
	Log         Log     `yaml:"log"`
	WatchModels bool    `yaml:"watch_models"`
}

// DefaultRun returns a Run with the stock detection settings.
func DefaultRun() Run {
	return Run{
		Weights:       DefaultWeights,
		Conf:          DefaultConf,
		IoU:           DefaultIoU,
		ImgSize:       DefaultImgSize,
		Save:          true,
		Project:       DefaultProject,
		Name:          DefaultName,
		MaxDet:        DefaultMaxDet,
		LineThickness: DefaultLineThickness,
	}
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Run: DefaultRun(),
		Server: Server{
			Addr: DefaultAddr,
		},
		Plugins: Plugins{
			TimeoutMs: 5000,
		},
		Log: Log{
			Level: "info",
		},
		WatchModels: true,
	}
}

// Load reads a YAML config file on top of the defaults.
// Fields missing from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the run settings needed before a run can start.
func (r Run) Validate() error {
	if r.Weights == "" {
		return fmt.Errorf("%w: weights is required", ErrInvalid)
	}
	if r.Source == "" {
		return fmt.Errorf("%w: source is required", ErrInvalid)
	}
	if r.Conf < 0 || r.Conf > 1 {
		return fmt.Errorf("%w: conf %.3f not in [0, 1]", ErrInvalid, r.Conf)
	}
	if r.IoU < 0 || r.IoU > 1 {
		return fmt.Errorf("%w: iou %.3f not in [0, 1]", ErrInvalid, r.IoU)
	}
	if r.ImgSize <= 0 {
		return fmt.Errorf("%w: img_size must be positive, got %d", ErrInvalid, r.ImgSize)
	}
	for _, c := range r.Classes {
		if c < 0 {
			return fmt.Errorf("%w: negative class id %d", ErrInvalid, c)
		}
	}
	return nil
}

// IsCPU reports whether the device selector targets the CPU.
// An empty selector picks CUDA when available, which yolodesk cannot probe,
// so it is treated as CPU.
func (r Run) IsCPU() bool {
	return r.Device == "" || r.Device == "cpu"
}
