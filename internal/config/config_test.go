package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Run.Conf != DefaultConf {
		t.Errorf("Conf = %v, want %v", cfg.Run.Conf, DefaultConf)
	}
	if cfg.Run.IoU != DefaultIoU {
		t.Errorf("IoU = %v, want %v", cfg.Run.IoU, DefaultIoU)
	}
	if cfg.Run.ImgSize != DefaultImgSize {
		t.Errorf("ImgSize = %d, want %d", cfg.Run.ImgSize, DefaultImgSize)
	}
	if cfg.Run.IoU != 0.40 {
		t.Errorf("IoU = %v, want 0.40", cfg.Run.IoU)
	}
	if !cfg.Run.Save {
		t.Error("Save should default to true")
	}
	// static ONNX exports only take the full square input
	if cfg.Run.Rect {
		t.Error("Rect should default to false")
	}
	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "yolodesk.yaml")

	content := `
run:
  weights: models/yolov5s.onnx
  source: videos/street.mp4
  conf: 0.4
  classes: [0, 2]
server:
  addr: ":9090"
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Run.Weights != "models/yolov5s.onnx" {
		t.Errorf("Weights = %q", cfg.Run.Weights)
	}
	if cfg.Run.Conf != 0.4 {
		t.Errorf("Conf = %v, want 0.4", cfg.Run.Conf)
	}
	if len(cfg.Run.Classes) != 2 || cfg.Run.Classes[1] != 2 {
		t.Errorf("Classes = %v, want [0 2]", cfg.Run.Classes)
	}
	// Untouched fields keep defaults
	if cfg.Run.IoU != DefaultIoU {
		t.Errorf("IoU = %v, want default %v", cfg.Run.IoU, DefaultIoU)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("run: [not, a, map"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected error for malformed yaml")
	}
}

func TestRun_Validate(t *testing.T) {
	valid := DefaultRun()
	valid.Source = "bus.jpg"

	tests := []struct {
		name    string
		mutate  func(r *Run)
		wantErr bool
	}{
		{name: "valid", mutate: func(r *Run) {}},
		{name: "missing weights", mutate: func(r *Run) { r.Weights = "" }, wantErr: true},
		{name: "missing source", mutate: func(r *Run) { r.Source = "" }, wantErr: true},
		{name: "conf above 1", mutate: func(r *Run) { r.Conf = 1.5 }, wantErr: true},
		{name: "negative iou", mutate: func(r *Run) { r.IoU = -0.1 }, wantErr: true},
		{name: "zero img size", mutate: func(r *Run) { r.ImgSize = 0 }, wantErr: true},
		{name: "negative class", mutate: func(r *Run) { r.Classes = []int{1, -1} }, wantErr: true},
		{name: "boundary thresholds", mutate: func(r *Run) { r.Conf = 0; r.IoU = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("Validate() error = %v, want ErrInvalid", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestRun_IsCPU(t *testing.T) {
	tests := []struct {
		device string
		want   bool
	}{
		{"", true},
		{"cpu", true},
		{"cuda", false},
		{"cuda:0", false},
	}
	for _, tt := range tests {
		r := Run{Device: tt.device}
		if got := r.IsCPU(); got != tt.want {
			t.Errorf("IsCPU(%q) = %v, want %v", tt.device, got, tt.want)
		}
	}
}
