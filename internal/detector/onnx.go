package detector

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// ONNXModel runs a YOLO ONNX export through the OpenCV DNN module.
type ONNXModel struct {
	net    gocv.Net
	names  []string
	stride int
	mu     sync.Mutex
}

// NewONNXModel loads weights for the given device. Devices starting with
// "cuda" (or a bare GPU index such as "0") select the CUDA backend; anything
// else runs on the CPU.
func NewONNXModel(weights, device string) (*ONNXModel, error) {
	if _, err := os.Stat(weights); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, weights, err)
	}

	net := gocv.ReadNetFromONNX(weights)
	if net.Empty() {
		return nil, fmt.Errorf("%w: %s: empty network", ErrModelLoad, weights)
	}

	backend, target := backendFor(device)
	if err := net.SetPreferableBackend(backend); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: set backend: %v", ErrModelLoad, err)
	}
	if err := net.SetPreferableTarget(target); err != nil {
		net.Close()
		return nil, fmt.Errorf("%w: set target: %v", ErrModelLoad, err)
	}

	names := COCONames()
	if path := FindLabels(weights); path != "" {
		labels, err := LoadLabels(path)
		if err != nil {
			net.Close()
			return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
		}
		if len(labels) > 0 {
			names = labels
		}
	}

	return &ONNXModel{
		net:    net,
		names:  names,
		stride: DefaultStride,
	}, nil
}

// LoadONNX is a Loader backed by NewONNXModel.
func LoadONNX(weights, device string) (Model, error) {
	m, err := NewONNXModel(weights, device)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func backendFor(device string) (gocv.NetBackendType, gocv.NetTargetType) {
	d := strings.ToLower(strings.TrimSpace(device))
	if d == "" || d == "cpu" {
		return gocv.NetBackendDefault, gocv.NetTargetCPU
	}
	return gocv.NetBackendCUDA, gocv.NetTargetCUDA
}

func (m *ONNXModel) Names() []string { return m.names }

func (m *ONNXModel) Stride() int { return m.stride }

// Infer runs a forward pass and decodes the first output.
func (m *ONNXModel) Infer(blob gocv.Mat) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()

	if out.Empty() {
		return nil, fmt.Errorf("forward pass returned no output")
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}

	return DecodeYOLO(data, out.Size()), nil
}

func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}
