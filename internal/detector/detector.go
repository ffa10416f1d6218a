// Package detector defines the object detector contract used by the worker
// and a GoCV DNN implementation for YOLO models exported to ONNX.
package detector

import (
	"errors"
	"math"

	"gocv.io/x/gocv"
)

// ErrModelLoad is returned when a weights file cannot be turned into a model.
var ErrModelLoad = errors.New("model load failed")

// DefaultStride is the largest stride of the stock YOLO heads.
const DefaultStride = 32

// Box is an axis-aligned box in pixel coordinates (x1, y1, x2, y2).
type Box struct {
	X1, Y1, X2, Y2 float32
}

// Width returns the box width.
func (b Box) Width() float32 { return b.X2 - b.X1 }

// Height returns the box height.
func (b Box) Height() float32 { return b.Y2 - b.Y1 }

// Area returns the box area, or 0 for degenerate boxes.
func (b Box) Area() float32 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Candidate is a single detection before or after suppression.
type Candidate struct {
	// Box is in detector-input coordinates until rescaled.
	Box Box
	// Confidence is objectness times class probability.
	Confidence float32
	// Class is the index into the model's label list.
	Class int
}

// Model is a loaded detector.
type Model interface {
	// Names returns the class labels, indexed by class id.
	Names() []string

	// Stride returns the largest stride of the model.
	Stride() int

	// Infer runs the model on an NCHW float blob with values in [0, 1] and
	// returns the raw candidates in blob coordinates.
	Infer(blob gocv.Mat) ([]Candidate, error)

	// Close releases any resources held by the model.
	Close() error
}

// Loader loads a model from a weights reference for the given device.
type Loader func(weights, device string) (Model, error)

// MakeDivisible rounds x up to the nearest multiple of divisor.
func MakeDivisible(x, divisor int) int {
	if divisor <= 0 {
		return x
	}
	return int(math.Ceil(float64(x)/float64(divisor))) * divisor
}

// CheckImgSize returns the image size adjusted to a multiple of stride.
func CheckImgSize(size, stride int) int {
	return MakeDivisible(size, stride)
}
