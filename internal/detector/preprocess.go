package detector

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

// padColor is the gray used for letterbox borders.
var padColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Letterbox describes how a frame is scaled and padded to the model input.
type Letterbox struct {
	// Gain is the scale factor applied to the source frame.
	Gain float64
	// ResizeW and ResizeH are the scaled frame dimensions before padding.
	ResizeW, ResizeH int
	// Border widths added around the scaled frame.
	Top, Bottom, Left, Right int
}

// Width returns the padded output width.
func (l Letterbox) Width() int { return l.ResizeW + l.Left + l.Right }

// Height returns the padded output height.
func (l Letterbox) Height() int { return l.ResizeH + l.Top + l.Bottom }

// ComputeLetterbox works out the scale and padding that fit a srcW x srcH
// frame into a size x size square while keeping its aspect ratio.
// With auto set, padding is reduced to the minimum that keeps both sides a
// multiple of stride, so the output is rectangular.
func ComputeLetterbox(srcW, srcH, size, stride int, auto bool) Letterbox {
	gain := math.Min(float64(size)/float64(srcH), float64(size)/float64(srcW))

	resizeW := int(math.Round(float64(srcW) * gain))
	resizeH := int(math.Round(float64(srcH) * gain))

	dw := size - resizeW
	dh := size - resizeH
	if auto && stride > 0 {
		dw %= stride
		dh %= stride
	}

	return Letterbox{
		Gain:    gain,
		ResizeW: resizeW,
		ResizeH: resizeH,
		Top:     dh / 2,
		Bottom:  dh - dh/2,
		Left:    dw / 2,
		Right:   dw - dw/2,
	}
}

// Preprocessor turns display frames into model input blobs.
// It keeps scratch Mats between calls, so it is not safe for concurrent use.
type Preprocessor struct {
	resized gocv.Mat
	boxed   gocv.Mat
}

// NewPreprocessor returns a Preprocessor with its scratch buffers allocated.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		resized: gocv.NewMat(),
		boxed:   gocv.NewMat(),
	}
}

// Close frees the scratch buffers.
func (p *Preprocessor) Close() error {
	p.resized.Close()
	return p.boxed.Close()
}

// Prepare letterboxes frame to size and converts it to a 1x3xHxW float blob
// in RGB order with values in [0, 1]. The caller must close the blob.
func (p *Preprocessor) Prepare(frame gocv.Mat, size, stride int, auto bool) (gocv.Mat, Letterbox) {
	lb := ComputeLetterbox(frame.Cols(), frame.Rows(), size, stride, auto)

	src := frame
	if lb.ResizeW != frame.Cols() || lb.ResizeH != frame.Rows() {
		gocv.Resize(frame, &p.resized, image.Pt(lb.ResizeW, lb.ResizeH), 0, 0, gocv.InterpolationLinear)
		src = p.resized
	}

	gocv.CopyMakeBorder(src, &p.boxed, lb.Top, lb.Bottom, lb.Left, lb.Right,
		gocv.BorderConstant, padColor)

	blob := gocv.BlobFromImage(p.boxed, 1.0/255.0, image.Pt(lb.Width(), lb.Height()),
		gocv.NewScalar(0, 0, 0, 0), true, false)

	return blob, lb
}

// ZeroBlob returns a 1x3xSxS blob filled with zeros, used to warm up a device.
func ZeroBlob(size int) gocv.Mat {
	return gocv.NewMatWithSizesWithScalar([]int{1, 3, size, size}, gocv.MatTypeCV32F,
		gocv.NewScalar(0, 0, 0, 0))
}

// BlobShape returns the (batch, height, width) of an NCHW blob.
func BlobShape(blob gocv.Mat) (batch, height, width int) {
	dims := blob.Size()
	if len(dims) != 4 {
		return 0, 0, 0
	}
	return dims[0], dims[2], dims[3]
}

// Warmup runs n throwaway inferences on blob to prime the compute device.
func Warmup(m Model, blob gocv.Mat, n int) error {
	for i := 0; i < n; i++ {
		if _, err := m.Infer(blob); err != nil {
			return err
		}
	}
	return nil
}
