package postprocess

import (
	"math"

	"github.com/ayusman/yolodesk/internal/detector"
)

// ScaleBox maps a box from a letterboxed inputW x inputH blob back onto a
// displayW x displayH frame. The gain and padding are recomputed from the
// two shapes, the result is clipped to the frame and rounded to whole pixels.
func ScaleBox(b detector.Box, inputW, inputH, displayW, displayH int) detector.Box {
	gain := math.Min(float64(inputH)/float64(displayH), float64(inputW)/float64(displayW))
	padX := (float64(inputW) - float64(displayW)*gain) / 2
	padY := (float64(inputH) - float64(displayH)*gain) / 2

	x := func(v float32) float32 {
		return clipRound((float64(v)-padX)/gain, displayW)
	}
	y := func(v float32) float32 {
		return clipRound((float64(v)-padY)/gain, displayH)
	}

	return detector.Box{X1: x(b.X1), Y1: y(b.Y1), X2: x(b.X2), Y2: y(b.Y2)}
}

// ScaleCandidates rescales every candidate box in place.
func ScaleCandidates(cands []detector.Candidate, inputW, inputH, displayW, displayH int) {
	for i := range cands {
		cands[i].Box = ScaleBox(cands[i].Box, inputW, inputH, displayW, displayH)
	}
}

func clipRound(v float64, limit int) float32 {
	v = math.Max(0, math.Min(v, float64(limit)))
	return float32(math.Round(v))
}
