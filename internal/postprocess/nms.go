// Package postprocess filters raw detector candidates and maps them back to
// display coordinates.
package postprocess

import (
	"sort"

	"github.com/ayusman/yolodesk/internal/detector"
)

// DefaultMaxDet caps the number of detections kept per frame.
const DefaultMaxDet = 300

// maxWH offsets boxes per class so class-aware suppression can be done in a
// single pass.
const maxWH = 7680

// Options controls NonMaxSuppression.
type Options struct {
	// Conf is the minimum confidence a candidate must reach.
	Conf float32
	// IoU is the overlap above which the weaker box is suppressed.
	IoU float32
	// Classes keeps only these class ids when non-empty.
	Classes []int
	// Agnostic suppresses overlapping boxes regardless of class.
	Agnostic bool
	// MaxDet caps the result. Zero means DefaultMaxDet.
	MaxDet int
}

// NonMaxSuppression drops candidates under the confidence threshold or
// outside the class filter, then greedily keeps the highest scoring boxes
// and suppresses any later box overlapping a kept one by more than IoU.
// The result is sorted by confidence, highest first.
func NonMaxSuppression(cands []detector.Candidate, opts Options) []detector.Candidate {
	maxDet := opts.MaxDet
	if maxDet <= 0 {
		maxDet = DefaultMaxDet
	}

	var allowed map[int]bool
	if len(opts.Classes) > 0 {
		allowed = make(map[int]bool, len(opts.Classes))
		for _, c := range opts.Classes {
			allowed[c] = true
		}
	}

	filtered := make([]detector.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Confidence < opts.Conf {
			continue
		}
		if allowed != nil && !allowed[c.Class] {
			continue
		}
		if c.Box.Width() <= 0 || c.Box.Height() <= 0 {
			continue
		}
		filtered = append(filtered, c)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Confidence > filtered[j].Confidence
	})

	suppressed := make([]bool, len(filtered))
	kept := make([]detector.Candidate, 0, min(len(filtered), maxDet))

	for i := range filtered {
		if suppressed[i] {
			continue
		}
		kept = append(kept, filtered[i])
		if len(kept) == maxDet {
			break
		}

		a := offsetBox(filtered[i], opts.Agnostic)
		for j := i + 1; j < len(filtered); j++ {
			if suppressed[j] {
				continue
			}
			if IoU(a, offsetBox(filtered[j], opts.Agnostic)) > opts.IoU {
				suppressed[j] = true
			}
		}
	}

	return kept
}

// offsetBox shifts a box by its class so boxes of different classes never
// overlap unless suppression is class-agnostic.
func offsetBox(c detector.Candidate, agnostic bool) detector.Box {
	if agnostic {
		return c.Box
	}
	off := float32(c.Class) * maxWH
	return detector.Box{
		X1: c.Box.X1 + off,
		Y1: c.Box.Y1 + off,
		X2: c.Box.X2 + off,
		Y2: c.Box.Y2 + off,
	}
}

// IoU returns the intersection over union of two boxes.
func IoU(a, b detector.Box) float32 {
	iw := min(a.X2, b.X2) - max(a.X1, b.X1)
	ih := min(a.Y2, b.Y2) - max(a.Y1, b.Y1)
	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := iw * ih
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
