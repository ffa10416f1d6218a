package postprocess

import (
	"strconv"

	"github.com/ayusman/yolodesk/internal/detector"
)

// ClassCounts maps each class label to the number of detections in a frame.
type ClassCounts map[string]int

// NewClassCounts returns a map with every label present and set to zero.
func NewClassCounts(names []string) ClassCounts {
	counts := make(ClassCounts, len(names))
	for _, n := range names {
		counts[n] = 0
	}
	return counts
}

// Count builds the class counts for a frame's surviving candidates.
// Class ids without a label are left out.
func Count(names []string, cands []detector.Candidate) ClassCounts {
	counts := NewClassCounts(names)
	for _, c := range cands {
		if c.Class < 0 || c.Class >= len(names) {
			continue
		}
		counts[names[c.Class]]++
	}
	return counts
}

// Total returns the number of detections counted.
func (c ClassCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Clone returns an independent copy.
func (c ClassCounts) Clone() ClassCounts {
	out := make(ClassCounts, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Label returns the class name for id, or "class<id>" when out of range.
func Label(names []string, class int) string {
	if class >= 0 && class < len(names) {
		return names[class]
	}
	return "class" + strconv.Itoa(class)
}
