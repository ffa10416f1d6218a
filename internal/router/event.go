// Package router fans worker output out to listeners and mailboxes.
//
// Listeners run synchronously on the publishing goroutine and must not block.
// Mailboxes keep one slot per event kind; a newer event of the same kind
// replaces an unconsumed older one.
package router

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/yolodesk/internal/postprocess"
)

// Kind identifies an output channel.
type Kind int

const (
	// Input carries the raw display frame.
	Input Kind = iota
	// Output carries the annotated frame.
	Output
	// Result carries the per-class counts of a frame.
	Result
	// Status carries a human-readable status message.
	Status
	// Progress carries progress in [0, 1000].
	Progress
	// FPS carries an "fps：N" message.
	FPS

	numKinds
)

// Kinds lists every event kind.
var Kinds = []Kind{Input, Output, Result, Status, Progress, FPS}

func (k Kind) String() string {
	switch k {
	case Input:
		return "input"
	case Output:
		return "output"
	case Result:
		return "result"
	case Status:
		return "status"
	case Progress:
		return "progress"
	case FPS:
		return "fps"
	default:
		return "unknown"
	}
}

// IsFrame reports whether events of this kind carry a frame.
func (k Kind) IsFrame() bool {
	return k == Input || k == Output
}

// Event is a single publication.
type Event struct {
	Kind Kind
	// Seq is assigned by the router and increases across all kinds.
	Seq  uint64
	Time time.Time

	// Frame is set for Input and Output. Listeners borrow it for the duration
	// of the call; events taken from a Mailbox own a clone and must be closed.
	Frame *gocv.Mat
	// Path is the source path of the frame being processed.
	Path  string

	Counts   postprocess.ClassCounts
	Message  string
	Progress int
}

// Close releases the frame owned by the event, if any.
func (e *Event) Close() error {
	if e.Frame == nil {
		return nil
	}
	err := e.Frame.Close()
	e.Frame = nil
	return err
}

// clone returns a copy that owns its own frame and counts.
func (e Event) clone() Event {
	out := e
	if e.Frame != nil {
		f := e.Frame.Clone()
		out.Frame = &f
	}
	if e.Counts != nil {
		out.Counts = e.Counts.Clone()
	}
	return out
}
