package capture

import (
	"io"
	"sync"

	"gocv.io/x/gocv"
)

// MockHandle is a fixed Handle used with MockSource.
type MockHandle struct {
	Frames int
	Rate   float64
	W, H   int
}

func (h *MockHandle) FrameCount() int { return h.Frames }
func (h *MockHandle) FPS() float64    { return h.Rate }
func (h *MockHandle) Width() int      { return h.W }
func (h *MockHandle) Height() int     { return h.H }

// MockSource plays back pre-built frames for testing
type MockSource struct {
	frames []*gocv.Mat
	path   string
	handle Handle
	index  int
	err    error
	errAt  int
	closed bool
	mu     sync.Mutex
}

// NewMockSource returns a source that yields clones of frames in order.
// A nil handle makes every frame look like a still image.
func NewMockSource(path string, frames []*gocv.Mat, handle Handle) *MockSource {
	return &MockSource{
		frames: frames,
		path:   path,
		handle: handle,
	}
}

// SetError makes Next fail with err when frame number n (1-based) is requested.
func (s *MockSource) SetError(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errAt = n
	s.err = err
}

func (s *MockSource) Next() (*FrameRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil && s.index+1 == s.errAt {
		return nil, s.err
	}

	if s.closed || s.index >= len(s.frames) {
		return nil, io.EOF
	}

	// Clone the frame so the original isn't modified
	frame := s.frames[s.index].Clone()
	s.index++

	return &FrameRecord{
		Path:    s.path,
		Frame:   frame,
		Capture: s.handle,
		Index:   s.index,
	}, nil
}

// Progress follows the capture frame count like a video file does, or reports
// completion after each frame when there is no handle.
func (s *MockSource) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		if len(s.frames) == 0 {
			return 0
		}
		return float64(s.index) / float64(len(s.frames))
	}

	total := s.handle.FrameCount()
	if total <= 0 {
		return 0
	}
	p := float64(s.index) / float64(total)
	if p > 1 {
		p = 1
	}
	return p
}

func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *MockSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Consumed returns how many frames have been handed out.
func (s *MockSource) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}
