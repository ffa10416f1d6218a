package capture

import (
	"errors"
	"io"
	"testing"

	"gocv.io/x/gocv"
)

func TestMockSource_Playback(t *testing.T) {
	// Create test frames
	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	handle := &MockHandle{Frames: 2, Rate: 30, W: 640, H: 480}
	src := NewMockSource("clip.mp4", []*gocv.Mat{&frame1, &frame2}, handle)

	r1, err := src.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	r1.Close()

	if got := src.Progress(); got != 0.5 {
		t.Errorf("Progress() = %v, want 0.5", got)
	}

	r2, err := src.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if r2.Index != 2 || r2.Capture == nil {
		t.Errorf("unexpected record: index=%d capture=%v", r2.Index, r2.Capture)
	}
	r2.Close()

	// Third read should report exhaustion
	if _, err := src.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after all frames consumed, got %v", err)
	}
}

func TestMockSource_Error(t *testing.T) {
	frame := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer frame.Close()

	src := NewMockSource("a.jpg", []*gocv.Mat{&frame, &frame}, nil)
	src.SetError(2, errors.New("decode failed"))

	r, err := src.Next()
	if err != nil {
		t.Fatalf("first Next() error = %v", err)
	}
	r.Close()

	if _, err := src.Next(); err == nil {
		t.Error("expected injected error on second frame")
	}
}

func TestMockSource_Close(t *testing.T) {
	frame := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer frame.Close()

	src := NewMockSource("a.jpg", []*gocv.Mat{&frame}, nil)
	src.Close()

	if !src.Closed() {
		t.Error("Closed() should be true after Close()")
	}
	if _, err := src.Next(); err != io.EOF {
		t.Errorf("Next() after Close() = %v, want io.EOF", err)
	}
}
