// Package capture provides frame sources for yolodesk using GoCV (OpenCV).
// A source yields decoded frames from an image, a directory, a video file
// or a live camera/network stream.
package capture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gocv.io/x/gocv"
)

var (
	// ErrSourceNotFound is returned when a file source path does not exist.
	ErrSourceNotFound = errors.New("source not found")
	// ErrNoFrames is returned when a source contains nothing decodable.
	ErrNoFrames = errors.New("no frames available")
)

// streamPrefixes are the URL schemes treated as live streams.
var streamPrefixes = []string{"rtsp://", "rtmp://", "http://", "https://"}

// FrameRecord is one unit of work pulled from a Source.
type FrameRecord struct {
	// Path identifies where the frame came from (file path or stream name).
	Path string
	// Frame is the decoded BGR display frame. The record owns it until Close.
	Frame gocv.Mat
	// Capture is set for video and stream frames and nil for still images.
	Capture Handle
	// Index increases monotonically from 1 for every frame a source yields.
	Index int
}

// Close releases the frame buffer.
func (r *FrameRecord) Close() error {
	return r.Frame.Close()
}

// Handle describes the capture device or file behind video frames.
type Handle interface {
	// FrameCount is the total number of frames, or 0 when unknown.
	FrameCount() int
	// FPS is the native frame rate, or 0 when unknown.
	FPS() float64
	Width() int
	Height() int
}

// Source produces frames until it is exhausted.
type Source interface {
	// Next returns the next frame. It returns io.EOF once the source is exhausted.
	// The caller must Close the returned record.
	Next() (*FrameRecord, error)

	// Progress reports how much of the source has been consumed, in [0, 1].
	// Unbounded sources report 0.
	Progress() float64

	// Close releases the active capture handle, if any.
	Close() error
}

// IsStream reports whether the source string names a live stream: a numeric
// device index or a URL with a streaming scheme.
func IsStream(source string) bool {
	if _, err := strconv.Atoi(source); err == nil {
		return true
	}
	lower := strings.ToLower(source)
	for _, prefix := range streamPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Opener opens a Source from a source string.
type Opener func(source string) (Source, error)

// Open resolves the source string and opens the matching Source.
func Open(source string) (Source, error) {
	if IsStream(source) {
		return OpenStream(source)
	}

	files, err := ListFiles(source)
	if err != nil {
		return nil, err
	}
	return NewFileSource(files), nil
}

// ListFiles expands a file, directory or glob pattern into the sorted list of
// supported image and video files.
func ListFiles(source string) ([]string, error) {
	var candidates []string

	switch {
	case strings.Contains(source, "*"):
		matches, err := filepath.Glob(source)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", source, err)
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && !info.IsDir() {
				candidates = append(candidates, m)
			}
		}

	default:
		info, err := os.Stat(source)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, source)
		}
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			candidates = []string{source}
			break
		}

		entries, err := os.ReadDir(source)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			candidates = append(candidates, filepath.Join(source, entry.Name()))
		}
	}

	files := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if IsImage(c) || IsVideo(c) {
			files = append(files, c)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no images or videos in %s", ErrNoFrames, source)
	}

	return files, nil
}

var (
	imageExts = map[string]bool{
		".bmp": true, ".jpg": true, ".jpeg": true, ".png": true,
		".tif": true, ".tiff": true, ".dng": true, ".webp": true, ".mpo": true,
	}
	videoExts = map[string]bool{
		".mov": true, ".avi": true, ".mp4": true, ".mpg": true,
		".mpeg": true, ".m4v": true, ".wmv": true, ".mkv": true,
	}
)

// IsImage reports whether the path has a supported still image extension.
func IsImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// IsVideo reports whether the path has a supported video extension.
func IsVideo(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}

// videoHandle implements Handle over a GoCV VideoCapture.
type videoHandle struct {
	capture    *gocv.VideoCapture
	frameCount int
	fps        float64
	width      int
	height     int
}

func newVideoHandle(capture *gocv.VideoCapture) *videoHandle {
	return &videoHandle{
		capture:    capture,
		frameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
		fps:        capture.Get(gocv.VideoCaptureFPS),
		width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
	}
}

func (h *videoHandle) FrameCount() int {
	if h.frameCount < 0 {
		return 0
	}
	return h.frameCount
}

func (h *videoHandle) FPS() float64 { return h.fps }
func (h *videoHandle) Width() int   { return h.width }
func (h *videoHandle) Height() int  { return h.height }

func (h *videoHandle) release() error {
	if h.capture == nil {
		return nil
	}
	err := h.capture.Close()
	h.capture = nil
	return err
}
