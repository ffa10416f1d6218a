package capture

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"

	"gocv.io/x/gocv"
)

// StreamSource yields frames from a camera device or a network stream.
// It is unbounded: Next only returns io.EOF when the stream ends.
type StreamSource struct {
	name   string
	handle *videoHandle
	count  int
}

// OpenStream opens a numeric camera index or a stream URL.
func OpenStream(source string) (*StreamSource, error) {
	var device interface{} = source
	if id, err := strconv.Atoi(source); err == nil {
		device = id
	}

	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open stream %s: %w", source, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open stream %s: capture not opened", source)
	}

	return &StreamSource{
		name:   StreamName(source),
		handle: newVideoHandle(capture),
	}, nil
}

// Next reads the next frame from the stream.
func (s *StreamSource) Next() (*FrameRecord, error) {
	if s.handle == nil || s.handle.capture == nil {
		return nil, io.EOF
	}

	mat := gocv.NewMat()
	if ok := s.handle.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, io.EOF
	}

	s.count++
	return &FrameRecord{
		Path:    s.name,
		Frame:   mat,
		Capture: s.handle,
		Index:   s.count,
	}, nil
}

// Progress is always 0 for live streams.
func (s *StreamSource) Progress() float64 {
	return 0
}

// Close releases the capture device.
func (s *StreamSource) Close() error {
	if s.handle == nil {
		return nil
	}
	return s.handle.release()
}

// StreamName derives a file-friendly name for a stream source.
// Device indexes become "stream<N>"; URLs use their last path element.
func StreamName(source string) string {
	if _, err := strconv.Atoi(source); err == nil {
		return "stream" + source
	}

	u, err := url.Parse(source)
	if err != nil {
		return "stream"
	}

	base := path.Base(u.Path)
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		if u.Hostname() != "" {
			return "stream_" + strings.ReplaceAll(u.Hostname(), ".", "_")
		}
		return "stream"
	}
	return base
}
