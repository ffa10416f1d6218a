package persist

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// DefaultFPS is used when a capture does not report its frame rate.
const DefaultFPS = 25

// VideoCodec is the FourCC of the container written for videos and streams.
const VideoCodec = "mp4v"

// ErrWriteFailed is returned when OpenCV refuses to encode a frame.
var ErrWriteFailed = errors.New("write failed")

// VideoWriter is the subset of gocv.VideoWriter used by Saver.
type VideoWriter interface {
	Write(img gocv.Mat) error
	Close() error
}

// WriterOpener creates a video writer at path.
type WriterOpener func(path string, fps float64, width, height int) (VideoWriter, error)

// OpenVideoFile opens an mp4v writer with GoCV.
func OpenVideoFile(path string, fps float64, width, height int) (VideoWriter, error) {
	w, err := gocv.VideoWriterFile(path, VideoCodec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open video writer %s: %w", path, err)
	}
	if !w.IsOpened() {
		w.Close()
		return nil, fmt.Errorf("failed to open video writer %s", path)
	}
	return w, nil
}

// Saver writes annotated frames into a run directory. It keeps at most one
// video writer open and is owned by a single goroutine.
type Saver struct {
	dir    string
	open   WriterOpener
	logger *zap.SugaredLogger

	writer    VideoWriter
	videoPath string
}

// NewSaver returns a Saver writing into dir. A nil opener uses OpenVideoFile.
func NewSaver(dir string, open WriterOpener, logger *zap.SugaredLogger) *Saver {
	if open == nil {
		open = OpenVideoFile
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Saver{dir: dir, open: open, logger: logger}
}

// Dir returns the run directory.
func (s *Saver) Dir() string { return s.dir }

// ImagePath returns where an annotated still from source is written.
func (s *Saver) ImagePath(source string) string {
	return filepath.Join(s.dir, filepath.Base(source))
}

// VideoPath returns where the annotated video for source is written.
func (s *Saver) VideoPath(source string) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(s.dir, stem+".mp4")
}

// SaveImage writes frame to path.
func (s *Saver) SaveImage(path string, frame gocv.Mat) error {
	if ok := gocv.IMWrite(path, frame); !ok {
		return fmt.Errorf("%w: %s", ErrWriteFailed, path)
	}
	s.logger.Infow("saved result image", "path", path)
	return nil
}

// AppendVideo writes frame to the video at path. When path differs from the
// video being written, the current writer is closed and a new one is opened
// with the given rate and size. A non-positive fps falls back to DefaultFPS
// and a zero size falls back to the frame size.
func (s *Saver) AppendVideo(path string, frame gocv.Mat, fps float64, width, height int) error {
	if s.writer == nil || path != s.videoPath {
		if err := s.closeWriter(); err != nil {
			return err
		}

		if fps <= 0 {
			fps = DefaultFPS
		}
		if width <= 0 || height <= 0 {
			width, height = frame.Cols(), frame.Rows()
		}

		w, err := s.open(path, fps, width, height)
		if err != nil {
			return err
		}
		s.writer = w
		s.videoPath = path
		s.logger.Infow("writing result video", "path", path, "fps", fps, "width", width, "height", height)
	}

	if err := s.writer.Write(frame); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, path, err)
	}
	return nil
}

// VideoOpen reports whether a video writer is currently open.
func (s *Saver) VideoOpen() bool { return s.writer != nil }

// Close releases the video writer, if any.
func (s *Saver) Close() error {
	return s.closeWriter()
}

func (s *Saver) closeWriter() error {
	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	s.videoPath = ""
	if err != nil {
		return fmt.Errorf("failed to close video writer: %w", err)
	}
	return nil
}
