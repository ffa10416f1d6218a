package capture

import (
	"fmt"
	"io"

	"gocv.io/x/gocv"
)

// FileSource yields frames from a list of image and video files in order.
// Still images produce one frame each; videos are decoded frame by frame.
type FileSource struct {
	files []string
	item  int
	count int

	video    *videoHandle
	videoPos int
}

// NewFileSource creates a FileSource over the given files.
func NewFileSource(files []string) *FileSource {
	return &FileSource{files: files}
}

// Next returns the next frame, opening videos lazily as they come up.
func (s *FileSource) Next() (*FrameRecord, error) {
	for {
		if s.video != nil {
			mat := gocv.NewMat()
			if ok := s.video.capture.Read(&mat); ok && !mat.Empty() {
				s.videoPos++
				s.count++
				return &FrameRecord{
					Path:    s.files[s.item],
					Frame:   mat,
					Capture: s.video,
					Index:   s.count,
				}, nil
			}
			mat.Close()

			// Video exhausted, move on to the next file
			if err := s.closeVideo(); err != nil {
				return nil, err
			}
			s.item++
			continue
		}

		if s.item >= len(s.files) {
			return nil, io.EOF
		}

		path := s.files[s.item]

		if IsVideo(path) {
			capture, err := gocv.VideoCaptureFile(path)
			if err != nil {
				return nil, fmt.Errorf("open video %s: %w", path, err)
			}
			s.video = newVideoHandle(capture)
			s.videoPos = 0
			continue
		}

		mat := gocv.IMRead(path, gocv.IMReadColor)
		if mat.Empty() {
			mat.Close()
			return nil, fmt.Errorf("%w: cannot decode image %s", ErrNoFrames, path)
		}

		s.item++
		s.count++
		return &FrameRecord{
			Path:  path,
			Frame: mat,
			Index: s.count,
		}, nil
	}
}

// Progress reports finished files plus the fraction of the current video.
func (s *FileSource) Progress() float64 {
	if len(s.files) == 0 {
		return 0
	}

	done := float64(s.item)
	if s.video != nil {
		if total := s.video.FrameCount(); total > 0 {
			frac := float64(s.videoPos) / float64(total)
			if frac > 1 {
				frac = 1
			}
			done += frac
		}
	}

	p := done / float64(len(s.files))
	if p > 1 {
		p = 1
	}
	return p
}

// Close releases the open video, if any.
func (s *FileSource) Close() error {
	return s.closeVideo()
}

// Len returns the number of files in the source.
func (s *FileSource) Len() int {
	return len(s.files)
}

func (s *FileSource) closeVideo() error {
	if s.video == nil {
		return nil
	}
	err := s.video.release()
	s.video = nil
	s.videoPos = 0
	return err
}
