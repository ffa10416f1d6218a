package capture

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func TestIsStream(t *testing.T) {
	tests := []struct {
		source string
		want   bool
	}{
		{"0", true},
		{"12", true},
		{"rtsp://192.168.1.10:554/live", true},
		{"RTMP://example.com/app/key", true},
		{"http://cam.local/mjpeg", true},
		{"https://cam.local/stream.m3u8", true},
		{"bus.jpg", false},
		{"./videos/street.mp4", false},
		{"/data/images", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := IsStream(tt.source); got != tt.want {
				t.Errorf("IsStream(%q) = %v, want %v", tt.source, got, tt.want)
			}
		})
	}
}

func TestStreamName(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"0", "stream0"},
		{"rtsp://192.168.1.10:554/live.sdp", "live"},
		{"http://cam.local/", "stream_cam_local"},
	}

	for _, tt := range tests {
		if got := StreamName(tt.source); got != tt.want {
			t.Errorf("StreamName(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"b.jpg", "a.png", "clip.mp4", "notes.txt", "c.JPG"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.jpg"), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}

	t.Run("directory", func(t *testing.T) {
		files, err := ListFiles(dir)
		if err != nil {
			t.Fatalf("ListFiles() error = %v", err)
		}

		want := []string{"a.png", "b.jpg", "c.JPG", "clip.mp4"}
		if len(files) != len(want) {
			t.Fatalf("ListFiles() = %v, want %d files", files, len(want))
		}
		for i, name := range want {
			if filepath.Base(files[i]) != name {
				t.Errorf("files[%d] = %s, want %s", i, filepath.Base(files[i]), name)
			}
		}
	})

	t.Run("single file", func(t *testing.T) {
		files, err := ListFiles(filepath.Join(dir, "b.jpg"))
		if err != nil {
			t.Fatalf("ListFiles() error = %v", err)
		}
		if len(files) != 1 {
			t.Errorf("expected 1 file, got %d", len(files))
		}
	})

	t.Run("glob", func(t *testing.T) {
		files, err := ListFiles(filepath.Join(dir, "*.jpg"))
		if err != nil {
			t.Fatalf("ListFiles() error = %v", err)
		}
		if len(files) != 1 || filepath.Base(files[0]) != "b.jpg" {
			t.Errorf("ListFiles(glob) = %v, want [b.jpg]", files)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := ListFiles(filepath.Join(dir, "missing.jpg"))
		if !errors.Is(err, ErrSourceNotFound) {
			t.Errorf("error = %v, want ErrSourceNotFound", err)
		}
	})

	t.Run("unsupported file", func(t *testing.T) {
		_, err := ListFiles(filepath.Join(dir, "notes.txt"))
		if !errors.Is(err, ErrNoFrames) {
			t.Errorf("error = %v, want ErrNoFrames", err)
		}
	})
}

func TestFileSource_Images(t *testing.T) {
	dir := t.TempDir()

	img := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()

	var files []string
	for _, name := range []string{"one.png", "two.png", "three.png"} {
		path := filepath.Join(dir, name)
		if ok := gocv.IMWrite(path, img); !ok {
			t.Fatalf("failed to write %s", path)
		}
		files = append(files, path)
	}

	src := NewFileSource(files)
	defer src.Close()

	if got := src.Progress(); got != 0 {
		t.Errorf("initial Progress() = %v, want 0", got)
	}

	for i := 1; i <= len(files); i++ {
		rec, err := src.Next()
		if err != nil {
			t.Fatalf("Next() frame %d error = %v", i, err)
		}
		if rec.Index != i {
			t.Errorf("Index = %d, want %d", rec.Index, i)
		}
		if rec.Capture != nil {
			t.Error("still image should have no capture handle")
		}
		if rec.Frame.Cols() != 64 || rec.Frame.Rows() != 48 {
			t.Errorf("frame size = %dx%d, want 64x48", rec.Frame.Cols(), rec.Frame.Rows())
		}
		rec.Close()

		want := float64(i) / float64(len(files))
		if got := src.Progress(); got != want {
			t.Errorf("Progress() after %d = %v, want %v", i, got, want)
		}
	}

	if _, err := src.Next(); err != io.EOF {
		t.Errorf("Next() after last frame error = %v, want io.EOF", err)
	}
}

// writeClip encodes n blank frames as an MJPG .avi, the codec OpenCV builds
// ship with most reliably.
func writeClip(t *testing.T, path string, n int) {
	t.Helper()

	w, err := gocv.VideoWriterFile(path, "MJPG", 10, 64, 48, true)
	if err != nil {
		t.Skipf("skipping test - video writer not available: %v", err)
	}
	defer w.Close()
	if !w.IsOpened() {
		t.Skip("skipping test - MJPG encoder not available")
	}

	frame := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()
	for i := 0; i < n; i++ {
		if err := w.Write(frame); err != nil {
			t.Fatalf("failed to write frame %d: %v", i, err)
		}
	}
}

func TestFileSource_VideoProgress(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping video encode test in short mode")
	}

	dir := t.TempDir()

	img := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer img.Close()
	still := filepath.Join(dir, "a.png")
	if ok := gocv.IMWrite(still, img); !ok {
		t.Fatalf("failed to write %s", still)
	}

	const frames = 5
	clip := filepath.Join(dir, "b.avi")
	writeClip(t, clip, frames)

	files, err := ListFiles(dir)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	src := NewFileSource(files)
	defer src.Close()

	var progress []float64
	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if filepath.Base(rec.Path) == "b.avi" && rec.Capture == nil {
			t.Error("video frames should carry a capture handle")
		}
		rec.Close()
		progress = append(progress, src.Progress())
	}

	if len(progress) != 1+frames {
		t.Fatalf("read %d frames, want %d", len(progress), 1+frames)
	}
	if progress[0] != 0.5 {
		t.Errorf("progress after the image = %v, want 0.5", progress[0])
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("progress went backwards: %v", progress)
			break
		}
	}
	// the clip advances the second half in fractions
	if mid := progress[2]; mid <= 0.5 || mid >= 1 {
		t.Errorf("progress mid-video = %v, want between 0.5 and 1", mid)
	}
	if last := progress[len(progress)-1]; math.Abs(last-1) > 1e-9 {
		t.Errorf("final progress = %v, want 1", last)
	}
	if got := src.Progress(); math.Abs(got-1) > 1e-9 {
		t.Errorf("Progress() after EOF = %v, want 1", got)
	}
}

func TestFileSource_UndecodableImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	src := NewFileSource([]string{path})
	defer src.Close()

	if _, err := src.Next(); !errors.Is(err, ErrNoFrames) {
		t.Errorf("Next() error = %v, want ErrNoFrames", err)
	}
}

func TestOpen_Stream_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	src, err := Open("0")
	if err != nil {
		t.Skipf("skipping test - camera not available: %v", err)
	}
	defer src.Close()

	rec, err := src.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	defer rec.Close()

	if rec.Capture == nil {
		t.Error("stream frames should carry a capture handle")
	}
	if src.Progress() != 0 {
		t.Error("stream progress should stay at 0")
	}
}
