package watch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watch test")
	}

	dir := t.TempDir()
	weights := filepath.Join(dir, "best.onnx")
	other := filepath.Join(dir, "other.onnx")
	writeFile(t, weights, "v1")

	var calls atomic.Int32
	w, err := New(weights, 50*time.Millisecond, func(string) { calls.Add(1) }, zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		writeFile(t, weights, "v2")
	}
	writeFile(t, other, "ignored")

	waitFor(t, func() bool { return calls.Load() >= 1 })
	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("onChange called %d times, want 1", got)
	}
}

func TestWatcher_SetPath(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping filesystem watch test")
	}

	first := filepath.Join(t.TempDir(), "a.onnx")
	second := filepath.Join(t.TempDir(), "b.onnx")
	writeFile(t, first, "a")
	writeFile(t, second, "b")

	changed := make(chan string, 4)
	w, err := New(first, 20*time.Millisecond, func(p string) { changed <- p }, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	if err := w.SetPath(second); err != nil {
		t.Fatalf("SetPath() error = %v", err)
	}
	if w.Path() != second {
		t.Errorf("Path() = %q, want %q", w.Path(), second)
	}

	writeFile(t, second, "b2")
	select {
	case p := <-changed:
		if p != second {
			t.Errorf("onChange(%q), want %q", p, second)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported for new path")
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope", "best.onnx"), 0, func(string) {}, nil)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestWatcher_CloseTwice(t *testing.T) {
	w, err := New(filepath.Join(t.TempDir(), "best.onnx"), 0, func(string) {}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
