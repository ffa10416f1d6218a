package app

import (
	"sync"

	"github.com/ayusman/yolodesk/internal/router"
	"github.com/ayusman/yolodesk/internal/worker"
)

// liveState keeps the latest published values of the current run.
type liveState struct {
	mu       sync.Mutex
	message  string
	progress int
	fps      int
	totals   map[string]int
}

type liveSnapshot struct {
	message  string
	progress int
	fps      int
	totals   map[string]int
}

func newLiveState() *liveState {
	return &liveState{totals: make(map[string]int)}
}

func (l *liveState) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.message = ""
	l.progress = 0
	l.fps = 0
	l.totals = make(map[string]int)
}

// OnEvent implements router.Listener.
func (l *liveState) OnEvent(ev router.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch ev.Kind {
	case router.Status:
		l.message = ev.Message
	case router.Progress:
		l.progress = ev.Progress
	case router.FPS:
		if fps, ok := worker.ParseFPS(ev.Message); ok {
			l.fps = fps
		}
	case router.Result:
		for name, n := range ev.Counts {
			l.totals[name] += n
		}
	}
}

func (l *liveState) snapshot() liveSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	totals := make(map[string]int, len(l.totals))
	for k, v := range l.totals {
		totals[k] = v
	}
	return liveSnapshot{
		message:  l.message,
		progress: l.progress,
		fps:      l.fps,
		totals:   totals,
	}
}
