package store

import (
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ayusman/yolodesk/internal/router"
	"github.com/ayusman/yolodesk/internal/worker"
)

// recorderQueue bounds the number of frame results waiting to be written.
const recorderQueue = 256

// Recorder is a router listener that writes per-frame results of one run in
// the background. Results that arrive while the queue is full are dropped so
// the worker never waits on the database.
type Recorder struct {
	runs    *RunRepository
	results *ResultRepository
	runID   string
	logger  *zap.SugaredLogger

	queue   chan *FrameResult
	frames  atomic.Int64
	dropped atomic.Int64
	wg      sync.WaitGroup

	mu      sync.Mutex
	status  RunStatus
	message string
	closed  bool
}

// NewRecorder starts a recorder for runID. The run row must already exist.
func NewRecorder(s *Store, runID string, logger *zap.SugaredLogger) *Recorder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	r := &Recorder{
		runs:    s.Runs(),
		results: s.Results(),
		runID:   runID,
		logger:  logger,
		queue:   make(chan *FrameResult, recorderQueue),
		status:  RunStatusRunning,
	}

	r.wg.Add(1)
	go r.drain()

	return r
}

// OnEvent implements router.Listener.
func (r *Recorder) OnEvent(ev router.Event) {
	switch ev.Kind {
	case router.Result:
		n := r.frames.Add(1)
		fr := &FrameResult{
			RunID:      r.runID,
			FrameIndex: int(n),
			Path:       ev.Path,
			Counts:     map[string]int(ev.Counts.Clone()),
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		select {
		case r.queue <- fr:
		default:
			r.dropped.Add(1)
		}

	case router.Status:
		status, ok := StatusFromMessage(ev.Message)
		if !ok {
			return
		}
		r.mu.Lock()
		r.status = status
		r.message = ev.Message
		r.mu.Unlock()
	}
}

// StatusFromMessage maps a terminal worker status message to a RunStatus.
func StatusFromMessage(msg string) (RunStatus, bool) {
	switch {
	case msg == worker.StatusFinished:
		return RunStatusFinished, true
	case msg == worker.StatusStop:
		return RunStatusStopped, true
	case strings.HasPrefix(msg, worker.StatusErrPrefix):
		return RunStatusFailed, true
	default:
		return "", false
	}
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for fr := range r.queue {
		if err := r.results.Append(fr); err != nil {
			r.logger.Warnw("failed to store frame result", "run", r.runID, "frame", fr.FrameIndex, "error", err)
		}
	}
}

// Dropped returns how many results were discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close flushes queued results and writes the final run state. A run that
// never reported a terminal status is marked failed.
func (r *Recorder) Close(outputDir string) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	status, message := r.status, r.message
	r.mu.Unlock()

	r.wg.Wait()

	if status == RunStatusRunning {
		status = RunStatusFailed
		message = "run ended without a final status"
	}

	if n := r.dropped.Load(); n > 0 {
		r.logger.Warnw("frame results dropped", "run", r.runID, "dropped", n)
	}

	return r.runs.Finish(r.runID, status, message, int(r.frames.Load()), outputDir)
}
