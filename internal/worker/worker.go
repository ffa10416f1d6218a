// Package worker runs the detection loop for a single run: it pulls frames
// from a source, runs the model, draws the results and publishes everything
// through a router. Control calls from other goroutines are picked up at the
// top of each loop iteration.
package worker

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/yolodesk/internal/capture"
	"github.com/ayusman/yolodesk/internal/config"
	"github.com/ayusman/yolodesk/internal/detector"
	"github.com/ayusman/yolodesk/internal/persist"
	"github.com/ayusman/yolodesk/internal/render"
	"github.com/ayusman/yolodesk/internal/router"
)

// Status messages published on the router.
const (
	StatusDetecting = "Detecting"
	StatusPause     = "Pause"
	StatusStop      = "Stop"
	StatusFinished  = "Finished"
	StatusErrPrefix = "Error: "
)

const (
	// ProgressMax is the progress value of a fully consumed source.
	ProgressMax = 1000
	// fpsWindow is how many frames are averaged per FPS report.
	fpsWindow = 30
	// reprimeRuns is how many warm-up passes follow an input shape change.
	reprimeRuns = 3
)

// ErrorStatus formats err as a status message.
func ErrorStatus(err error) string {
	return StatusErrPrefix + err.Error()
}

const fpsPrefix = "fps："

// FPSMessage formats a throughput report.
func FPSMessage(fps int) string {
	return fmt.Sprintf("%s%d", fpsPrefix, fps)
}

// ParseFPS reads the value back out of an FPSMessage.
func ParseFPS(msg string) (int, bool) {
	rest, ok := strings.CutPrefix(msg, fpsPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// State is a step of the run lifecycle.
type State int32

const (
	Initializing State = iota
	Running
	Paused
	Reloading
	Stopping
	Finishing
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Reloading:
		return "reloading"
	case Stopping:
		return "stopping"
	case Finishing:
		return "finishing"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Options configures a Worker.
type Options struct {
	// Run holds the run settings. It is validated by New.
	Run config.Run
	// Router receives every publication. Required.
	Router *router.Router
	// Loader loads models. Defaults to detector.LoadONNX.
	Loader detector.Loader
	// Opener opens the frame source. Defaults to capture.Open.
	Opener capture.Opener
	// WriterOpener creates video writers. Defaults to persist.OpenVideoFile.
	WriterOpener persist.WriterOpener
	// Logger defaults to a no-op logger.
	Logger *zap.SugaredLogger
	// Now is the clock used for FPS reports. Defaults to time.Now.
	Now func() time.Time
}

// reloadCmd asks the loop to swap the model.
type reloadCmd struct {
	weights string
	force   bool
}

// Worker owns one run. Control methods are safe to call from any goroutine;
// everything else belongs to the goroutine calling Run.
type Worker struct {
	cfg    config.Run
	router *router.Router
	load   detector.Loader
	open   capture.Opener
	writer persist.WriterOpener
	logger *zap.SugaredLogger
	now    func() time.Time

	state  atomic.Int32
	frames atomic.Int64

	// control flags, guarded by mu
	mu      sync.Mutex
	paused  bool
	stopped bool
	reload  *reloadCmd
	weights string
	runDir  string
	wake    chan struct{}

	// loop-owned resources
	src     capture.Source
	model   detector.Model
	names   []string
	palette render.Palette
	imgSize int
	pre     *detector.Preprocessor
	saver   *persist.Saver
	prev    [3]int
	fpsMark time.Time
	ran     bool
}

// New validates the run settings and returns a Worker ready to Run.
func New(opts Options) (*Worker, error) {
	if err := opts.Run.Validate(); err != nil {
		return nil, err
	}
	if opts.Router == nil {
		return nil, fmt.Errorf("%w: router is required", config.ErrInvalid)
	}

	w := &Worker{
		cfg:     opts.Run,
		router:  opts.Router,
		load:    opts.Loader,
		open:    opts.Opener,
		writer:  opts.WriterOpener,
		logger:  opts.Logger,
		now:     opts.Now,
		weights: opts.Run.Weights,
		wake:    make(chan struct{}, 1),
	}

	if w.load == nil {
		w.load = detector.LoadONNX
	}
	if w.open == nil {
		w.open = capture.Open
	}
	if w.logger == nil {
		w.logger = zap.NewNop().Sugar()
	}
	if w.now == nil {
		w.now = time.Now
	}

	return w, nil
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Frames returns how many frames have been pulled from the source.
func (w *Worker) Frames() int {
	return int(w.frames.Load())
}

// Weights returns the weights of the active model.
func (w *Worker) Weights() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.weights
}

// RunDir returns the output directory, or "" when saving is off or the run
// has not started.
func (w *Worker) RunDir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runDir
}

// IsPaused reports whether a pause is in effect.
func (w *Worker) IsPaused() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paused
}

// Pause stops frame processing until Resume.
func (w *Worker) Pause() {
	w.mu.Lock()
	w.paused = true
	w.mu.Unlock()
	w.signal()
}

// Resume continues after Pause.
func (w *Worker) Resume() {
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
	w.signal()
}

// Stop ends the run at the next checkpoint. It wins over Pause.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.signal()
}

// ChangeModel switches to other weights at the next checkpoint. Asking for
// the weights already loaded is a no-op.
func (w *Worker) ChangeModel(weights string) {
	w.mu.Lock()
	force := w.reload != nil && w.reload.force
	w.reload = &reloadCmd{weights: weights, force: force}
	w.mu.Unlock()
	w.signal()
}

// ReloadModel reloads the active weights at the next checkpoint, even if the
// path is unchanged. Used when the weights file is rewritten in place.
func (w *Worker) ReloadModel() {
	w.mu.Lock()
	if w.reload != nil {
		w.reload.force = true
	} else {
		w.reload = &reloadCmd{force: true}
	}
	w.mu.Unlock()
	w.signal()
}

// signal wakes a paused loop. It never blocks.
func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) stopRequested() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

func (w *Worker) takeReload() (reloadCmd, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reload == nil {
		return reloadCmd{}, false
	}
	cmd := *w.reload
	w.reload = nil
	return cmd, true
}
