// Package app runs detection jobs one at a time and connects each run to the
// run history, the weights watcher and the run hooks.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayusman/yolodesk/internal/capture"
	"github.com/ayusman/yolodesk/internal/config"
	"github.com/ayusman/yolodesk/internal/detector"
	"github.com/ayusman/yolodesk/internal/metrics"
	"github.com/ayusman/yolodesk/internal/persist"
	"github.com/ayusman/yolodesk/internal/plugin"
	"github.com/ayusman/yolodesk/internal/router"
	"github.com/ayusman/yolodesk/internal/store"
	"github.com/ayusman/yolodesk/internal/watch"
	"github.com/ayusman/yolodesk/internal/worker"
)

var (
	// ErrRunActive is returned by Start while another run is in progress.
	ErrRunActive = errors.New("a run is already active")
	// ErrNoRun is returned by control calls when nothing is running.
	ErrNoRun = errors.New("no active run")
)

// Config holds configuration options for the application.
type Config struct {
	Settings config.Config
	// Store records run history when set.
	Store *store.Store
	// Hooks run after each run when set.
	Hooks *plugin.Hooks

	Loader       detector.Loader
	Opener       capture.Opener
	WriterOpener persist.WriterOpener
	Logger       *zap.SugaredLogger
}

// RunRequest overrides the configured run settings for a single run. Zero
// values keep the configured setting.
type RunRequest struct {
	Source  string   `json:"source,omitempty"`
	Weights string   `json:"weights,omitempty"`
	Conf    *float64 `json:"conf,omitempty"`
	IoU     *float64 `json:"iou,omitempty"`
}

// Status is a snapshot of the current or last run.
type Status struct {
	Active    bool           `json:"active"`
	RunID     string         `json:"run_id,omitempty"`
	Source    string         `json:"source,omitempty"`
	Weights   string         `json:"weights,omitempty"`
	State     string         `json:"state"`
	Paused    bool           `json:"paused"`
	Frames    int            `json:"frames"`
	Progress  int            `json:"progress"`
	FPS       int            `json:"fps"`
	Message   string         `json:"message,omitempty"`
	Totals    map[string]int `json:"totals,omitempty"`
	OutputDir string         `json:"output_dir,omitempty"`
	StartedAt time.Time      `json:"started_at,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// session is one run and everything attached to it.
type session struct {
	id      string
	cfg     config.Run
	started time.Time
	worker  *worker.Worker

	recorder       *store.Recorder
	removeRecorder func()
	watcher        *watch.Watcher

	done chan struct{}
	err  error
}

// App is the main application that orchestrates detection runs.
type App struct {
	config  Config
	router  *router.Router
	metrics *metrics.Metrics
	live    *liveState
	logger  *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active *session
	last   *session
	closed bool
}

// New creates a new App instance with the given configuration.
func New(cfg Config) *App {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	r := router.New()
	m := metrics.New(r)
	live := newLiveState()
	r.AddListener(m)
	r.AddListener(live)

	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		config:  cfg,
		router:  r,
		metrics: m,
		live:    live,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Router returns the router every run publishes on.
func (a *App) Router() *router.Router {
	return a.router
}

// Metrics returns the application metrics.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Store returns the run history store, or nil.
func (a *App) Store() *store.Store {
	return a.config.Store
}

// RunConfig merges req into the configured run settings.
func (a *App) RunConfig(req RunRequest) config.Run {
	run := a.config.Settings.Run
	if req.Source != "" {
		run.Source = req.Source
	}
	if req.Weights != "" {
		run.Weights = req.Weights
	}
	if req.Conf != nil {
		run.Conf = *req.Conf
	}
	if req.IoU != nil {
		run.IoU = *req.IoU
	}
	return run
}

// Start begins a run in the background.
func (a *App) Start(req RunRequest) (Status, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return Status{}, errors.New("app is closed")
	}
	if a.active != nil {
		return Status{}, ErrRunActive
	}

	run := a.RunConfig(req)
	w, err := worker.New(worker.Options{
		Run:          run,
		Router:       a.router,
		Loader:       a.config.Loader,
		Opener:       a.config.Opener,
		WriterOpener: a.config.WriterOpener,
		Logger:       a.logger,
	})
	if err != nil {
		return Status{}, err
	}

	s := &session{
		id:      uuid.New().String(),
		cfg:     run,
		started: time.Now(),
		worker:  w,
		done:    make(chan struct{}),
	}

	if err := a.attachStore(s); err != nil {
		return Status{}, err
	}
	a.attachWatcher(s)

	a.live.reset()
	a.active = s
	a.last = s

	go a.run(s)

	a.logger.Infow("run started", "run", s.id, "source", run.Source, "weights", run.Weights)
	return a.statusLocked(), nil
}

// attachStore creates the run row and the recorder that fills it.
func (a *App) attachStore(s *session) error {
	st := a.config.Store
	if st == nil {
		return nil
	}

	err := st.Runs().Create(&store.Run{
		ID:        s.id,
		Source:    s.cfg.Source,
		Weights:   s.cfg.Weights,
		StartedAt: s.started,
	})
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	for key, value := range map[string]string{
		store.SettingLastSource:  s.cfg.Source,
		store.SettingLastWeights: s.cfg.Weights,
	} {
		if err := st.Settings().Set(key, value); err != nil {
			a.logger.Warnw("failed to save setting", "key", key, "error", err)
		}
	}

	s.recorder = store.NewRecorder(st, s.id, a.logger)
	s.removeRecorder = a.router.AddListener(s.recorder)
	return nil
}

// attachWatcher reloads the model whenever its weights file is rewritten.
// A watch that cannot be set up only costs hot reload, so it is not fatal.
func (a *App) attachWatcher(s *session) {
	if !a.config.Settings.WatchModels {
		return
	}
	wk := s.worker
	w, err := watch.New(s.cfg.Weights, watch.DefaultDebounce, func(string) { wk.ReloadModel() }, a.logger)
	if err != nil {
		a.logger.Warnw("weights will not be watched", "weights", s.cfg.Weights, "error", err)
		return
	}
	s.watcher = w
}

// run drives s to completion and tears it down.
func (a *App) run(s *session) {
	err := s.worker.Run(a.ctx)

	if s.watcher != nil {
		if cerr := s.watcher.Close(); cerr != nil {
			a.logger.Warnw("failed to close watcher", "error", cerr)
		}
	}
	if s.recorder != nil {
		s.removeRecorder()
		if cerr := s.recorder.Close(s.worker.RunDir()); cerr != nil {
			a.logger.Warnw("failed to finish run record", "run", s.id, "error", cerr)
		}
	}

	a.fireHooks(s)

	a.mu.Lock()
	s.err = err
	if a.active == s {
		a.active = nil
	}
	a.mu.Unlock()
	close(s.done)

	a.logger.Infow("run ended", "run", s.id, "frames", s.worker.Frames(), "status", a.live.snapshot().message)
}

func (a *App) fireHooks(s *session) {
	hooks := a.config.Hooks
	if hooks == nil {
		return
	}

	live := a.live.snapshot()
	event := plugin.EventFailed
	if status, ok := store.StatusFromMessage(live.message); ok {
		switch status {
		case store.RunStatusFinished:
			event = plugin.EventFinished
		case store.RunStatusStopped:
			event = plugin.EventStopped
		}
	}

	req := &plugin.Request{
		Event:     event,
		RunID:     s.id,
		Source:    s.cfg.Source,
		Weights:   s.worker.Weights(),
		Frames:    s.worker.Frames(),
		Totals:    live.totals,
		Message:   live.message,
		OutputDir: s.worker.RunDir(),
	}
	// Close cancels a.ctx to stop the run; hooks still fire for that run and
	// are bounded by the executor timeout instead.
	if err := hooks.Fire(context.WithoutCancel(a.ctx), req); err != nil {
		a.logger.Warnw("run hooks failed", "run", s.id, "error", err)
	}
}

func (a *App) activeWorker() (*session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return nil, ErrNoRun
	}
	return a.active, nil
}

// Pause pauses the active run.
func (a *App) Pause() error {
	s, err := a.activeWorker()
	if err != nil {
		return err
	}
	s.worker.Pause()
	return nil
}

// Resume resumes the active run.
func (a *App) Resume() error {
	s, err := a.activeWorker()
	if err != nil {
		return err
	}
	s.worker.Resume()
	return nil
}

// Stop stops the active run. It does not wait for the run to end.
func (a *App) Stop() error {
	s, err := a.activeWorker()
	if err != nil {
		return err
	}
	s.worker.Stop()
	return nil
}

// ChangeModel switches the active run to other weights.
func (a *App) ChangeModel(weights string) error {
	if weights == "" {
		return fmt.Errorf("%w: weights is required", config.ErrInvalid)
	}
	s, err := a.activeWorker()
	if err != nil {
		return err
	}

	s.worker.ChangeModel(weights)

	if s.watcher != nil {
		if err := s.watcher.SetPath(weights); err != nil {
			a.logger.Warnw("failed to move weights watch", "weights", weights, "error", err)
		}
	}
	if st := a.config.Store; st != nil {
		if err := st.Settings().Set(store.SettingLastWeights, weights); err != nil {
			a.logger.Warnw("failed to save setting", "key", store.SettingLastWeights, "error", err)
		}
	}
	return nil
}

// Status returns a snapshot of the active run, or of the last one when idle.
func (a *App) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusLocked()
}

func (a *App) statusLocked() Status {
	s := a.active
	if s == nil {
		s = a.last
	}
	if s == nil {
		return Status{State: "idle"}
	}

	live := a.live.snapshot()
	st := Status{
		Active:    a.active != nil,
		RunID:     s.id,
		Source:    s.cfg.Source,
		Weights:   s.worker.Weights(),
		State:     s.worker.State().String(),
		Paused:    s.worker.IsPaused(),
		Frames:    s.worker.Frames(),
		Progress:  live.progress,
		FPS:       live.fps,
		Message:   live.message,
		Totals:    live.totals,
		OutputDir: s.worker.RunDir(),
		StartedAt: s.started,
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}

// Wait blocks until the active run ends and returns its error. It returns
// ErrNoRun when nothing has been started.
func (a *App) Wait(ctx context.Context) error {
	a.mu.Lock()
	s := a.active
	if s == nil {
		s = a.last
	}
	a.mu.Unlock()

	if s == nil {
		return ErrNoRun
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return s.err
}

// Close stops the active run and waits for it to release its resources.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	s := a.active
	a.mu.Unlock()

	a.cancel()
	if s != nil {
		<-s.done
	}
	return nil
}
