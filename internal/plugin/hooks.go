package plugin

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Hooks runs every plugin subscribed to a run event.
type Hooks struct {
	manager  *Manager
	executor *Executor
	logger   *zap.SugaredLogger
}

// NewHooks discovers the plugins in dir. A missing directory yields no hooks.
func NewHooks(dir string, timeoutMs int, logger *zap.SugaredLogger) (*Hooks, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m := NewManager(dir, logger)
	if err := m.Discover(); err != nil {
		return nil, fmt.Errorf("discover plugins in %s: %w", dir, err)
	}
	for _, p := range m.List() {
		logger.Infow("plugin loaded", "name", p.Manifest.Name, "version", p.Manifest.Version, "events", p.Manifest.Events)
	}
	return &Hooks{
		manager:  m,
		executor: NewExecutor(timeoutMs),
		logger:   logger,
	}, nil
}

// Manager returns the underlying plugin manager.
func (h *Hooks) Manager() *Manager {
	return h.manager
}

// Fire runs the hooks for req.Event one after another. A failing plugin does
// not keep the others from running; all failures are returned together.
func (h *Hooks) Fire(ctx context.Context, req *Request) error {
	var errs error
	for _, p := range h.manager.ForEvent(req.Event) {
		resp, err := h.executor.Execute(ctx, p, req)
		if err != nil {
			h.logger.Warnw("plugin failed", "plugin", p.Manifest.Name, "event", req.Event, "error", err)
			errs = multierr.Append(errs, err)
			continue
		}
		if !resp.Success {
			err := fmt.Errorf("plugin %s: %s", p.Manifest.Name, resp.Error)
			h.logger.Warnw("plugin reported failure", "plugin", p.Manifest.Name, "event", req.Event, "error", resp.Error)
			errs = multierr.Append(errs, err)
			continue
		}
		h.logger.Debugw("plugin ran", "plugin", p.Manifest.Name, "event", req.Event, "run", req.RunID)
	}
	return errs
}
