package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/yolodesk/internal/app"
	"github.com/ayusman/yolodesk/internal/config"
	"github.com/ayusman/yolodesk/internal/plugin"
	"github.com/ayusman/yolodesk/internal/router"
	"github.com/ayusman/yolodesk/internal/server"
	"github.com/ayusman/yolodesk/internal/store"
	"github.com/ayusman/yolodesk/internal/tray"
)

// env is what every command needs.
type env struct {
	cfg    config.Config
	logger *zap.SugaredLogger
	store  *store.Store
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	path, err := storePath(cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	st, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}

	return &env{cfg: cfg, logger: logger.Sugar(), store: st}, nil
}

func (e *env) Close() error {
	err := e.store.Close()
	// stderr cannot always be synced
	_ = e.logger.Sync()
	return err
}

// newApplication builds the app with hooks from the plugin directory.
func (e *env) newApplication() (*app.App, error) {
	hooks, err := plugin.NewHooks(pluginDir(e.cfg), e.cfg.Plugins.TimeoutMs, e.logger)
	if err != nil {
		return nil, err
	}
	return app.New(app.Config{
		Settings: e.cfg,
		Store:    e.store,
		Hooks:    hooks,
		Logger:   e.logger,
	}), nil
}

// logEvents mirrors status and fps reports to the log.
func logEvents(logger *zap.SugaredLogger) router.Listener {
	return router.ListenerFunc(func(ev router.Event) {
		switch ev.Kind {
		case router.Status:
			logger.Infow("status", "message", ev.Message)
		case router.FPS:
			logger.Debugw("throughput", "message", ev.Message)
		}
	})
}

func runAction(c *cli.Context) (err error) {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, e.Close()) }()

	a, err := e.newApplication()
	if err != nil {
		return err
	}
	defer a.Close()
	a.Router().AddListener(logEvents(e.logger))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := a.Start(app.RunRequest{}); err != nil {
		return err
	}

	err = a.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		e.logger.Infow("interrupted, stopping run")
		if serr := a.Stop(); serr != nil && !errors.Is(serr, app.ErrNoRun) {
			return serr
		}
		err = a.Wait(context.Background())
	}

	printSummary(a.Status())
	return err
}

func printSummary(st app.Status) {
	fmt.Printf("%s: %s, %d frames\n", st.RunID, st.Message, st.Frames)
	if st.OutputDir != "" {
		fmt.Printf("results saved to %s\n", st.OutputDir)
	}

	names := make([]string, 0, len(st.Totals))
	for name, n := range st.Totals {
		if n > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-16s %d\n", name, st.Totals[name])
	}
}

func serveAction(c *cli.Context) (err error) {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, e.Close()) }()

	a, err := e.newApplication()
	if err != nil {
		return err
	}
	defer a.Close()
	a.Router().AddListener(logEvents(e.logger))

	staticDir := e.cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		e.logger.Infow("serving static files", "dir", staticDir)
	}

	srv := server.New(server.Config{
		StaticDir: staticDir,
		Store:     e.store,
		App:       a,
		Router:    a.Router(),
		Metrics:   a.Metrics().Handler(),
		Logger:    e.logger,
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx, e.cfg.Server.Addr)
	})

	if c.IsSet(flagSource) {
		if _, err := a.Start(app.RunRequest{}); err != nil {
			e.logger.Warnw("failed to start initial run", "error", err)
		}
	}

	if e.cfg.Server.Tray {
		t := newTray(a, panelURL(e.cfg.Server.Addr), stop, e.logger)
		a.Router().AddListener(t)
		g.Go(func() error {
			<-ctx.Done()
			t.Quit()
			return nil
		})
		// systray needs the main goroutine
		t.Run()
		stop()
	}

	return g.Wait()
}

func newTray(a *app.App, url string, quit func(), logger *zap.SugaredLogger) *tray.Tray {
	t := tray.New()
	t.OnPause(func(paused bool) {
		var err error
		if paused {
			err = a.Pause()
		} else {
			err = a.Resume()
		}
		if err != nil {
			logger.Warnw("tray pause toggle", "error", err)
		}
	})
	t.OnStop(func() {
		if err := a.Stop(); err != nil {
			logger.Warnw("tray stop", "error", err)
		}
	})
	t.OnOpenPanel(func() {
		if err := openBrowser(url); err != nil {
			logger.Warnw("failed to open panel", "url", url, "error", err)
		}
	})
	t.OnQuit(quit)
	return t
}

func panelURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

func runsAction(c *cli.Context) (err error) {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, e.Close()) }()

	runs, err := e.store.Runs().List(c.Int(flagLimit))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tFRAMES\tSOURCE\tWEIGHTS")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			run.ID, run.StartedAt.Format(time.DateTime), run.Status, run.Frames, run.Source, run.Weights)
	}
	return w.Flush()
}
