// Package tray provides a system tray menu for controlling the active run.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/yolodesk/internal/router"
	"github.com/ayusman/yolodesk/internal/worker"
)

const appTitle = "yolodesk"

// Tray represents the system tray application. It is also a router listener
// that mirrors the run status in the tray title.
type Tray struct {
	onPause  func(paused bool)
	onStop   func()
	onPanel  func()
	onQuit   func()
	paused   bool
	status   string
	progress int
	fps      int
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuStatus *systray.MenuItem
	ready      bool
}

// New creates a new Tray instance.
func New() *Tray {
	return &Tray{}
}

// OnPause sets the callback for the Pause/Resume item. paused is the state
// the user asked for.
func (t *Tray) OnPause(fn func(paused bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPause = fn
}

// OnStop sets the callback for the Stop item.
func (t *Tray) OnStop(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStop = fn
}

// OnOpenPanel sets the callback for the Open Panel item.
func (t *Tray) OnOpenPanel(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPanel = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle(appTitle)
	systray.SetTooltip("yolodesk object detection")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem("Idle", "Run status")
	t.menuStatus.Disable()
	systray.AddSeparator()

	t.menuToggle = systray.AddMenuItem("Pause", "Pause or resume detection")
	menuStop := systray.AddMenuItem("Stop", "Stop the active run")
	systray.AddSeparator()

	menuPanel := systray.AddMenuItem("Open Panel...", "Open the control panel in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit yolodesk")
	t.ready = true
	t.mu.Unlock()

	t.refresh()

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuStop.ClickedCh:
				t.call(func() func() { return t.onStop })
			case <-menuPanel.ClickedCh:
				t.call(func() func() { return t.onPanel })
			case <-menuQuit.ClickedCh:
				t.call(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// handleToggle flips the requested pause state.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.paused = !t.paused
	paused := t.paused
	callback := t.onPause
	t.mu.Unlock()

	t.refresh()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(paused)
	}
}

func (t *Tray) call(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// OnEvent implements router.Listener.
func (t *Tray) OnEvent(ev router.Event) {
	t.mu.Lock()
	switch ev.Kind {
	case router.Status:
		t.status = ev.Message
		switch ev.Message {
		case worker.StatusPause:
			t.paused = true
		case worker.StatusDetecting, worker.StatusStop, worker.StatusFinished:
			t.paused = false
		}
	case router.Progress:
		t.progress = ev.Progress
	case router.FPS:
		if fps, ok := worker.ParseFPS(ev.Message); ok {
			t.fps = fps
		}
	default:
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.refresh()
}

// refresh pushes the current state to the menu.
func (t *Tray) refresh() {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.ready {
		return
	}
	systray.SetTitle(Title(t.status, t.progress, t.fps))
	if t.status == "" {
		t.menuStatus.SetTitle("Idle")
	} else {
		t.menuStatus.SetTitle(t.status)
	}
	if t.paused {
		t.menuToggle.SetTitle("Resume")
	} else {
		t.menuToggle.SetTitle("Pause")
	}
}

// IsPaused returns the pause state shown in the menu.
func (t *Tray) IsPaused() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paused
}

// Title formats the tray title. Progress is in permille and is left out when
// zero, as it is for streams.
func Title(status string, progress, fps int) string {
	if status == "" {
		return appTitle
	}
	title := status
	if progress > 0 {
		title += fmt.Sprintf(" %.1f%%", float64(progress)/10)
	}
	if fps > 0 && status == worker.StatusDetecting {
		title += fmt.Sprintf(" %dfps", fps)
	}
	return title
}
