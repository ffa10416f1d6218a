package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

const manifestFile = "plugin.json"

var knownEvents = []string{EventFinished, EventStopped, EventFailed}

// Manager holds the plugins found under one directory.
type Manager struct {
	dir    string
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	plugins []*Plugin // sorted by name
}

// NewManager creates a Manager for dir. Nothing is read until Discover.
func NewManager(dir string, logger *zap.SugaredLogger) *Manager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Manager{dir: dir, logger: logger}
}

// Discover replaces the plugin set with the subdirectories of the plugin
// directory that hold a valid manifest and its executable. Broken plugins
// are logged and skipped; a missing directory means no plugins.
func (m *Manager) Discover() error {
	var found []*Plugin

	if m.dir != "" {
		entries, err := os.ReadDir(m.dir)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return err
		default:
			for _, entry := range entries {
				if !entry.IsDir() {
					continue
				}
				p, err := loadPlugin(filepath.Join(m.dir, entry.Name()))
				if err != nil {
					m.logger.Warnw("skipping plugin", "dir", entry.Name(), "error", err)
					continue
				}
				if p != nil {
					found = append(found, p)
				}
			}
		}
	}

	slices.SortFunc(found, func(a, b *Plugin) int {
		return strings.Compare(a.Manifest.Name, b.Manifest.Name)
	})
	found = slices.CompactFunc(found, func(a, b *Plugin) bool {
		if a.Manifest.Name == b.Manifest.Name {
			m.logger.Warnw("duplicate plugin name, keeping first", "name", a.Manifest.Name, "path", b.Path)
			return true
		}
		return false
	})

	m.mu.Lock()
	m.plugins = found
	m.mu.Unlock()
	return nil
}

// loadPlugin reads the manifest in path. A directory without a manifest is
// not a plugin and yields nil, nil.
func loadPlugin(path string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(path, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if manifest.Name == "" || manifest.Executable == "" {
		return nil, errors.New("manifest needs a name and an executable")
	}
	for _, e := range manifest.Events {
		if !slices.Contains(knownEvents, e) {
			return nil, fmt.Errorf("unknown event %q", e)
		}
	}

	exe := filepath.Join(path, manifest.Executable)
	info, err := os.Stat(exe)
	if err != nil {
		return nil, fmt.Errorf("executable: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("executable %s is a directory", manifest.Executable)
	}

	return &Plugin{Manifest: manifest, Path: path, Executable: exe}, nil
}

// Get returns a plugin by name.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := slices.BinarySearchFunc(m.plugins, name, func(p *Plugin, name string) int {
		return strings.Compare(p.Manifest.Name, name)
	})
	if !ok {
		return nil, ErrPluginNotFound
	}
	return m.plugins[i], nil
}

// ForEvent returns the plugins subscribed to event, sorted by name.
func (m *Manager) ForEvent(event string) []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Plugin
	for _, p := range m.plugins {
		if p.Manifest.Handles(event) {
			out = append(out, p)
		}
	}
	return out
}

// List returns all discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.plugins)
}

// Dir returns the plugin directory.
func (m *Manager) Dir() string {
	return m.dir
}
