package plugin

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

const noopScript = "#!/bin/sh\ncat >/dev/null\necho '{\"success\":true}'\n"

// writePlugin creates <dir>/<name>/plugin.json and the script it points at.
// An empty script writes one that succeeds.
func writePlugin(t *testing.T, dir, name string, events []string, script string) string {
	t.Helper()

	pluginDir := filepath.Join(dir, name)
	if err := os.MkdirAll(pluginDir, 0755); err != nil {
		t.Fatalf("failed to create plugin dir: %v", err)
	}

	manifest := Manifest{
		Name:        name,
		Version:     "1.0.0",
		Description: "test plugin " + name,
		Executable:  name + ".sh",
		Events:      events,
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	writeFile(t, filepath.Join(pluginDir, manifestFile), string(data), 0644)

	if script == "" {
		script = noopScript
	}
	writeFile(t, filepath.Join(pluginDir, name+".sh"), script, 0755)
	return pluginDir
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatal(err)
	}
}

func discover(t *testing.T, dir string) *Manager {
	t.Helper()
	m := NewManager(dir, zaptest.NewLogger(t).Sugar())
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	return m
}

func TestManager_Discover(t *testing.T) {
	tmpDir := t.TempDir()
	pluginDir := writePlugin(t, tmpDir, "test-plugin", []string{EventFinished, EventStopped}, "")

	plugins := discover(t, tmpDir).List()
	if len(plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(plugins))
	}

	p := plugins[0]
	if p.Manifest.Name != "test-plugin" || len(p.Manifest.Events) != 2 {
		t.Errorf("unexpected manifest: %+v", p.Manifest)
	}
	if p.Path != pluginDir {
		t.Errorf("Path = %q, want %q", p.Path, pluginDir)
	}
	if p.Executable != filepath.Join(pluginDir, "test-plugin.sh") {
		t.Errorf("unexpected executable %q", p.Executable)
	}
}

func TestManager_Discover_Skips(t *testing.T) {
	tmpDir := t.TempDir()
	writePlugin(t, tmpDir, "good", nil, "")

	tests := []struct {
		dir      string
		manifest string
	}{
		{"bad-json", "not valid json"},
		{"no-exec-field", `{"name":"no-exec-field"}`},
		{"no-name", `{"executable":"run.sh"}`},
		{"missing-exec", `{"name":"missing-exec","executable":"gone.sh"}`},
		{"bad-event", `{"name":"bad-event","executable":"run.sh","events":["started"]}`},
	}
	for _, tt := range tests {
		writeFile(t, filepath.Join(tmpDir, tt.dir, manifestFile), tt.manifest, 0644)
		if tt.dir != "missing-exec" {
			writeFile(t, filepath.Join(tmpDir, tt.dir, "run.sh"), noopScript, 0755)
		}
	}

	// not plugins at all
	if err := os.MkdirAll(filepath.Join(tmpDir, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(tmpDir, "README"), "loose file", 0644)

	plugins := discover(t, tmpDir).List()
	if len(plugins) != 1 || plugins[0].Manifest.Name != "good" {
		t.Fatalf("expected only the valid plugin, got %d", len(plugins))
	}
}

func TestManager_Discover_Duplicates(t *testing.T) {
	tmpDir := t.TempDir()
	writePlugin(t, tmpDir, "notify", nil, "")

	// a second directory claiming the same name
	data := `{"name":"notify","executable":"notify.sh"}`
	writeFile(t, filepath.Join(tmpDir, "notify-copy", manifestFile), data, 0644)
	writeFile(t, filepath.Join(tmpDir, "notify-copy", "notify.sh"), noopScript, 0755)

	if plugins := discover(t, tmpDir).List(); len(plugins) != 1 {
		t.Errorf("expected duplicates to collapse, got %d plugins", len(plugins))
	}
}

func TestManager_Discover_MissingDir(t *testing.T) {
	for _, dir := range []string{"", filepath.Join(t.TempDir(), "does-not-exist")} {
		if plugins := discover(t, dir).List(); len(plugins) != 0 {
			t.Errorf("Discover(%q): expected 0 plugins, got %d", dir, len(plugins))
		}
	}
}

func TestManager_Discover_Rescan(t *testing.T) {
	tmpDir := t.TempDir()
	writePlugin(t, tmpDir, "first", nil, "")

	m := discover(t, tmpDir)
	writePlugin(t, tmpDir, "second", nil, "")
	if err := os.RemoveAll(filepath.Join(tmpDir, "first")); err != nil {
		t.Fatal(err)
	}
	if err := m.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	plugins := m.List()
	if len(plugins) != 1 || plugins[0].Manifest.Name != "second" {
		t.Errorf("rescan did not replace the plugin set: %v", plugins)
	}
}

func TestManager_Get(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"c", "a", "my-plugin"} {
		writePlugin(t, tmpDir, name, nil, "")
	}
	m := discover(t, tmpDir)

	p, err := m.Get("my-plugin")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.Manifest.Name != "my-plugin" {
		t.Errorf("Get() returned %q", p.Manifest.Name)
	}

	if _, err := m.Get("nonexistent-plugin"); !errors.Is(err, ErrPluginNotFound) {
		t.Errorf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestManager_ForEvent(t *testing.T) {
	tmpDir := t.TempDir()
	writePlugin(t, tmpDir, "b-all", nil, "")
	writePlugin(t, tmpDir, "a-finish", []string{EventFinished}, "")
	writePlugin(t, tmpDir, "c-fail", []string{EventFailed}, "")
	m := discover(t, tmpDir)

	tests := []struct {
		event string
		want  []string
	}{
		{EventFinished, []string{"a-finish", "b-all"}},
		{EventStopped, []string{"b-all"}},
		{EventFailed, []string{"b-all", "c-fail"}},
	}

	for _, tt := range tests {
		got := m.ForEvent(tt.event)
		names := make([]string, len(got))
		for i, p := range got {
			names[i] = p.Manifest.Name
		}
		if len(names) != len(tt.want) {
			t.Errorf("ForEvent(%s) = %v, want %v", tt.event, names, tt.want)
			continue
		}
		for i := range names {
			if names[i] != tt.want[i] {
				t.Errorf("ForEvent(%s) = %v, want %v", tt.event, names, tt.want)
				break
			}
		}
	}
}

func TestManager_Dir(t *testing.T) {
	if got := NewManager("/path/to/plugins", nil).Dir(); got != "/path/to/plugins" {
		t.Errorf("Dir() = %q", got)
	}
}
