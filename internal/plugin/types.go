// Package plugin discovers and runs external run hooks. A hook is any
// executable that reads a JSON Request on stdin and writes a JSON Response
// on stdout.
package plugin

// Hook events fired when a run ends.
const (
	EventFinished = "finished"
	EventStopped  = "stopped"
	EventFailed   = "failed"
)

// Manifest describes a plugin's metadata and the events it wants.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Events      []string `json:"events"`
}

// Handles reports whether the plugin subscribed to event. A manifest with no
// events receives all of them.
func (m Manifest) Handles(event string) bool {
	if len(m.Events) == 0 {
		return true
	}
	for _, e := range m.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Request is the run summary sent to a plugin.
type Request struct {
	Event     string         `json:"event"`
	RunID     string         `json:"run_id"`
	Source    string         `json:"source"`
	Weights   string         `json:"weights"`
	Frames    int            `json:"frames"`
	Totals    map[string]int `json:"totals,omitempty"`
	Message   string         `json:"message,omitempty"`
	OutputDir string         `json:"output_dir,omitempty"`
}

// Response is what a plugin writes back.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
