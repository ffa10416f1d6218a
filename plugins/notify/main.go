// Package main provides a run hook that shows a desktop notification when a
// detection run ends. It uses notify-send on Linux and AppleScript on macOS.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event     string         `json:"event"`
	RunID     string         `json:"run_id"`
	Source    string         `json:"source"`
	Weights   string         `json:"weights"`
	Frames    int            `json:"frames"`
	Totals    map[string]int `json:"totals"`
	Message   string         `json:"message"`
	OutputDir string         `json:"output_dir"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}

	title, body := format(req)
	writeResponse(notify(title, body))
}

// format builds the notification title and body for a run summary.
func format(req Request) (string, string) {
	var title string
	switch req.Event {
	case "finished":
		title = "Detection finished"
	case "stopped":
		title = "Detection stopped"
	case "failed":
		title = "Detection failed"
	default:
		title = "Detection " + req.Event
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d frames", req.Source, req.Frames)

	classes := make([]string, 0, len(req.Totals))
	for name, n := range req.Totals {
		if n > 0 {
			classes = append(classes, name)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return req.Totals[classes[i]] > req.Totals[classes[j]] })
	for i, name := range classes {
		if i == 3 {
			break
		}
		fmt.Fprintf(&b, ", %s %d", name, req.Totals[name])
	}

	if req.Event == "failed" && req.Message != "" {
		b.WriteString("\n" + req.Message)
	}
	return title, b.String()
}

func notify(title, body string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", body, title)
		cmd = exec.Command("osascript", "-e", script)
	case "linux":
		cmd = exec.Command("notify-send", title, body)
	default:
		return fmt.Errorf("notifications are not supported on %s", runtime.GOOS)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// writeResponse writes the result to stdout.
func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
