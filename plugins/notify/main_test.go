package main

import (
	"strings"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name      string
		req       Request
		wantTitle string
		wantBody  []string
	}{
		{
			name: "finished",
			req: Request{
				Event:  "finished",
				Source: "clip.mp4",
				Frames: 120,
				Totals: map[string]int{"person": 10, "car": 4, "dog": 0},
			},
			wantTitle: "Detection finished",
			wantBody:  []string{"clip.mp4: 120 frames", "person 10", "car 4"},
		},
		{
			name:      "failed",
			req:       Request{Event: "failed", Source: "0", Message: "Error: camera lost"},
			wantTitle: "Detection failed",
			wantBody:  []string{"0: 0 frames", "Error: camera lost"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := format(tt.req)
			if title != tt.wantTitle {
				t.Errorf("title = %q, want %q", title, tt.wantTitle)
			}
			for _, want := range tt.wantBody {
				if !strings.Contains(body, want) {
					t.Errorf("body %q missing %q", body, want)
				}
			}
			if strings.Contains(body, "dog") {
				t.Errorf("body %q lists a class with no detections", body)
			}
		})
	}
}
