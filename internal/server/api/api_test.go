package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/yolodesk/internal/app"
	"github.com/ayusman/yolodesk/internal/config"
	"github.com/ayusman/yolodesk/internal/store"
)

// fakeController records calls and returns canned errors.
type fakeController struct {
	calls   []string
	started app.RunRequest
	weights string
	err     error
}

func (c *fakeController) Start(req app.RunRequest) (app.Status, error) {
	c.calls = append(c.calls, "start")
	c.started = req
	if c.err != nil {
		return app.Status{}, c.err
	}
	return app.Status{Active: true, RunID: "run-1", Source: req.Source, State: "initializing"}, nil
}

func (c *fakeController) Pause() error  { c.calls = append(c.calls, "pause"); return c.err }
func (c *fakeController) Resume() error { c.calls = append(c.calls, "resume"); return c.err }
func (c *fakeController) Stop() error   { c.calls = append(c.calls, "stop"); return c.err }

func (c *fakeController) ChangeModel(weights string) error {
	c.calls = append(c.calls, "model")
	c.weights = weights
	return c.err
}

func (c *fakeController) Status() app.Status {
	return app.Status{Active: true, RunID: "run-1", State: "running"}
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRunHandler_Start(t *testing.T) {
	ctrl := &fakeController{}
	h := NewRunHandler(ctrl)

	rec := do(h, http.MethodPost, "/api/run", `{"source": "clip.mp4", "conf": 0.5}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if ctrl.started.Source != "clip.mp4" || ctrl.started.Conf == nil || *ctrl.started.Conf != 0.5 {
		t.Errorf("unexpected run request: %+v", ctrl.started)
	}
	if ctrl.started.IoU != nil {
		t.Error("iou override set without being sent")
	}

	var status app.Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", status.RunID)
	}

	if rec := do(h, http.MethodPost, "/api/run", ""); rec.Code != http.StatusCreated {
		t.Errorf("empty body status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if rec := do(h, http.MethodPost, "/api/run", "{bad"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRunHandler_Actions(t *testing.T) {
	ctrl := &fakeController{}
	h := NewRunHandler(ctrl)

	for _, action := range []string{"pause", "resume", "stop"} {
		rec := do(h, http.MethodPost, "/api/run/"+action, "")
		if rec.Code != http.StatusAccepted {
			t.Errorf("%s status = %d, want %d", action, rec.Code, http.StatusAccepted)
		}
	}

	rec := do(h, http.MethodPost, "/api/run/model", `{"weights": "b.onnx"}`)
	if rec.Code != http.StatusAccepted || ctrl.weights != "b.onnx" {
		t.Errorf("model status = %d, weights = %q", rec.Code, ctrl.weights)
	}

	want := []string{"pause", "resume", "stop", "model"}
	if fmt.Sprint(ctrl.calls) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", ctrl.calls, want)
	}

	if rec := do(h, http.MethodGet, "/api/run/pause", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET pause status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if rec := do(h, http.MethodPost, "/api/run/rewind", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown action status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if rec := do(h, http.MethodGet, "/api/run", ""); rec.Code != http.StatusOK {
		t.Errorf("GET status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRunHandler_Errors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{app.ErrRunActive, http.StatusConflict},
		{app.ErrNoRun, http.StatusConflict},
		{fmt.Errorf("%w: iou 2 not in [0, 1]", config.ErrInvalid), http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		h := NewRunHandler(&fakeController{err: tt.err})
		if rec := do(h, http.MethodPost, "/api/run", ""); rec.Code != tt.want {
			t.Errorf("Start with %v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
		if rec := do(h, http.MethodPost, "/api/run/stop", ""); rec.Code != tt.want {
			t.Errorf("Stop with %v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestRunsHandler(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	run := &store.Run{ID: "run-1", Source: "clip.mp4", Weights: "best.onnx", StartedAt: time.Now()}
	if err := s.Runs().Create(run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Results().Append(&store.FrameResult{RunID: "run-1", FrameIndex: 1, Counts: map[string]int{"dog": 2}}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Runs().Finish("run-1", store.RunStatusFinished, "Finished", 1, ""); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	h := NewRunsHandler(s)

	t.Run("list", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/api/runs?limit=10", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		var resp listRunsResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(resp.Runs) != 1 || resp.Runs[0].Status != "finished" || resp.Runs[0].FinishedAt == "" {
			t.Errorf("unexpected runs: %+v", resp.Runs)
		}
	})

	t.Run("get with totals", func(t *testing.T) {
		rec := do(h, http.MethodGet, "/api/runs/run-1", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		var resp runResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Totals["dog"] != 2 {
			t.Errorf("totals = %v, want dog:2", resp.Totals)
		}
	})

	t.Run("errors", func(t *testing.T) {
		if rec := do(h, http.MethodGet, "/api/runs/missing", ""); rec.Code != http.StatusNotFound {
			t.Errorf("missing run status = %d, want %d", rec.Code, http.StatusNotFound)
		}
		if rec := do(h, http.MethodGet, "/api/runs?limit=abc", ""); rec.Code != http.StatusBadRequest {
			t.Errorf("bad limit status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
		if rec := do(h, http.MethodDelete, "/api/runs/run-1", ""); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("DELETE status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
		}
	})
}
