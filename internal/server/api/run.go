package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/yolodesk/internal/app"
	"github.com/ayusman/yolodesk/internal/config"
)

// Controller is the run control surface of the application.
type Controller interface {
	Start(req app.RunRequest) (app.Status, error)
	Pause() error
	Resume() error
	Stop() error
	ChangeModel(weights string) error
	Status() app.Status
}

// RunHandler handles HTTP requests for the active run.
type RunHandler struct {
	ctrl Controller
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(ctrl Controller) *RunHandler {
	return &RunHandler{ctrl: ctrl}
}

type changeModelRequest struct {
	Weights string `json:"weights"`
}

// ServeHTTP routes /api/run and /api/run/{action}.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/api/run")
	action = strings.Trim(action, "/")

	if action == "" {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, h.ctrl.Status())
		case http.MethodPost:
			h.start(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var err error
	switch action {
	case "pause":
		err = h.ctrl.Pause()
	case "resume":
		err = h.ctrl.Resume()
	case "stop":
		err = h.ctrl.Stop()
	case "model":
		var req changeModelRequest
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		err = h.ctrl.ChangeModel(req.Weights)
	default:
		writeError(w, http.StatusNotFound, "Unknown run action")
		return
	}

	if err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.ctrl.Status())
}

// start handles POST /api/run. An empty body starts a run with the
// configured settings.
func (h *RunHandler) start(w http.ResponseWriter, r *http.Request) {
	var req app.RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
	}

	status, err := h.ctrl.Start(req)
	if err != nil {
		writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, status)
}

func writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrRunActive), errors.Is(err, app.ErrNoRun):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, config.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
