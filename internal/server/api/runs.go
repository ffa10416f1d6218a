package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/yolodesk/internal/store"
)

// defaultListLimit caps GET /api/runs when no limit is given.
const defaultListLimit = 50

// RunsHandler serves the run history.
type RunsHandler struct {
	store *store.Store
}

// NewRunsHandler creates a new RunsHandler with the given store.
func NewRunsHandler(s *store.Store) *RunsHandler {
	return &RunsHandler{store: s}
}

type runResponse struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	Weights    string         `json:"weights"`
	Status     string         `json:"status"`
	Message    string         `json:"message,omitempty"`
	Frames     int            `json:"frames"`
	OutputDir  string         `json:"output_dir,omitempty"`
	StartedAt  string         `json:"started_at"`
	FinishedAt string         `json:"finished_at,omitempty"`
	Totals     map[string]int `json:"totals,omitempty"`
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

func toResponse(run *store.Run) runResponse {
	resp := runResponse{
		ID:        run.ID,
		Source:    run.Source,
		Weights:   run.Weights,
		Status:    string(run.Status),
		Message:   run.Message,
		Frames:    run.Frames,
		OutputDir: run.OutputDir,
		StartedAt: run.StartedAt.Format(time.RFC3339),
	}
	if run.FinishedAt != nil {
		resp.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

// ServeHTTP handles /api/runs and /api/runs/{id}.
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/runs")
	id = strings.Trim(id, "/")

	if id == "" {
		h.list(w, r)
		return
	}
	h.get(w, id)
}

func (h *RunsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.store.Runs().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	response := listRunsResponse{
		Runs: make([]runResponse, 0, len(runs)),
	}
	for _, run := range runs {
		response.Runs = append(response.Runs, toResponse(run))
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *RunsHandler) get(w http.ResponseWriter, id string) {
	run, err := h.store.Runs().GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	totals, err := h.store.Results().Totals(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute totals")
		return
	}

	resp := toResponse(run)
	resp.Totals = totals
	writeJSON(w, http.StatusOK, resp)
}
