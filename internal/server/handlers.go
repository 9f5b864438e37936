package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/michaelbrown/crucible/internal/artifact"
	"github.com/michaelbrown/crucible/internal/sandbox"
	"github.com/michaelbrown/crucible/internal/storage"
	"github.com/michaelbrown/crucible/internal/worker"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Run handlers ---

type createRunRequest struct {
	Source string `json:"source"`

	// Privileged selects the extended budget tier. Whether the caller is
	// entitled to it is the front end's decision, made before it got here.
	Privileged bool `json:"privileged"`

	// BudgetMS overrides the tier budget, clamped by policy.
	BudgetMS int64 `json:"budget_ms"`
}

type runResponse struct {
	ID            string           `json:"id"`
	Status        storage.RunStatus `json:"status"`
	DurationUS    int64            `json:"duration_us"`
	Text          string           `json:"text,omitempty"`
	Error         *sandbox.Failure `json:"error,omitempty"`
	ImageURL      string           `json:"image_url,omitempty"`
	ImageTooLarge bool             `json:"image_too_large,omitempty"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	budget := time.Duration(req.BudgetMS) * time.Millisecond
	if budget <= 0 && req.Privileged {
		budget = s.policy.PrivilegedBudget
	}

	id := uuid.New().String()
	res, err := s.pool.Run(r.Context(), id, sandbox.Request{
		Source: req.Source,
		Budget: budget,
	})
	switch {
	case errors.Is(err, worker.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "execution queue full, retry later")
		return
	case errors.Is(err, sandbox.ErrEmptySource):
		writeError(w, http.StatusBadRequest, "source is required")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := runResponse{
		ID:         id,
		DurationUS: res.Duration.Microseconds(),
		Text:       res.Text,
		Error:      res.Err,
	}

	run := storage.FromResult(id, req.Source, res)
	resp.Status = run.Status

	if len(res.Image) > 0 {
		if _, err := s.artifacts.Save(id, res.Image); err != nil {
			if errors.Is(err, artifact.ErrTooLarge) {
				// Not a failure: the run completed, the image just cannot travel.
				resp.ImageTooLarge = true
				run.ImageSize = 0
			} else {
				s.logger.Warn("saving artifact", slog.String("run", id), slog.String("error", err.Error()))
				run.ImageSize = 0
			}
		} else {
			resp.ImageURL = "/api/runs/" + id + "/image"
		}
	}

	if err := s.store.CreateRun(r.Context(), run); err != nil {
		s.logger.Warn("recording run", slog.String("run", id), slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := storage.RunListOptions{}

	if status := r.URL.Query().Get("status"); status != "" {
		opts.Status = storage.RunStatus(status)
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	runs, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if runs == nil {
		runs = []storage.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, "run not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	if run.HasImage() {
		if err := s.artifacts.Remove(run.ID); err != nil {
			s.logger.Warn("removing artifact", slog.String("run", run.ID), slog.String("error", err.Error()))
		}
	}

	if err := s.store.DeleteRun(r.Context(), run.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetRunImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil || !run.HasImage() {
		writeError(w, http.StatusNotFound, "no image for this run")
		return
	}

	f, err := s.artifacts.Open(run.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, "artifact missing")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "image/png")
	http.ServeContent(w, r, run.ID+".png", run.CreatedAt, f)
}
