// Package api exposes the job manager over HTTP: submit, poll, cancel,
// download, release, and an SSE event stream.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/exec"

	"github.com/muhammadegaa/reely/internal/config"
	"github.com/muhammadegaa/reely/internal/jobs"
	"github.com/muhammadegaa/reely/internal/pipeline"
)

// Handler provides HTTP API handlers
type Handler struct {
	manager *jobs.Manager
	cfg     *config.Config
	version string
}

// NewHandler creates a new API handler
func NewHandler(manager *jobs.Manager, cfg *config.Config, version string) *Handler {
	return &Handler{manager: manager, cfg: cfg, version: version}
}

// response helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// SubmitRequest is the request body for creating a job
type SubmitRequest struct {
	Owner     string  `json:"owner"`
	Kind      string  `json:"kind"`
	Source    string  `json:"source"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Vertical  bool    `json:"vertical"`
	Subtitles bool    `json:"subtitles"`
	Provider  string  `json:"ai_provider,omitempty"`
}

// Submit handles POST /api/jobs
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	owner := req.Owner
	if owner == "" {
		owner = "anonymous"
	}

	job, err := h.manager.Submit(owner, pipeline.Request{
		Kind:      pipeline.Kind(req.Kind),
		Source:    req.Source,
		StartSecs: req.Start,
		EndSecs:   req.End,
		Vertical:  req.Vertical,
		Subtitles: req.Subtitles,
		Provider:  req.Provider,
	})
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, jobs.ErrQueueFull):
			writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// GetJob handles GET /api/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJob handles POST /api/jobs/{id}/cancel. The stop is asynchronous;
// callers poll until the job turns terminal.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	err := h.manager.Cancel(r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// Download handles GET /api/jobs/{id}/download
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	job, err := h.manager.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != jobs.StatusCompleted || job.Result == nil || job.Result.OutputPath == "" {
		writeError(w, http.StatusNotFound, "no output available")
		return
	}
	if _, err := os.Stat(job.Result.OutputPath); err != nil {
		writeError(w, http.StatusNotFound, "output no longer available")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="clip.mp4"`)
	http.ServeFile(w, r, job.Result.OutputPath)
}

// ReleaseJob handles DELETE /api/jobs/{id}
func (h *Handler) ReleaseJob(w http.ResponseWriter, r *http.Request) {
	err := h.manager.Release(r.PathValue("id"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// ListJobs handles GET /api/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  h.manager.List(),
		"stats": h.manager.Stats(),
	})
}

// Stats handles GET /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Stats())
}

// Health handles GET /health. Reports whether the external tools this
// service shells out to are actually present.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	tools := map[string]bool{
		"yt-dlp":  toolAvailable(h.cfg.YtdlpPath, "yt-dlp"),
		"ffmpeg":  toolAvailable(h.cfg.FFmpegPath, "ffmpeg"),
		"ffprobe": toolAvailable(h.cfg.FFprobePath, "ffprobe"),
	}

	status := http.StatusOK
	healthy := true
	for _, ok := range tools {
		if !ok {
			status = http.StatusServiceUnavailable
			healthy = false
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"healthy": healthy,
		"version": h.version,
		"tools":   tools,
	})
}

func toolAvailable(configured, fallback string) bool {
	name := configured
	if name == "" {
		name = fallback
	}
	_, err := exec.LookPath(name)
	return err == nil
}
