package api

import "net/http"

// NewRouter creates a new HTTP router with all API endpoints
func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/jobs", h.Submit)
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/stream", h.JobStream)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/jobs/{id}/cancel", h.CancelJob)
	mux.HandleFunc("GET /api/jobs/{id}/download", h.Download)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.ReleaseJob)

	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("GET /health", h.Health)

	return mux
}
