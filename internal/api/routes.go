package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Health и metrics
	mux.Handle("GET /healthz", http.HandlerFunc(h.Healthz))
	mux.Handle("GET /metrics", h.Metrics())

	// Triggers
	h.handle(mux, "POST /api/v1/triggers", h.CreateTrigger)

	// Runs
	h.handle(mux, "GET /api/v1/runs", h.ListRuns)
	h.handle(mux, "GET /api/v1/runs/{id}", h.GetRun)
	h.handle(mux, "GET /api/v1/runs/{id}/log", h.GetRunLog)
	h.handle(mux, "POST /api/v1/runs/{id}/cancel", h.CancelRun)
}

// handle регистрирует маршрут API с middleware chain.
func (h *Handler) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	middlewares := []Middleware{RequestID(h.logger), Logging(), Recovery()}
	if h.requests != nil {
		middlewares = append([]Middleware{Instrument(h.requests, pattern)}, middlewares...)
	}
	mux.Handle(pattern, Chain(middlewares...)(fn))
}
