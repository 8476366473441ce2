package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check and metrics
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/system/info", s.handleSystemInfo)

		// Live status snapshot
		r.Get("/status", s.handleStatus)

		// Session lifecycle
		r.Route("/session", func(r chi.Router) {
			r.Post("/start", s.handleSessionStart)
			r.Post("/stop", s.handleSessionStop)
			r.Put("/comment", s.handleSessionComment)
			r.Post("/retry", s.handleSessionRetry)
			r.Get("/events", s.handleSessionEvents)
		})

		// Sensor endpoints
		r.Route("/sensors", func(r chi.Router) {
			r.Get("/", s.handleListSensors)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSensor)
				r.Get("/samples", s.handleSensorSamples)
				r.Post("/start", s.handleSensorStart)
				r.Post("/stop", s.handleSensorStop)
				r.Put("/volume", s.handleSensorVolume)
				r.Put("/weight", s.handleSensorWeight)
				r.Put("/subject", s.handleSensorSubject)
			})
		})

		// Board endpoints
		r.Route("/boards", func(r chi.Router) {
			r.Get("/", s.handleListBoards)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetBoard)
				r.Post("/reconnect", s.handleReconnectBoard)
			})
		})

		// WebSocket stream
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
