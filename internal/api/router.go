/**
 * @description
 * This file sets up the HTTP router for the clearing-service. It defines the
 * websocket endpoint participants connect to, a health check, and applies
 * standard middleware for logging and panic recovery.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes creates and returns the router for the clearing-service.
func Routes(h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging and panic recovery. No request
	// timeout here: websocket connections are long-lived by design.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoint.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Connected-endpoint listing for operators.
	r.Get("/banks", h.BanksHandler)

	// Participant banks connect here.
	r.Get("/ws", h.ConnectHandler)

	return r
}
