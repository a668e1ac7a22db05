// Package server exposes the HTTP surface: the Gmail push notification
// endpoint and the REST API for transactions and categories.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sajagshrestha/autofin-BE/internal/ingest"
	"github.com/sajagshrestha/autofin-BE/internal/service"
)

// Handler carries the dependencies of the HTTP surface.
type Handler struct {
	store          service.Storage
	controller     *ingest.Controller
	allowedOrigins []string
	logger         *slog.Logger
}

// New creates the HTTP handler set.
func New(store service.Storage, controller *ingest.Controller, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Handler{
		store:          store,
		controller:     controller,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/v1", func(r chi.Router) {
		r.Post("/notifications/gmail", h.GmailNotification)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/transactions", h.ListTransactions)
			r.Patch("/transactions/{id}", h.UpdateTransaction)
			r.Get("/categories", h.ListCategories)
			r.Post("/categories", h.CreateCategory)
			r.Delete("/categories/{id}", h.DeleteCategory)
		})
	})

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return router
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
