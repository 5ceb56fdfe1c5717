package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/felo/mail-extractor/internal/db"
)

// Handlers serves a read-only JSON view of an extraction index
type Handlers struct {
	db     *db.DB
	logger zerolog.Logger
}

// New creates a new Handlers instance
func New(database *db.DB, logger zerolog.Logger) *Handlers {
	return &Handlers{
		db:     database,
		logger: logger,
	}
}

// Routes builds the router
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/stats", h.Stats)
	r.Get("/messages", h.ListMessages)
	r.Get("/messages/{source}", h.GetMessage)
	r.Get("/search", h.Search)
	r.Get("/senders", h.AutocompleteSenders)
	r.Get("/attachments/{id}/download", h.DownloadAttachment)

	return r
}

// writeJSON encodes v as the response body
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// intParam parses a positive integer query parameter, falling back to def
func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}
