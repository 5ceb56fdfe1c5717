package handlers

import (
	"net/http"
)

// AutocompleteSenders returns known senders, most frequent first
func (h *Handlers) AutocompleteSenders(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 100)
	if limit == 0 {
		limit = 100
	}

	senders, err := h.db.GetUniqueSenders(limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get unique senders")
		http.Error(w, "Failed to load senders", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, senders)
}
