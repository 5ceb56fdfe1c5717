package handlers

import (
	"net/http"

	"github.com/felo/mail-extractor/internal/db"
)

// Search handles full-text search requests
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := db.SearchFilter{
		Query:          q.Get("q"),
		Sender:         q.Get("sender"),
		HasAttachments: q.Get("attachments") == "1" || q.Get("attachments") == "true",
		Limit:          intParam(r, "limit", defaultPageSize),
		Offset:         intParam(r, "offset", 0),
	}

	results, err := h.db.SearchMessages(filter)
	if err != nil {
		h.logger.Error().Err(err).Str("query", filter.Query).Msg("Search failed")
		http.Error(w, "Search failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, results)
}
