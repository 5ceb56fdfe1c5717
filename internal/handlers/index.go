package handlers

import (
	"net/http"
)

const defaultPageSize = 50

// Stats reports index statistics and the settings of the last extraction
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get stats")
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}

	outputDir, err := h.db.GetSetting("output_dir")
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to get output directory")
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":      stats,
		"output_dir": outputDir,
	})
}

// ListMessages returns a page of indexed messages without bodies
func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", defaultPageSize)
	if limit == 0 {
		limit = defaultPageSize
	}
	offset := intParam(r, "offset", 0)

	count, err := h.db.CountMessages()
	if err != nil {
		http.Error(w, "Failed to get message count", http.StatusInternalServerError)
		return
	}

	messages, err := h.db.ListMessages(limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list messages")
		http.Error(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":    count,
		"limit":    limit,
		"offset":   offset,
		"messages": messages,
	})
}
