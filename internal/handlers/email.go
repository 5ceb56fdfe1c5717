package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/felo/mail-extractor/internal/db"
	"github.com/felo/mail-extractor/internal/model"
)

// messageResponse is one record as exported, plus download references
type messageResponse struct {
	Source      string           `json:"source"`
	Record      *model.Message   `json:"record"`
	Attachments []*db.Attachment `json:"attachments"`
}

// GetMessage returns a single record by its source file name
func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")

	msg, err := h.db.GetMessageBySource(source)
	if err != nil {
		h.logger.Error().Err(err).Str("source", source).Msg("Failed to load message")
		http.Error(w, "Failed to load message", http.StatusInternalServerError)
		return
	}
	if msg == nil {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}

	attachments, err := h.db.GetAttachmentsByMessageID(msg.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("source", source).Msg("Failed to load attachments")
		http.Error(w, "Failed to load attachments", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, messageResponse{
		Source:      msg.Source,
		Record:      msg.Record(attachments),
		Attachments: attachments,
	})
}
