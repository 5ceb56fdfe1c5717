package handlers

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/felo/mail-extractor/internal/attachments"
)

// sanitizeFilename removes dangerous characters from attachment filenames
func sanitizeFilename(filename string) string {
	cleaned := attachments.SanitizeFilename(filename)

	// Quotes are dropped from header values as well
	cleaned = strings.Map(func(r rune) rune {
		if r == '"' || r == '\'' {
			return -1
		}
		return r
	}, cleaned)

	// Limit length
	if len(cleaned) > 255 {
		cleaned = cleaned[:255]
	}

	// Fallback if empty
	if cleaned == "" {
		cleaned = "download.bin"
	}

	return cleaned
}

// DownloadAttachment serves the stored payload of one attachment
func (h *Handlers) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid attachment ID", http.StatusBadRequest)
		return
	}

	att, err := h.db.GetAttachmentByID(id)
	if err != nil {
		h.logger.Error().Err(err).Int64("id", id).Msg("Failed to load attachment")
		http.Error(w, "Failed to load attachment", http.StatusInternalServerError)
		return
	}
	if att == nil {
		http.Error(w, "Attachment not found", http.StatusNotFound)
		return
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{
			"filename": sanitizeFilename(att.Filename),
		}))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(int64(len(att.Data)), 10))
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if _, err := w.Write(att.Data); err != nil {
		h.logger.Warn().Err(err).Int64("id", id).Msg("Failed to write attachment")
	}
}
