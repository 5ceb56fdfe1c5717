package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felo/mail-extractor/internal/db"
	"github.com/felo/mail-extractor/internal/model"
)

// setupTestHandlers creates a handlers instance over an in-memory index
func setupTestHandlers(t *testing.T) (*Handlers, *db.DB) {
	t.Helper()

	database := db.SetupTestDB(t)
	t.Cleanup(func() { db.CleanupTestDB(t, database) })

	return New(database, zerolog.Nop()), database
}

func serve(t *testing.T, h *Handlers, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func insertReport(t *testing.T, database *db.DB) {
	t.Helper()

	msg, payloads := db.CreateTestMessageWithAttachments("Report", "alice@test.com", "quarterly numbers", 2)
	_, err := database.InsertMessage("report.msg", msg, payloads)
	require.NoError(t, err)

	plain := db.CreateTestMessage("Lunch", "bob@test.com", "see you at noon")
	_, err = database.InsertMessage("lunch.eml", plain, nil)
	require.NoError(t, err)
}

func TestListMessages(t *testing.T) {
	h, database := setupTestHandlers(t)
	insertReport(t, database)

	rec := serve(t, h, "/messages?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Total    int           `json:"total"`
		Limit    int           `json:"limit"`
		Messages []*db.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, 1, body.Limit)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "report.msg", body.Messages[0].Source)
	assert.Equal(t, 2, body.Messages[0].AttachmentCount)
}

func TestGetMessage(t *testing.T) {
	h, database := setupTestHandlers(t)
	insertReport(t, database)

	rec := serve(t, h, "/messages/report.msg")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Source      string           `json:"source"`
		Record      model.Message    `json:"record"`
		Attachments []*db.Attachment `json:"attachments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "report.msg", body.Source)
	assert.Equal(t, "Report", body.Record.Subject)
	assert.Equal(t, "quarterly numbers", body.Record.Body)
	assert.Equal(t, []string{"file0.txt", "file1.txt"}, body.Record.Attachments)
	assert.Equal(t, []string{"/out/file0.txt", "/out/file1.txt"}, body.Record.AttachmentPaths)
	require.Len(t, body.Attachments, 2)
	assert.NotZero(t, body.Attachments[0].ID)
}

func TestGetMessage_NotFound(t *testing.T) {
	h, _ := setupTestHandlers(t)

	rec := serve(t, h, "/messages/missing.eml")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearch(t *testing.T) {
	h, database := setupTestHandlers(t)
	insertReport(t, database)

	rec := serve(t, h, "/search?q=quarterly")
	require.Equal(t, http.StatusOK, rec.Code)

	var results []*db.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "report.msg", results[0].Source)
	assert.Contains(t, results[0].Snippet, "<mark>quarterly</mark>")

	rec = serve(t, h, "/search?attachments=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "report.msg", results[0].Source)
}

func TestAutocompleteSenders(t *testing.T) {
	h, database := setupTestHandlers(t)
	insertReport(t, database)

	rec := serve(t, h, "/senders?limit=abc")
	require.Equal(t, http.StatusOK, rec.Code)

	var senders []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &senders))
	assert.ElementsMatch(t, []string{"alice@test.com", "bob@test.com"}, senders)
}

func TestStats(t *testing.T) {
	h, database := setupTestHandlers(t)
	insertReport(t, database)
	require.NoError(t, database.SetSetting("output_dir", "/data/out"))

	rec := serve(t, h, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Stats     db.Stats `json:"stats"`
		OutputDir string   `json:"output_dir"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Stats.TotalMessages)
	assert.Equal(t, 2, body.Stats.TotalAttachments)
	assert.Equal(t, "/data/out", body.OutputDir)
}

func TestDownloadAttachment(t *testing.T) {
	h, database := setupTestHandlers(t)
	insertReport(t, database)

	msg, err := database.GetMessageBySource("report.msg")
	require.NoError(t, err)
	atts, err := database.GetAttachmentsByMessageID(msg.ID)
	require.NoError(t, err)
	require.NotEmpty(t, atts)

	rec := serve(t, h, "/attachments/"+strconv.FormatInt(atts[0].ID, 10)+"/download")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "data file0.txt", rec.Body.String())
	assert.Equal(t, `attachment; filename=file0.txt`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestDownloadAttachment_Errors(t *testing.T) {
	h, _ := setupTestHandlers(t)

	assert.Equal(t, http.StatusBadRequest, serve(t, h, "/attachments/abc/download").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, h, "/attachments/42/download").Code)
}
