package db

import (
	"fmt"
	"testing"

	"github.com/felo/mail-extractor/internal/model"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database
func CleanupTestDB(t *testing.T, db *DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("Failed to close test database: %v", err)
	}
}

// CreateTestMessage creates a record with default values
func CreateTestMessage(subject, sender, body string) *model.Message {
	msg := model.NewMessage()
	msg.Subject = subject
	msg.Sender = sender
	msg.To = "recipient@test.com"
	msg.Date = "Mon, 02 Jan 2006 15:04:05 -0700"
	msg.Body = body
	return msg
}

// CreateTestMessageWithAttachments adds count attachments named
// file<N>.txt with matching payloads
func CreateTestMessageWithAttachments(subject, sender, body string, count int) (*model.Message, []model.Attachment) {
	msg := CreateTestMessage(subject, sender, body)
	payloads := make([]model.Attachment, 0, count)
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("file%d.txt", i)
		msg.AddAttachment(name, "/out/"+name)
		payloads = append(payloads, model.Attachment{Name: name, Data: []byte("data " + name)})
	}
	return msg, payloads
}

// InsertTestMessages inserts records keyed by "<subject>.eml" and returns
// their IDs
func InsertTestMessages(t *testing.T, db *DB, messages []*model.Message) []int64 {
	t.Helper()

	ids := make([]int64, 0, len(messages))
	for i, msg := range messages {
		id, err := db.InsertMessage(fmt.Sprintf("%s.eml", msg.Subject), msg, nil)
		if err != nil {
			t.Fatalf("Failed to insert test message %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	return ids
}
