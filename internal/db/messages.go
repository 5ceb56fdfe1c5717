package db

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/felo/mail-extractor/internal/model"
)

// NullTime is a custom type that handles both string and time.Time from SQLite
type NullTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner for NullTime
func (nt *NullTime) Scan(value interface{}) error {
	if value == nil {
		nt.Time, nt.Valid = time.Time{}, false
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		nt.Time, nt.Valid = v, true
		return nil
	case string:
		t, err := parseTimestamp(v)
		if err != nil {
			return err
		}
		nt.Time, nt.Valid = t, true
		return nil
	default:
		return fmt.Errorf("unsupported Scan type for NullTime: %T", value)
	}
}

// Value implements driver.Valuer for NullTime
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return nil, nil
	}
	return nt.Time, nil
}

// SQLite timestamp layouts seen from CURRENT_TIMESTAMP and the driver
var timestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 -0700",
	"2006-01-02 15:04:05 -0700 -0700",
	"2006-01-02 15:04:05.999999999 -0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
}

func parseTimestamp(v string) (time.Time, error) {
	var err error
	for _, format := range timestampFormats {
		var t time.Time
		t, err = time.Parse(format, v)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse time string %q: %w", v, err)
}

// Message is an indexed message row
type Message struct {
	ID              int64    `json:"id"`
	Source          string   `json:"source"`
	Subject         string   `json:"subject"`
	Sender          string   `json:"sender"`
	To              string   `json:"to"`
	CC              string   `json:"cc"`
	BCC             string   `json:"bcc"`
	Date            string   `json:"date"`
	Body            string   `json:"body,omitempty"`
	AttachmentCount int      `json:"attachment_count"`
	IndexedAt       NullTime `json:"-"`
}

// Attachment is an indexed attachment. Data is only loaded by
// GetAttachmentByID.
type Attachment struct {
	ID          int64  `json:"id"`
	MessageID   int64  `json:"message_id"`
	Position    int    `json:"position"`
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Data        []byte `json:"-"`
}

// StoreMessage indexes one extracted message with its attachment payloads.
// Payloads pair up positionally with msg.AttachmentPaths; nameless payloads
// are ignored as they never receive a path.
func (db *DB) StoreMessage(source string, msg *model.Message, payloads []model.Attachment) error {
	_, err := db.InsertMessage(source, msg, payloads)
	return err
}

// InsertMessage replaces any row for source with msg and returns the new ID
func (db *DB) InsertMessage(source string, msg *model.Message, payloads []model.Attachment) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM messages WHERE source = ?", source); err != nil {
		return 0, fmt.Errorf("failed to replace message %s: %w", source, err)
	}

	result, err := tx.Exec(`
		INSERT INTO messages (
			source, subject, sender, to_addrs, cc, bcc, date, body, attachment_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		source, msg.Subject, msg.Sender, msg.To, msg.CC, msg.BCC, msg.Date, msg.Body, len(msg.Attachments),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get message id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO attachments (message_id, position, filename, path, content_type, size, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare attachment statement: %w", err)
	}
	defer stmt.Close()

	position := 0
	for _, p := range payloads {
		if p.Name == "" {
			continue
		}
		if position >= len(msg.AttachmentPaths) {
			break
		}
		contentType := mimetype.Detect(p.Data).String()
		if _, err := stmt.Exec(id, position, msg.Attachments[position], msg.AttachmentPaths[position], contentType, len(p.Data), p.Data); err != nil {
			return 0, fmt.Errorf("failed to insert attachment %s: %w", p.Name, err)
		}
		position++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

const messageColumns = `id, source, subject, sender, to_addrs, cc, bcc, date, body, attachment_count, indexed_at`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	m := &Message{}
	var subject, sender, to, cc, bcc, date, body sql.NullString
	err := row.Scan(&m.ID, &m.Source, &subject, &sender, &to, &cc, &bcc, &date, &body, &m.AttachmentCount, &m.IndexedAt)
	if err != nil {
		return nil, err
	}
	m.Subject, m.Sender, m.To = subject.String, sender.String, to.String
	m.CC, m.BCC, m.Date, m.Body = cc.String, bcc.String, date.String, body.String
	return m, nil
}

// GetMessageBySource retrieves a message by its source file name, or nil
func (db *DB) GetMessageBySource(source string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE source = ?`, source))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return m, nil
}

// ListMessages returns messages in indexing order with pagination. Bodies
// are left out.
func (db *DB) ListMessages(limit, offset int) ([]*Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Body = ""
		messages = append(messages, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// CountMessages returns the number of indexed messages
func (db *DB) CountMessages() (int, error) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

// GetAttachmentsByMessageID lists attachment metadata in record order
func (db *DB) GetAttachmentsByMessageID(messageID int64) ([]*Attachment, error) {
	rows, err := db.Query(`
		SELECT id, message_id, position, filename, path, content_type, size
		FROM attachments
		WHERE message_id = ?
		ORDER BY position ASC
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	attachments := make([]*Attachment, 0)
	for rows.Next() {
		a := &Attachment{}
		if err := rows.Scan(&a.ID, &a.MessageID, &a.Position, &a.Filename, &a.Path, &a.ContentType, &a.Size); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}
	return attachments, nil
}

// GetAttachmentByID retrieves an attachment including its data, or nil
func (db *DB) GetAttachmentByID(id int64) (*Attachment, error) {
	a := &Attachment{}
	err := db.QueryRow(`
		SELECT id, message_id, position, filename, path, content_type, size, data
		FROM attachments WHERE id = ?
	`, id).Scan(&a.ID, &a.MessageID, &a.Position, &a.Filename, &a.Path, &a.ContentType, &a.Size, &a.Data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return a, nil
}

// Record converts the row back to the extraction record shape
func (m *Message) Record(attachments []*Attachment) *model.Message {
	rec := model.NewMessage()
	rec.Subject = m.Subject
	rec.Sender = m.Sender
	rec.To = m.To
	rec.CC = m.CC
	rec.BCC = m.BCC
	rec.Date = m.Date
	rec.Body = m.Body
	for _, a := range attachments {
		rec.AddAttachment(a.Filename, a.Path)
	}
	return rec
}

// GetUniqueSenders retrieves senders ordered by frequency
func (db *DB) GetUniqueSenders(limit int) ([]string, error) {
	rows, err := db.Query(`
		SELECT sender, COUNT(*) as message_count
		FROM messages
		WHERE sender != ''
		GROUP BY sender
		ORDER BY message_count DESC, sender ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get unique senders: %w", err)
	}
	defer rows.Close()

	senders := make([]string, 0)
	for rows.Next() {
		var sender string
		var count int
		if err := rows.Scan(&sender, &count); err != nil {
			return nil, fmt.Errorf("failed to scan sender: %w", err)
		}
		senders = append(senders, sender)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating senders: %w", err)
	}

	return senders, nil
}

// Stats holds index statistics
type Stats struct {
	TotalMessages    int       `json:"total_messages"`
	WithAttachments  int       `json:"with_attachments"`
	TotalAttachments int       `json:"total_attachments"`
	LastIndexed      time.Time `json:"last_indexed"`
}

// GetStats returns current index statistics
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}

	if err := db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&stats.TotalMessages); err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	err := db.QueryRow("SELECT COUNT(*) FROM messages WHERE attachment_count > 0").Scan(&stats.WithAttachments)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages with attachments: %w", err)
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM attachments").Scan(&stats.TotalAttachments); err != nil {
		return nil, fmt.Errorf("failed to count attachments: %w", err)
	}

	var lastIndexed sql.NullString
	err = db.QueryRow("SELECT MAX(indexed_at) FROM messages").Scan(&lastIndexed)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get last indexed time: %w", err)
	}
	if lastIndexed.Valid {
		// Unparseable timestamps leave LastIndexed as zero time
		if t, err := parseTimestamp(lastIndexed.String); err == nil {
			stats.LastIndexed = t
		}
	}

	return stats, nil
}
