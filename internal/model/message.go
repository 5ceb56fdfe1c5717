package model

// Message is the normalized metadata record produced for one decoded message,
// whatever container it came from.
type Message struct {
	Subject         string   `json:"subject"`
	Sender          string   `json:"sender"`
	To              string   `json:"to"`
	CC              string   `json:"cc"`
	BCC             string   `json:"bcc"`
	Date            string   `json:"date"`
	Body            string   `json:"body"`
	Attachments     []string `json:"attachments"`
	AttachmentPaths []string `json:"attachmentpaths"`
}

// NewMessage returns a Message with empty, non-nil attachment lists.
func NewMessage() *Message {
	return &Message{
		Attachments:     []string{},
		AttachmentPaths: []string{},
	}
}

// AddAttachment records an attachment name together with the path it was
// written to. Both lists always grow together.
func (m *Message) AddAttachment(name, path string) {
	m.Attachments = append(m.Attachments, name)
	m.AttachmentPaths = append(m.AttachmentPaths, path)
}

// Attachment is a payload handed from a decoder to the attachment writer.
// It is not retained once written.
type Attachment struct {
	Name string
	Data []byte
}
