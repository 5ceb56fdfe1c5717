package parser

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/charmap"

	"github.com/felo/mail-extractor/internal/model"
)

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// EMLDecoder decodes RFC 5322 / MIME messages
type EMLDecoder struct{}

// NewEMLDecoder creates an .eml decoder
func NewEMLDecoder() *EMLDecoder {
	return &EMLDecoder{}
}

// Decode reads the whole file and parses it
func (d *EMLDecoder) Decode(path string) (*Decoded, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", model.ErrAccess, path, err)
	}

	decoded, err := ParseEML(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", model.ErrDecode, path, err)
	}
	return decoded, nil
}

// ParseEML parses an email from a reader. The body prefers the first
// text/plain part, then the first text/html part rendered to text.
func ParseEML(r io.Reader) (*Decoded, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}
	defer mr.Close()

	msg := model.NewMessage()
	header := mr.Header

	if subject, err := header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = header.Get("Subject")
	}
	msg.Sender = headerText(header, "From")
	msg.To = headerText(header, "To")
	msg.CC = headerText(header, "Cc")
	msg.BCC = headerText(header, "Bcc")
	msg.Date = strings.TrimSpace(header.Get("Date"))

	decoded := &Decoded{Message: msg}

	var plain, htmlBody string
	var havePlain, haveHTML bool
	considerBody := func(contentType string, body io.Reader) error {
		data, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}
		switch {
		case contentType == "text/plain" && !havePlain:
			plain, havePlain = string(data), true
		case contentType == "text/html" && !haveHTML:
			htmlBody, haveHTML = string(data), true
		}
		return nil
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}
		if part == nil {
			continue
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			if contentType == "" {
				contentType = "text/plain"
			}
			// Named inline parts are attachments unless they fill an empty
			// body slot
			bodySlot := (contentType == "text/plain" && !havePlain) || (contentType == "text/html" && !haveHTML)
			if filename := partFilename(h.Header); filename != "" && !bodySlot {
				if err := appendAttachment(decoded, filename, part.Body); err != nil {
					return nil, err
				}
				continue
			}
			if err := considerBody(contentType, part.Body); err != nil {
				return nil, err
			}

		case *mail.AttachmentHeader:
			filename, err := h.Filename()
			if err != nil || filename == "" {
				filename = partFilename(h.Header)
			}
			if filename == "" {
				// A part without Content-Type defaults to text/plain
				disposition, _, _ := h.ContentDisposition()
				if contentType, _, _ := h.ContentType(); contentType == "" && disposition != "attachment" {
					if err := considerBody("text/plain", part.Body); err != nil {
						return nil, err
					}
				}
				continue
			}

			if err := appendAttachment(decoded, filename, part.Body); err != nil {
				return nil, err
			}
		}
	}

	switch {
	case havePlain:
		msg.Body = plain
	case haveHTML:
		msg.Body = RenderHTML(htmlBody)
	}

	return decoded, nil
}

// headerText returns the decoded value of an address-list header, falling
// back to the raw value when the encoded words cannot be decoded.
func headerText(h mail.Header, key string) string {
	if v, err := h.Text(key); err == nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(h.Get(key))
}

func appendAttachment(decoded *Decoded, filename string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read attachment %s: %w", filename, err)
	}
	decoded.Attachments = append(decoded.Attachments, model.Attachment{
		Name: filename,
		Data: data,
	})
	return nil
}

// partFilename returns the filename parameter of the Content-Disposition,
// else the name parameter of the Content-Type.
func partFilename(h message.Header) string {
	name := ""
	if _, params, err := h.ContentDisposition(); err == nil {
		name = params["filename"]
	}
	if name == "" {
		if _, params, err := h.ContentType(); err == nil {
			name = params["name"]
		}
	}
	if name == "" {
		return ""
	}
	dec := &mime.WordDecoder{CharsetReader: charset.Reader}
	if decoded, err := dec.DecodeHeader(name); err == nil {
		return strings.TrimSpace(decoded)
	}
	return strings.TrimSpace(name)
}
