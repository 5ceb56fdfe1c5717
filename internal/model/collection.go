package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Collection maps source filenames to their records, remembering the order
// in which sources were added.
type Collection struct {
	keys    []string
	records map[string]*Message
}

// NewCollection creates an empty collection
func NewCollection() *Collection {
	return &Collection{records: make(map[string]*Message)}
}

// Set stores msg under source. Re-setting an existing source keeps its
// original position.
func (c *Collection) Set(source string, msg *Message) {
	if _, ok := c.records[source]; !ok {
		c.keys = append(c.keys, source)
	}
	c.records[source] = msg
}

// Get returns the record stored for source
func (c *Collection) Get(source string) (*Message, bool) {
	msg, ok := c.records[source]
	return msg, ok
}

// Keys returns source filenames in insertion order
func (c *Collection) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of records
func (c *Collection) Len() int {
	return len(c.keys)
}

// Columns lists the tabular projection's columns in order.
var Columns = []string{
	"subject", "sender", "to", "cc", "bcc", "date", "body", "attachments", "attachmentpaths",
}

// Rows projects the collection into one row per record, one value per
// column in Columns. List-valued attributes are rendered as JSON arrays.
func (c *Collection) Rows() ([][]string, error) {
	rows := make([][]string, 0, len(c.keys))
	for _, key := range c.keys {
		msg := c.records[key]
		names, err := json.Marshal(nonNil(msg.Attachments))
		if err != nil {
			return nil, fmt.Errorf("failed to encode attachments of %s: %w", key, err)
		}
		paths, err := json.Marshal(nonNil(msg.AttachmentPaths))
		if err != nil {
			return nil, fmt.Errorf("failed to encode attachment paths of %s: %w", key, err)
		}
		rows = append(rows, []string{
			msg.Subject, msg.Sender, msg.To, msg.CC, msg.BCC, msg.Date, msg.Body,
			string(names), string(paths),
		})
	}
	return rows, nil
}

// MarshalJSON encodes the collection as a JSON object whose members follow
// insertion order.
func (c *Collection) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		msg := *c.records[key]
		msg.Attachments = nonNil(msg.Attachments)
		msg.AttachmentPaths = nonNil(msg.AttachmentPaths)
		v, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to encode record %s: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of records, keeping document order.
func (c *Collection) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	c.keys = nil
	c.records = make(map[string]*Message)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected string key, got %v", tok)
		}
		msg := NewMessage()
		if err := dec.Decode(msg); err != nil {
			return fmt.Errorf("failed to decode record %s: %w", key, err)
		}
		msg.Attachments = nonNil(msg.Attachments)
		msg.AttachmentPaths = nonNil(msg.AttachmentPaths)
		c.Set(key, msg)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
