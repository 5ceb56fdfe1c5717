package parser

import "github.com/felo/mail-extractor/internal/model"

// Decoded is the output of a decoder: the metadata record without
// attachment paths, plus the attachment payloads still to be written.
type Decoded struct {
	Message     *model.Message
	Attachments []model.Attachment
}

// Decoder turns one message file into a Decoded value. Attachments without a
// display name are never part of the result.
type Decoder interface {
	Decode(path string) (*Decoded, error)
}
