package parser

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Extensions recognized by the default dispatcher
const (
	ExtMSG = ".msg"
	ExtEML = ".eml"
)

// Dispatcher routes message files to decoders by extension
type Dispatcher struct {
	decoders map[string]Decoder
}

// NewDispatcher creates a dispatcher for .msg and .eml files
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{decoders: make(map[string]Decoder)}
	d.Register(ExtMSG, NewMSGDecoder(logger))
	d.Register(ExtEML, NewEMLDecoder())
	return d
}

// Register binds an extension (with leading dot) to a decoder, replacing
// any previous binding.
func (d *Dispatcher) Register(ext string, dec Decoder) {
	d.decoders[strings.ToLower(ext)] = dec
}

// For returns the decoder for path. It only looks at the name; the file is
// never opened. Unknown extensions report false.
func (d *Dispatcher) For(path string) (Decoder, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil, false
	}
	dec, ok := d.decoders[ext]
	return dec, ok
}
