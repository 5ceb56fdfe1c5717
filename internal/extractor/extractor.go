// Package extractor drives the extraction pipeline: enumerate sources,
// dispatch each one to its decoder, write its attachments and record the
// result. Files are processed one at a time in enumeration order.
package extractor

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/felo/mail-extractor/internal/attachments"
	"github.com/felo/mail-extractor/internal/model"
	"github.com/felo/mail-extractor/internal/parser"
)

// Source yields the candidate message paths for a run
type Source interface {
	Scan() ([]string, error)
}

// Router picks a decoder for a path without opening it
type Router interface {
	For(path string) (parser.Decoder, bool)
}

// Index receives every processed message together with its attachment
// payloads. It is optional.
type Index interface {
	StoreMessage(source string, msg *model.Message, payloads []model.Attachment) error
}

// Options controls a run
type Options struct {
	OutputDir string
	Overwrite bool
	// Delete removes each source right after it has been fully processed
	Delete bool
}

// Extractor runs the pipeline over one source
type Extractor struct {
	opts     Options
	source   Source
	router   Router
	writer   *attachments.Writer
	index    Index
	progress func(current, total int, path string)
	logger   zerolog.Logger
}

// New creates an extractor
func New(opts Options, source Source, router Router, logger zerolog.Logger) *Extractor {
	return &Extractor{
		opts:   opts,
		source: source,
		router: router,
		writer: attachments.NewWriter(opts.OutputDir, opts.Overwrite, logger),
		logger: logger,
	}
}

// WithProgress sets a callback invoked after each enumerated path
func (e *Extractor) WithProgress(fn func(current, total int, path string)) *Extractor {
	e.progress = fn
	return e
}

// WithIndex stores every processed message in idx as well
func (e *Extractor) WithIndex(idx Index) *Extractor {
	e.index = idx
	return e
}

// Result contains the outcome of a run
type Result struct {
	Collection *model.Collection
	Sources    *SourceSet

	TotalFound         int
	Processed          int
	Partial            int
	Skipped            int
	Failed             int
	FailedFiles        []string
	AttachmentsWritten int
	AttachmentErrors   int
	IndexErrors        int
	Deleted            []DeleteResult
}

// LogSummary writes the run counts as one log line
func (r *Result) LogSummary(logger zerolog.Logger) {
	deleted, deleteFailed := 0, 0
	for _, d := range r.Deleted {
		if d.Err != nil {
			deleteFailed++
		} else {
			deleted++
		}
	}

	ev := logger.Info()
	if r.Failed > 0 || r.AttachmentErrors > 0 || deleteFailed > 0 {
		ev = logger.Warn()
	}
	ev.Int("found", r.TotalFound).
		Int("processed", r.Processed).
		Int("partial", r.Partial).
		Int("skipped", r.Skipped).
		Int("failed", r.Failed).
		Int("attachments", r.AttachmentsWritten).
		Int("attachment_errors", r.AttachmentErrors).
		Int("deleted", deleted).
		Int("delete_errors", deleteFailed).
		Msg("Extraction complete")

	for _, f := range r.FailedFiles {
		logger.Warn().Str("path", f).Msg("Not extracted")
	}
}

type fileStatus int

const (
	statusProcessed fileStatus = iota
	statusPartial
	statusSkipped
	statusFailed
)

// Run processes every enumerated path. Only a failure to enumerate the
// source is returned; per-file failures are logged and counted.
func (e *Extractor) Run() (*Result, error) {
	files, err := e.source.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan for files: %w", err)
	}

	result := &Result{
		Collection:  model.NewCollection(),
		Sources:     NewSourceSet(files, e.logger),
		TotalFound:  len(files),
		FailedFiles: make([]string, 0),
	}

	e.logger.Debug().Int("files", len(files)).Str("output", e.opts.OutputDir).Msg("Starting extraction")

	for i, path := range files {
		switch e.processFile(path, result) {
		case statusProcessed:
			result.Processed++
			result.Sources.MarkProcessed(path)
			if e.opts.Delete {
				d := result.Sources.Remove(path)
				result.Deleted = append(result.Deleted, d)
			}
		case statusPartial:
			// Recorded, but the source is kept since an attachment is missing
			result.Processed++
			result.Partial++
		case statusSkipped:
			result.Skipped++
		case statusFailed:
			result.Failed++
			result.FailedFiles = append(result.FailedFiles, path)
		}

		if e.progress != nil {
			e.progress(i+1, len(files), path)
		}
	}

	return result, nil
}

// processFile decodes one file, writes its attachments in decoder order and
// adds the record to the collection
func (e *Extractor) processFile(path string, result *Result) fileStatus {
	dec, ok := e.router.For(path)
	if !ok {
		e.logger.Debug().Str("path", path).Msg("Skipping unrecognized file")
		return statusSkipped
	}

	decoded, err := dec.Decode(path)
	if err != nil {
		ev := e.logger.Error()
		if errors.Is(err, model.ErrAccess) {
			ev = e.logger.Warn()
		}
		ev.Err(err).Str("path", path).Msg("Failed to decode message")
		return statusFailed
	}

	msg := decoded.Message
	if msg == nil {
		msg = model.NewMessage()
	}

	complete := true
	for _, att := range decoded.Attachments {
		if att.Name == "" {
			continue
		}
		written, err := e.writer.Write(att.Name, att.Data)
		if err != nil {
			e.logger.Error().Err(err).Str("path", path).Str("attachment", att.Name).Msg("Failed to save attachment")
			result.AttachmentErrors++
			complete = false
		} else {
			result.AttachmentsWritten++
		}
		// The intended path is recorded even when the write failed
		msg.AddAttachment(att.Name, written)
	}

	key := filepath.Base(path)
	if _, exists := result.Collection.Get(key); exists {
		e.logger.Warn().Str("path", path).Str("key", key).Msg("Replacing record with the same file name")
	}
	result.Collection.Set(key, msg)

	if e.index != nil {
		if err := e.index.StoreMessage(key, msg, decoded.Attachments); err != nil {
			e.logger.Error().Err(err).Str("path", path).Msg("Failed to index message")
			result.IndexErrors++
		}
	}

	e.logger.Info().
		Str("path", path).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Msg("Extracted message")

	if !complete {
		return statusPartial
	}
	return statusProcessed
}
