// Package attachments stores attachment payloads in an output directory
// under collision-safe names.
//
// With overwrite disabled, a display name "report.pdf" is written to the
// first free name among "report.pdf", "report (1).pdf", "report (2).pdf", ...
// Existence is checked against the directory itself, not against names used
// earlier in the run, so files left by previous runs are never replaced.
// The writer assumes it is the only process writing into the directory; a
// name created by someone else between the probe and the write is detected
// by the exclusive create and probing resumes, but no locking is done.
package attachments

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/felo/mail-extractor/internal/model"
)

// fallbackName is used when a display name has nothing usable left after
// sanitizing
const fallbackName = "attachment"

// Writer writes attachment payloads into one directory
type Writer struct {
	dir       string
	overwrite bool
	logger    zerolog.Logger
}

// NewWriter creates a writer for dir
func NewWriter(dir string, overwrite bool, logger zerolog.Logger) *Writer {
	return &Writer{
		dir:       dir,
		overwrite: overwrite,
		logger:    logger,
	}
}

// Dir returns the output directory
func (w *Writer) Dir() string {
	return w.dir
}

// Write stores data under a name derived from displayName and returns the
// destination path. On failure the intended path is still returned along
// with an error wrapping model.ErrAttachmentWrite.
func (w *Writer) Write(displayName string, data []byte) (string, error) {
	name := SanitizeFilename(displayName)

	if w.overwrite {
		path := filepath.Join(w.dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return path, fmt.Errorf("%w: %s: %w", model.ErrAttachmentWrite, path, err)
		}
		w.logger.Info().Str("path", path).Int("bytes", len(data)).Msg("Saved attachment")
		return path, nil
	}

	base, ext := SplitExt(name)
	for n := 0; ; n++ {
		path := filepath.Join(w.dir, CandidateName(base, ext, n))

		exists, err := fileExists(path)
		if err != nil {
			return path, fmt.Errorf("%w: %s: %w", model.ErrAttachmentWrite, path, err)
		}
		if exists {
			continue
		}

		err = writeExclusive(path, data)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return path, fmt.Errorf("%w: %s: %w", model.ErrAttachmentWrite, path, err)
		}

		w.logger.Info().Str("path", path).Int("bytes", len(data)).Msg("Saved attachment")
		return path, nil
	}
}

// CandidateName returns the n-th probe name: "base.ext" for 0, then
// "base (n).ext".
func CandidateName(base, ext string, n int) string {
	if n == 0 {
		return base + ext
	}
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}

// SplitExt splits a filename at its last dot. Names whose only dot is the
// leading one (".profile") have no extension.
func SplitExt(name string) (base, ext string) {
	ext = filepath.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

// SanitizeFilename removes directory components and control characters from
// an attachment filename
func SanitizeFilename(filename string) string {
	// Treat both separators as path separators regardless of platform
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filename)

	cleaned := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, filename)
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" || cleaned == "." || cleaned == ".." || cleaned == "/" {
		cleaned = fallbackName
	}

	return cleaned
}

func fileExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
