package extractor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog"

	"github.com/felo/mail-extractor/internal/model"
)

// SourceSet tracks the enumerated source paths of a run and which of them
// have been fully processed. Only processed paths are ever deleted.
type SourceSet struct {
	paths     []string
	processed map[string]bool
	logger    zerolog.Logger
}

// DeleteResult is the outcome of deleting one source
type DeleteResult struct {
	Path string
	Err  error
}

// NewSourceSet creates a set holding a copy of paths
func NewSourceSet(paths []string, logger zerolog.Logger) *SourceSet {
	return &SourceSet{
		paths:     append([]string(nil), paths...),
		processed: make(map[string]bool),
		logger:    logger,
	}
}

// MarkProcessed records that path was decoded and all its attachments were
// written
func (s *SourceSet) MarkProcessed(path string) {
	s.processed[path] = true
}

// Processed reports whether path was marked processed
func (s *SourceSet) Processed(path string) bool {
	return s.processed[path]
}

// Snapshot returns a copy of the paths still in the set
func (s *SourceSet) Snapshot() []string {
	return append([]string(nil), s.paths...)
}

// Len returns the number of paths still in the set
func (s *SourceSet) Len() int {
	return len(s.paths)
}

// Remove deletes the file at path and drops it from the set. Paths that were
// not marked processed are refused and stay in the set. A file that is
// already gone is reported as an error but still dropped.
func (s *SourceSet) Remove(path string) DeleteResult {
	if !s.processed[path] {
		return DeleteResult{Path: path, Err: fmt.Errorf("refusing to delete unprocessed source %s", path)}
	}

	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("%w: failed to delete %s: %w", model.ErrAccess, path, err)
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to delete source")
		return DeleteResult{Path: path, Err: err}
	}

	s.drop(path)
	if err != nil {
		err = fmt.Errorf("%w: %s already removed: %w", model.ErrAccess, path, err)
		s.logger.Warn().Err(err).Str("path", path).Msg("Source already removed")
		return DeleteResult{Path: path, Err: err}
	}

	s.logger.Info().Str("path", path).Msg("Deleted source")
	return DeleteResult{Path: path}
}

// DeleteProcessed removes every processed path still in the set. It walks a
// snapshot so that removal never disturbs the iteration, and one failure
// never stops the others.
func (s *SourceSet) DeleteProcessed() []DeleteResult {
	results := make([]DeleteResult, 0)
	for _, path := range s.Snapshot() {
		if !s.processed[path] {
			continue
		}
		results = append(results, s.Remove(path))
	}
	return results
}

func (s *SourceSet) drop(path string) {
	kept := s.paths[:0]
	for _, p := range s.paths {
		if p != path {
			kept = append(kept, p)
		}
	}
	s.paths = kept
	delete(s.processed, path)
}
