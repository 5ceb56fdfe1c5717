package scanner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/felo/mail-extractor/internal/model"
)

// Mode selects how the scanner resolves its source
type Mode string

const (
	// ModeDirectory lists the direct children of a directory
	ModeDirectory Mode = "directory"
	// ModeList uses an explicit list of paths as given
	ModeList Mode = "list"
)

// Scanner resolves a configured source into candidate message paths
type Scanner struct {
	mode     Mode
	rootPath string
	paths    []string
}

// New creates a scanner for the given mode. inputPath is used in directory
// mode and paths in list mode.
func New(mode Mode, inputPath string, paths []string) (*Scanner, error) {
	switch mode {
	case ModeDirectory:
		return NewScanner(inputPath), nil
	case ModeList:
		return NewListScanner(paths), nil
	default:
		return nil, fmt.Errorf("unknown scan mode %q", mode)
	}
}

// NewScanner creates a scanner listing the direct children of rootPath
func NewScanner(rootPath string) *Scanner {
	return &Scanner{
		mode:     ModeDirectory,
		rootPath: rootPath,
	}
}

// NewListScanner creates a scanner that yields paths unchanged and in order
func NewListScanner(paths []string) *Scanner {
	return &Scanner{
		mode:  ModeList,
		paths: append([]string(nil), paths...),
	}
}

// GetRootPath returns the directory being listed (empty in list mode)
func (s *Scanner) GetRootPath() string {
	return s.rootPath
}

// Mode reports the scanner's mode
func (s *Scanner) Mode() Mode {
	return s.mode
}

// Scan returns the candidate paths. Directory mode does not recurse and
// ignores subdirectories; callers must not rely on the listing order.
func (s *Scanner) Scan() ([]string, error) {
	if s.mode == ModeList {
		return append([]string(nil), s.paths...), nil
	}

	entries, err := os.ReadDir(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list %s: %w", model.ErrAccess, s.rootPath, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, filepath.Join(s.rootPath, entry.Name()))
	}

	return files, nil
}

// ScanWithCallback scans and calls the callback for each path found
func (s *Scanner) ScanWithCallback(callback func(path string, index, total int) error) error {
	files, err := s.Scan()
	if err != nil {
		return err
	}

	total := len(files)
	for i, file := range files {
		if err := callback(file, i+1, total); err != nil {
			return fmt.Errorf("callback error for file %s: %w", file, err)
		}
	}

	return nil
}
