// Package artifact stores conversion inputs and rendered outputs on disk.
// Callers hold opaque locations (paths relative to the store root), so the
// layout can change without touching persisted records.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrBadLocation indicates a location that does not resolve inside the store.
var ErrBadLocation = errors.New("location outside artifact store")

// Store lays files out as <base>/inputs/<user>/<uuid><ext> and
// <base>/outputs/<user>/<id>.{pdf,docx}.
type Store struct {
	baseDir    string
	inputsDir  string
	outputsDir string
}

// NewStore creates the store directories under baseDir.
func NewStore(baseDir string) (*Store, error) {
	s := &Store{
		baseDir:    baseDir,
		inputsDir:  filepath.Join(baseDir, "inputs"),
		outputsDir: filepath.Join(baseDir, "outputs"),
	}
	for _, dir := range []string{s.baseDir, s.inputsDir, s.outputsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating dir %s: %w", dir, err)
		}
	}
	return s, nil
}

// SaveInput persists an uploaded export and returns its location. The
// original filename contributes only its extension; names on disk are
// generated.
func (s *Store) SaveInput(userID, originalFilename string, data []byte) (string, error) {
	dir := filepath.Join(s.inputsDir, sanitizeSegment(userID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating input dir: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(originalFilename))
	name := uuid.NewString() + ext
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing input: %w", err)
	}
	return s.relative(path)
}

// SaveOutputs persists both rendered documents for a conversion and returns
// their locations (pdf first).
func (s *Store) SaveOutputs(userID, conversionID string, pdf, docx []byte) (string, string, error) {
	dir := filepath.Join(s.outputsDir, sanitizeSegment(userID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating output dir: %w", err)
	}

	pdfPath := filepath.Join(dir, conversionID+".pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
		return "", "", fmt.Errorf("writing pdf: %w", err)
	}
	docxPath := filepath.Join(dir, conversionID+".docx")
	if err := os.WriteFile(docxPath, docx, 0o644); err != nil {
		os.Remove(pdfPath)
		return "", "", fmt.Errorf("writing docx: %w", err)
	}

	pdfLoc, err := s.relative(pdfPath)
	if err != nil {
		return "", "", err
	}
	docxLoc, err := s.relative(docxPath)
	if err != nil {
		return "", "", err
	}
	return pdfLoc, docxLoc, nil
}

// Read returns the contents of a stored artifact.
func (s *Store) Read(location string) ([]byte, error) {
	path, err := s.resolve(location)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Remove deletes a stored artifact. Removing a missing artifact is a no-op.
func (s *Store) Remove(location string) error {
	path, err := s.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", location, err)
	}
	return nil
}

func (s *Store) relative(path string) (string, error) {
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil {
		return "", fmt.Errorf("relativizing %s: %w", path, err)
	}
	return filepath.ToSlash(rel), nil
}

// resolve maps a location back to an absolute path, rejecting anything that
// escapes the store root.
func (s *Store) resolve(location string) (string, error) {
	path := filepath.Join(s.baseDir, filepath.FromSlash(location))
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrBadLocation, location)
	}
	return path, nil
}

func sanitizeSegment(segment string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, segment)
}
