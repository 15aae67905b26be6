package artifact

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSaveInput_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := []byte(`{"messages":[]}`)

	loc, err := s.SaveInput("u1", "export.json", data)
	if err != nil {
		t.Fatalf("SaveInput: %v", err)
	}
	if !strings.HasPrefix(loc, "inputs/u1/") || !strings.HasSuffix(loc, ".json") {
		t.Errorf("location = %q", loc)
	}
	if strings.Contains(loc, "export") {
		t.Errorf("location %q leaks original filename", loc)
	}

	got, err := s.Read(loc)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("read-back mismatch")
	}
}

func TestSaveInput_DistinctLocations(t *testing.T) {
	s := newTestStore(t)
	a, err := s.SaveInput("u1", "export.json", []byte("a"))
	if err != nil {
		t.Fatalf("SaveInput: %v", err)
	}
	b, err := s.SaveInput("u1", "export.json", []byte("b"))
	if err != nil {
		t.Fatalf("SaveInput: %v", err)
	}
	if a == b {
		t.Errorf("same filename produced same location %q", a)
	}
}

func TestSaveOutputs(t *testing.T) {
	s := newTestStore(t)

	pdfLoc, docxLoc, err := s.SaveOutputs("u1", "c1", []byte("%PDF-"), []byte("PK"))
	if err != nil {
		t.Fatalf("SaveOutputs: %v", err)
	}
	if pdfLoc != "outputs/u1/c1.pdf" || docxLoc != "outputs/u1/c1.docx" {
		t.Errorf("locations = %q / %q", pdfLoc, docxLoc)
	}
	if got, _ := s.Read(pdfLoc); string(got) != "%PDF-" {
		t.Errorf("pdf content = %q", got)
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	loc, err := s.SaveInput("u1", "a.txt", []byte("x"))
	if err != nil {
		t.Fatalf("SaveInput: %v", err)
	}

	if err := s.Remove(loc); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Read(loc); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read after Remove err = %v", err)
	}
	// Second remove is a no-op.
	if err := s.Remove(loc); err != nil {
		t.Errorf("repeat Remove: %v", err)
	}
}

func TestResolve_RejectsEscapes(t *testing.T) {
	s := newTestStore(t)

	for _, loc := range []string{"../secret", "inputs/../../etc/passwd"} {
		if _, err := s.Read(loc); !errors.Is(err, ErrBadLocation) {
			t.Errorf("Read(%q) err = %v, want ErrBadLocation", loc, err)
		}
		if err := s.Remove(loc); !errors.Is(err, ErrBadLocation) {
			t.Errorf("Remove(%q) err = %v, want ErrBadLocation", loc, err)
		}
	}
}

func TestSanitizedUserDirs(t *testing.T) {
	s := newTestStore(t)
	loc, err := s.SaveInput("../evil", "a.json", []byte("x"))
	if err != nil {
		t.Fatalf("SaveInput: %v", err)
	}
	if strings.Contains(loc, "..") {
		t.Errorf("location %q contains traversal", loc)
	}
	if _, err := os.Stat(filepath.Join(s.baseDir, filepath.FromSlash(loc))); err != nil {
		t.Errorf("artifact not under store root: %v", err)
	}
}
