package cards

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/omniscope/libr/internal/model"
)

// TestSaveLoadDelete verifies the card round trip and idempotent delete.
func TestSaveLoadDelete(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "cards"))
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}

	doc := model.NewDocument("The Go Programming Language")
	doc.Presence = model.PresentFile("Books/gopl.pdf", 4096)
	if err := s.Save(doc); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := s.Load(doc.ID)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got == nil || got.Title != doc.Title || got.Presence.Path != "Books/gopl.pdf" {
		t.Errorf("Load() = %+v, want saved card back", got)
	}

	if err := s.Delete(doc.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := s.Delete(doc.ID); err != nil {
		t.Fatalf("repeat Delete() failed: %v", err)
	}
	got, err = s.Load(doc.ID)
	if err != nil || got != nil {
		t.Errorf("Load() after delete = %v, %v; want nil, nil", got, err)
	}
}

// TestLoad_TolerantOfCorruption verifies a mangled card reads as absent
// rather than failing.
func TestLoad_TolerantOfCorruption(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cards")
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	got, err := s.Load("bad")
	if err != nil || got != nil {
		t.Errorf("Load(corrupt) = %v, %v; want nil, nil", got, err)
	}
}

// TestList verifies only card files are listed.
func TestList(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cards")
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}

	doc := model.NewDocument("a")
	if err := s.Save(doc); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stray.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	ids, err := s.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != doc.ID {
		t.Errorf("List() = %v, want [%s]", ids, doc.ID)
	}
}
