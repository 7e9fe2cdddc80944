// Package cards persists one JSON card per document under the library
// metadata directory.
//
// Cards are a human-inspectable mirror of the index. The database remains
// authoritative; a corrupt or missing card is tolerated on read.
package cards

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/omniscope/libr/internal/errs"
	"github.com/omniscope/libr/internal/model"
)

// Store reads and writes document cards in a directory.
type Store struct {
	dir string
}

// NewStore returns a card store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.Disk("create cards dir", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) cardPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Save writes the card for a document atomically.
func (s *Store) Save(d *model.Document) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode card %s: %w", d.ID, err)
	}

	path := s.cardPath(d.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return errs.Disk("write card", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errs.Disk("commit card", path, err)
	}
	return nil
}

// Load reads the card for a document id. Returns nil without error when the
// card is absent or unreadable.
func (s *Store) Load(id string) (*model.Document, error) {
	data, err := os.ReadFile(s.cardPath(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Disk("read card", s.cardPath(id), err)
	}

	var d model.Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, nil
	}
	return &d, nil
}

// Delete removes the card for a document id. Idempotent.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.cardPath(id))
	if err != nil && !os.IsNotExist(err) {
		return errs.Disk("delete card", s.cardPath(id), err)
	}
	return nil
}

// List returns the document ids that have cards on disk.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.Disk("list cards", s.dir, err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}
