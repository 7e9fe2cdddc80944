// Package model defines the core records of the library: folders, documents,
// and the file-presence state machine that ties document records to files on
// disk.
package model

import (
	"time"

	"github.com/google/uuid"
)

// FolderKind distinguishes how a folder relates to the filesystem.
type FolderKind string

const (
	// KindPhysical is a folder backed by a real directory under the
	// library root. Its DiskPath is unique among physical folders.
	KindPhysical FolderKind = "physical"
	// KindVirtual is pure grouping metadata. It never owns a directory and
	// its document membership is many-to-many.
	KindVirtual FolderKind = "virtual"
	// KindLibraryRoot is the single folder representing the library root
	// directory itself. It cannot be renamed, moved, or deleted.
	KindLibraryRoot FolderKind = "library_root"
)

// Valid reports whether the kind is one of the known values.
func (k FolderKind) Valid() bool {
	switch k {
	case KindPhysical, KindVirtual, KindLibraryRoot:
		return true
	}
	return false
}

// OwnsDirectory reports whether folders of this kind carry a disk path.
func (k FolderKind) OwnsDirectory() bool {
	return k == KindPhysical || k == KindLibraryRoot
}

// Folder is a single folder record. Physical folders mirror a directory under
// the library root; virtual folders exist only in the index.
type Folder struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Kind     FolderKind `json:"kind"`
	ParentID string     `json:"parent_id,omitempty"` // empty only for the library root

	// DiskPath is the slash-separated path relative to the library root.
	// Present iff Kind.OwnsDirectory(); the library root uses "".
	DiskPath string `json:"disk_path,omitempty"`

	LibraryID string `json:"library_id,omitempty"`
	Icon      string `json:"icon,omitempty"`
	Color     string `json:"color,omitempty"`
	SortIndex int    `json:"sort_index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFolder creates a folder with a fresh UUIDv7 id and current timestamps.
func NewFolder(name string, kind FolderKind) *Folder {
	now := time.Now().UTC()
	return &Folder{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      name,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks field coherence. Name rules are checked separately by
// ValidateName so callers can reject bad input before building a record.
func (f *Folder) Validate() error {
	if f.ID == "" {
		return errRequired("id")
	}
	if !f.Kind.Valid() {
		return errInvalidKind(string(f.Kind))
	}
	if f.Kind == KindLibraryRoot {
		if f.ParentID != "" {
			return errRootHasParent()
		}
		return nil
	}
	if err := ValidateName(f.Name); err != nil {
		return err
	}
	if f.ParentID == "" {
		return errRequired("parent_id")
	}
	if f.Kind == KindVirtual && f.DiskPath != "" {
		return errVirtualDiskPath(f.Name)
	}
	if f.Kind == KindPhysical && f.DiskPath == "" {
		return errRequired("disk_path")
	}
	return nil
}

// Touch sets UpdatedAt to the current time.
func (f *Folder) Touch() {
	f.UpdatedAt = time.Now().UTC()
}
