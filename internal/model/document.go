package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Document is a library record for one document. The metadata payload is
// authored by an external collaborator and treated opaquely here; this engine
// only owns identity, folder ownership, and file presence.
type Document struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	// FolderID is the owning physical folder, empty when detached.
	FolderID string `json:"folder_id,omitempty"`

	Presence FilePresence `json:"presence"`

	// Meta is the opaque metadata payload supplied by the metadata store.
	Meta json.RawMessage `json:"meta,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDocument creates a ghost document (no file) with a fresh UUIDv7 id.
func NewDocument(title string) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Title:     title,
		Presence:  NeverHadFile(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks required fields.
func (d *Document) Validate() error {
	if d.ID == "" {
		return errRequired("id")
	}
	if d.Title == "" {
		return errRequired("title")
	}
	switch d.Presence.State {
	case StatePresent, StateNever, StateMissing:
	default:
		return errInvalidKind(string(d.Presence.State))
	}
	if d.Presence.State != StateNever && d.Presence.Path == "" {
		return errRequired("presence.path")
	}
	return nil
}

// Touch sets UpdatedAt to the current time.
func (d *Document) Touch() {
	d.UpdatedAt = time.Now().UTC()
}
