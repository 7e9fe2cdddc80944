package model

import (
	"time"

	"github.com/omniscope/libr/internal/errs"
)

// PresenceState tags the three states a document's file can be in.
type PresenceState string

const (
	// StatePresent means the file exists at Path as of the last scan or
	// watcher confirmation.
	StatePresent PresenceState = "present"
	// StateNever means the record is metadata-only and has never had a
	// file attached. This is a first-class state, not an error.
	StateNever PresenceState = "never"
	// StateMissing means the file vanished since it was last confirmed.
	StateMissing PresenceState = "missing"
)

// String returns the state tag.
func (s PresenceState) String() string { return string(s) }

// FilePresence records whether a document's file exists on disk.
//
// Valid transitions:
//
//	never   -> present  (Attach: file attached)
//	present -> missing  (MarkMissing: file disappeared)
//	missing -> present  (Relink: path or content-hash match)
//	missing -> never    (Detach: user detaches permanently)
//
// Any other transition is rejected.
type FilePresence struct {
	State PresenceState `json:"state"`

	// Path is the file's slash-separated path relative to the library
	// root. For StateMissing it is the last known path.
	Path string `json:"path,omitempty"`

	SizeBytes int64 `json:"size_bytes,omitempty"`

	// ContentHash is a hex SHA-256 over a bounded prefix of the file,
	// set only when hash-based move detection is enabled.
	ContentHash string `json:"content_hash,omitempty"`

	// LastSeenAt is when the file was last confirmed present. Set for
	// StateMissing (the moment of the last confirmation) and kept current
	// for StatePresent.
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// NeverHadFile returns the metadata-only presence.
func NeverHadFile() FilePresence {
	return FilePresence{State: StateNever}
}

// PresentFile returns a presence for a file confirmed on disk now.
func PresentFile(relPath string, size int64) FilePresence {
	now := time.Now().UTC()
	return FilePresence{
		State:      StatePresent,
		Path:       relPath,
		SizeBytes:  size,
		LastSeenAt: &now,
	}
}

// Attach transitions never -> present.
func (p *FilePresence) Attach(relPath string, size int64) error {
	if p.State != StateNever {
		return errs.Validationf("cannot attach a file to a document in state %q", p.State)
	}
	*p = PresentFile(relPath, size)
	return nil
}

// MarkMissing transitions present -> missing, keeping the last known path.
func (p *FilePresence) MarkMissing() error {
	if p.State != StatePresent {
		return errs.Validationf("cannot mark missing from state %q", p.State)
	}
	p.State = StateMissing
	if p.LastSeenAt == nil {
		now := time.Now().UTC()
		p.LastSeenAt = &now
	}
	return nil
}

// Relink transitions missing -> present at a (possibly new) path.
func (p *FilePresence) Relink(relPath string, size int64) error {
	if p.State != StateMissing {
		return errs.Validationf("cannot relink from state %q", p.State)
	}
	hash := p.ContentHash
	*p = PresentFile(relPath, size)
	p.ContentHash = hash
	return nil
}

// Detach transitions missing -> never, discarding the stale path.
func (p *FilePresence) Detach() error {
	if p.State != StateMissing {
		return errs.Validationf("cannot detach from state %q", p.State)
	}
	*p = NeverHadFile()
	return nil
}
