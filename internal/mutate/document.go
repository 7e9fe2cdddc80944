package mutate

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/omniscope/libr/internal/errs"
	"github.com/omniscope/libr/internal/model"
)

// CreateDocument creates a metadata-only document in a folder. No file is
// attached; the record starts in the never-had-file state.
func (m *Mutator) CreateDocument(ctx context.Context, folderID, title string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(title) == "" {
		return nil, errs.Validationf("document title must not be empty")
	}
	n, ok := m.tree.Get(folderID)
	if !ok {
		return nil, errs.NotFound("folder", folderID)
	}

	doc := model.NewDocument(title)
	doc.FolderID = folderID
	if err := m.db.UpsertDocument(ctx, doc); err != nil {
		return nil, errs.Index("create document", err)
	}
	if err := m.tree.ApplyCountDelta(folderID, 1, 1); err != nil {
		return nil, err
	}

	m.saveCard(doc)
	m.logAction("doc.created", nil, doc)
	m.logger.Printf("created document %q (%s) in %q", title, doc.ID, n.Folder.Name)
	return doc, nil
}

// MoveDocument moves a document into another folder.
//
// A never-had-file document changes only index and tree ownership. A present
// document's file is moved into the target directory; a name collision gets
// the first free numeric suffix, and the stored path is updated to match the
// file's actual location.
func (m *Mutator) MoveDocument(ctx context.Context, docID, targetFolderID string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.db.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	target, ok := m.tree.Get(targetFolderID)
	if !ok {
		return nil, errs.NotFound("folder", targetFolderID)
	}
	if target.Folder.Kind == model.KindVirtual {
		return nil, errs.Validationf("cannot own documents in virtual folder %q; add a membership instead", target.Folder.Name)
	}
	if doc.FolderID == targetFolderID {
		return doc, nil
	}

	before := *doc
	sourceFolderID := doc.FolderID

	undo := func() error { return nil }
	if doc.Presence.State == model.StatePresent {
		oldRel := doc.Presence.Path
		newRel, err := m.freeName(ctx, target.Folder.DiskPath, path.Base(oldRel))
		if err != nil {
			return nil, err
		}
		oldAbs, newAbs := m.root.Abs(oldRel), m.root.Abs(newRel)
		if err := os.Rename(oldAbs, newAbs); err != nil {
			return nil, errs.Disk("rename", oldAbs, err)
		}
		undo = func() error { return os.Rename(newAbs, oldAbs) }
		doc.Presence.Path = newRel
	}

	doc.FolderID = targetFolderID
	doc.Touch()
	if err := m.db.UpsertDocument(ctx, doc); err != nil {
		doc.FolderID = sourceFolderID
		doc.Presence.Path = before.Presence.Path
		return nil, m.rollback("move document", err, undo)
	}

	ghost := 0
	if doc.Presence.State == model.StateNever {
		ghost = 1
	}
	if sourceFolderID != "" {
		if err := m.tree.ApplyCountDelta(sourceFolderID, -1, -ghost); err != nil && !errs.IsNotFound(err) {
			return nil, err
		}
	}
	if err := m.tree.ApplyCountDelta(targetFolderID, 1, ghost); err != nil {
		return nil, err
	}

	m.saveCard(doc)
	m.logAction("doc.moved", &before, doc)
	m.logger.Printf("moved document %s to folder %s", docID, targetFolderID)
	return doc, nil
}

// DetachDocument transitions a missing document to never-had-file,
// discarding the stale path. The record and its metadata survive.
func (m *Mutator) DetachDocument(ctx context.Context, docID string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.db.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	before := *doc
	if err := doc.Presence.Detach(); err != nil {
		return nil, err
	}
	doc.Touch()
	if err := m.db.UpsertDocument(ctx, doc); err != nil {
		return nil, errs.Index("detach document", err)
	}
	if doc.FolderID != "" {
		if err := m.tree.ApplyCountDelta(doc.FolderID, 0, 1); err != nil && !errs.IsNotFound(err) {
			return nil, err
		}
	}

	m.saveCard(doc)
	m.logAction("doc.detached", &before, doc)
	return doc, nil
}

// AddToVirtualFolder adds a virtual-folder membership for a document.
func (m *Mutator) AddToVirtualFolder(ctx context.Context, docID, folderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.tree.Get(folderID)
	if !ok {
		return errs.NotFound("folder", folderID)
	}
	if n.Folder.Kind != model.KindVirtual {
		return errs.Validationf("folder %q is not virtual", n.Folder.Name)
	}
	doc, err := m.db.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if err := m.db.AddVirtualMembership(ctx, docID, folderID); err != nil {
		return errs.Index("add membership", err)
	}

	ghost := 0
	if doc.Presence.State == model.StateNever {
		ghost = 1
	}
	if err := m.tree.ApplyCountDelta(folderID, 1, ghost); err != nil {
		return err
	}
	m.logAction("doc.membership_added", nil, map[string]string{"document_id": docID, "folder_id": folderID})
	return nil
}

// RemoveFromVirtualFolder removes a virtual-folder membership.
func (m *Mutator) RemoveFromVirtualFolder(ctx context.Context, docID, folderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tree.Get(folderID); !ok {
		return errs.NotFound("folder", folderID)
	}
	doc, err := m.db.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	if err := m.db.RemoveVirtualMembership(ctx, docID, folderID); err != nil {
		return errs.Index("remove membership", err)
	}

	ghost := 0
	if doc.Presence.State == model.StateNever {
		ghost = 1
	}
	if err := m.tree.ApplyCountDelta(folderID, -1, -ghost); err != nil {
		return err
	}
	m.logAction("doc.membership_removed", map[string]string{"document_id": docID, "folder_id": folderID}, nil)
	return nil
}

// freeName returns a library-relative path in dir for base, appending
// " (2)", " (3)", ... before the extension until no file or record claims
// the name. A missing document's last known path counts as claimed, so the
// file it may yet relink to is never shadowed.
func (m *Mutator) freeName(ctx context.Context, dir, base string) (string, error) {
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	candidate := childPath(dir, base)
	for i := 2; ; i++ {
		abs := m.root.Abs(candidate)
		_, err := os.Stat(abs)
		if err != nil && !os.IsNotExist(err) {
			return "", errs.Disk("stat", abs, err)
		}
		if os.IsNotExist(err) {
			claimed, err := m.db.FindDocumentByPath(ctx, candidate)
			if err != nil {
				return "", err
			}
			if claimed == nil {
				return candidate, nil
			}
		}
		candidate = childPath(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
}
