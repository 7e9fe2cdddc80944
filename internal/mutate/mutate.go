// Package mutate implements the atomic folder and document operations.
//
// Every operation touches up to three targets: disk, the relational index,
// and the in-memory tree. The contract is all-or-nothing: a disk failure
// aborts before any index write, and an index failure after a disk change
// triggers a compensating disk rollback captured as an undo closure before
// the disk step ran. Only when that rollback itself fails does the operation
// surface a PartialFailure, which callers should answer with a full sync.
//
// Operations are serialized by a mutex. The engine has a single mutating
// actor at a time; readers of the tree are never blocked for longer than one
// operation.
package mutate

import (
	"context"
	"log"
	"os"
	"path"
	"sync"

	"github.com/omniscope/libr/internal/actionlog"
	"github.com/omniscope/libr/internal/cards"
	"github.com/omniscope/libr/internal/errs"
	"github.com/omniscope/libr/internal/library"
	"github.com/omniscope/libr/internal/model"
	"github.com/omniscope/libr/internal/store"
	"github.com/omniscope/libr/internal/tree"
)

// Mutator applies structural changes to disk, index, and tree together.
type Mutator struct {
	mu     sync.Mutex
	db     *store.DB
	tree   *tree.Tree
	root   *library.Root
	cards  *cards.Store
	alog   actionlog.Log
	logger *log.Logger
}

// New returns a mutator for the given library. cardStore and alog may be
// nil.
func New(db *store.DB, t *tree.Tree, root *library.Root, cardStore *cards.Store, alog actionlog.Log, logger *log.Logger) *Mutator {
	if alog == nil {
		alog = actionlog.Nop{}
	}
	return &Mutator{db: db, tree: t, root: root, cards: cardStore, alog: alog, logger: logger}
}

// CreateFolder creates a folder under parentID. Physical folders get their
// directory created before the index write; the mkdir is rolled back if the
// index write fails.
func (m *Mutator) CreateFolder(ctx context.Context, parentID, name string, kind model.FolderKind) (*model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := model.ValidateName(name); err != nil {
		return nil, err
	}
	if kind != model.KindPhysical && kind != model.KindVirtual {
		return nil, errs.Validationf("cannot create a folder of kind %q", kind)
	}

	parent, ok := m.tree.Get(parentID)
	if !ok {
		return nil, errs.NotFound("folder", parentID)
	}
	if kind == model.KindPhysical && !parent.Folder.Kind.OwnsDirectory() {
		return nil, errs.Validationf("cannot create physical folder under virtual folder %q", parent.Folder.Name)
	}
	if taken, err := m.db.HasChildNamed(ctx, parentID, name); err != nil {
		return nil, err
	} else if taken {
		return nil, errs.Validationf("folder %q already exists under %q", name, parent.Folder.Name)
	}

	f := model.NewFolder(name, kind)
	f.ParentID = parentID
	f.LibraryID = parent.Folder.LibraryID

	undo := func() error { return nil }
	if kind == model.KindPhysical {
		f.DiskPath = childPath(parent.Folder.DiskPath, name)
		abs := m.root.Abs(f.DiskPath)
		if err := os.Mkdir(abs, 0755); err != nil {
			return nil, errs.Disk("mkdir", abs, err)
		}
		undo = func() error { return os.Remove(abs) }
	}

	if err := m.db.CreateFolder(ctx, f); err != nil {
		return nil, m.rollback("create folder", err, undo)
	}
	if err := m.tree.ApplyCreated(f); err != nil {
		return nil, err
	}

	m.logAction("folder.created", nil, f)
	m.logger.Printf("created %s folder %q (%s)", f.Kind, f.Name, f.ID)
	return f, nil
}

// RenameFolder renames a folder, rewriting the disk-path prefix of its whole
// subtree and every contained document. The directory is renamed first; the
// index rewrite is idempotent, so a retry after a failure between the two
// steps converges.
func (m *Mutator) RenameFolder(ctx context.Context, id, newName string) (*model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := model.ValidateName(newName); err != nil {
		return nil, err
	}
	n, ok := m.tree.Get(id)
	if !ok {
		return nil, errs.NotFound("folder", id)
	}
	f := n.Folder
	if f.Kind == model.KindLibraryRoot {
		return nil, errs.Validationf("cannot rename the library root")
	}
	if f.Name == newName {
		return f, nil
	}
	if taken, err := m.db.HasChildNamed(ctx, f.ParentID, newName); err != nil {
		return nil, err
	} else if taken {
		return nil, errs.Validationf("a sibling named %q already exists", newName)
	}

	before := *f
	oldPrefix := f.DiskPath
	newPrefix := oldPrefix

	undo := func() error { return nil }
	if f.Kind.OwnsDirectory() {
		parentPrefix := path.Dir(oldPrefix)
		if parentPrefix == "." {
			parentPrefix = ""
		}
		newPrefix = childPath(parentPrefix, newName)
		oldAbs, newAbs := m.root.Abs(oldPrefix), m.root.Abs(newPrefix)
		if err := os.Rename(oldAbs, newAbs); err != nil {
			return nil, errs.Disk("rename", oldAbs, err)
		}
		undo = func() error { return os.Rename(newAbs, oldAbs) }
	}

	updated := *f
	updated.Name = newName
	if err := m.db.RenameFolderPaths(ctx, &updated, oldPrefix, newPrefix); err != nil {
		return nil, m.rollback("rename folder", err, undo)
	}
	if err := m.tree.ApplyRenamed(id, newName, oldPrefix, newPrefix); err != nil {
		return nil, err
	}
	m.refreshSubtreeCards(ctx, id)

	m.logAction("folder.renamed", &before, f)
	m.logger.Printf("renamed folder %s: %q -> %q", id, before.Name, newName)
	return f, nil
}

// MoveFolder reparents a folder. Moving a folder into its own descendant is
// rejected by an ancestor walk from the destination. The directory move and
// the subtree prefix rewrite follow the rename protocol.
func (m *Mutator) MoveFolder(ctx context.Context, id, newParentID string) (*model.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.tree.Get(id)
	if !ok {
		return nil, errs.NotFound("folder", id)
	}
	f := n.Folder
	if f.Kind == model.KindLibraryRoot {
		return nil, errs.Validationf("cannot move the library root")
	}
	if f.ParentID == newParentID {
		return f, nil
	}

	dest, ok := m.tree.Get(newParentID)
	if !ok {
		return nil, errs.NotFound("folder", newParentID)
	}
	if err := m.checkCycle(id, newParentID); err != nil {
		return nil, err
	}
	if f.Kind == model.KindPhysical && !dest.Folder.Kind.OwnsDirectory() {
		return nil, errs.Validationf("cannot move physical folder under virtual folder %q", dest.Folder.Name)
	}
	if taken, err := m.db.HasChildNamed(ctx, newParentID, f.Name); err != nil {
		return nil, err
	} else if taken {
		return nil, errs.Validationf("folder %q already exists under %q", f.Name, dest.Folder.Name)
	}

	before := *f
	oldPrefix := f.DiskPath
	newPrefix := oldPrefix

	undo := func() error { return nil }
	if f.Kind.OwnsDirectory() {
		newPrefix = childPath(dest.Folder.DiskPath, f.Name)
		oldAbs, newAbs := m.root.Abs(oldPrefix), m.root.Abs(newPrefix)
		if err := os.Rename(oldAbs, newAbs); err != nil {
			return nil, errs.Disk("rename", oldAbs, err)
		}
		undo = func() error { return os.Rename(newAbs, oldAbs) }
	}

	updated := *f
	updated.ParentID = newParentID
	if err := m.db.RenameFolderPaths(ctx, &updated, oldPrefix, newPrefix); err != nil {
		return nil, m.rollback("move folder", err, undo)
	}
	if err := m.tree.ApplyMoved(id, newParentID, oldPrefix, newPrefix); err != nil {
		return nil, err
	}
	m.refreshSubtreeCards(ctx, id)

	m.logAction("folder.moved", &before, f)
	m.logger.Printf("moved folder %s under %s", id, newParentID)
	return f, nil
}

// DeleteMode selects what happens to a deleted folder's files.
type DeleteMode int

const (
	// KeepFiles removes the folder records but leaves the directory on
	// disk. Contained documents are detached and marked missing; the
	// directory becomes untracked and rediscoverable by a sync.
	KeepFiles DeleteMode = iota
	// WithFiles also removes the directory and its contents from disk.
	WithFiles
)

// PreviewDelete returns how many documents a delete would affect, for
// caller-side confirmation.
func (m *Mutator) PreviewDelete(ctx context.Context, id string) (int, error) {
	if _, ok := m.tree.Get(id); !ok {
		return 0, errs.NotFound("folder", id)
	}
	return m.db.CountDocumentsInSubtree(ctx, id)
}

// DeleteFolder removes a folder and its descendants from the index and the
// tree. The library root is never deletable.
//
// The index delete runs first: for WithFiles the disk removal is
// irreversible, so a failure there leaves the files untracked on disk, a
// state the reconciler repairs, rather than index rows pointing at removed
// paths.
func (m *Mutator) DeleteFolder(ctx context.Context, id string, mode DeleteMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.tree.Get(id)
	if !ok {
		return errs.NotFound("folder", id)
	}
	f := n.Folder
	if f.Kind == model.KindLibraryRoot {
		return errs.Validationf("cannot delete the library root")
	}

	// Collect the contained documents before the cascade clears their
	// folder_id, so their cards can be rewritten afterwards.
	contained, err := m.db.ListSubtreeDocuments(ctx, id)
	if err != nil {
		return err
	}

	before := *f
	if err := m.db.DeleteFolderCascade(ctx, id); err != nil {
		return err
	}
	if err := m.tree.ApplyDeleted(id); err != nil {
		return err
	}
	if m.cards != nil {
		for _, d := range contained {
			detached, err := m.db.GetDocument(ctx, d.ID)
			if err != nil {
				m.logger.Printf("card refresh %s: %v", d.ID, err)
				continue
			}
			m.saveCard(detached)
		}
	}

	if mode == WithFiles && f.Kind.OwnsDirectory() {
		abs := m.root.Abs(f.DiskPath)
		if err := os.RemoveAll(abs); err != nil {
			return errs.Disk("remove", abs, err)
		}
	}

	m.logAction("folder.deleted", &before, nil)
	m.logger.Printf("deleted folder %s (%q, mode=%d)", id, before.Name, mode)
	return nil
}

// checkCycle rejects a move whose destination is the folder itself or one of
// its descendants, walking ancestors up from the destination.
func (m *Mutator) checkCycle(id, destID string) error {
	chain, err := m.tree.Breadcrumb(destID)
	if err != nil {
		return err
	}
	for _, ancestor := range chain {
		if ancestor.ID == id {
			return errs.Validationf("cannot move a folder into its own subtree")
		}
	}
	return nil
}

// rollback runs the compensating disk action after an index failure.
func (m *Mutator) rollback(op string, indexErr error, undo func() error) error {
	if rbErr := undo(); rbErr != nil {
		m.logger.Printf("%s: rollback failed: %v (after %v)", op, rbErr, indexErr)
		return &errs.PartialFailure{Op: op, IndexErr: indexErr, RollbackErr: rbErr}
	}
	return errs.Index(op, indexErr)
}

func (m *Mutator) logAction(op string, before, after any) {
	if err := m.alog.Append(op, before, after); err != nil {
		m.logger.Printf("action log: %v", err)
	}
}

// refreshSubtreeCards rewrites the card of every document owned by the folder
// or its descendants, so the snapshots track a subtree path rewrite.
func (m *Mutator) refreshSubtreeCards(ctx context.Context, id string) {
	if m.cards == nil {
		return
	}
	docs, err := m.db.ListSubtreeDocuments(ctx, id)
	if err != nil {
		m.logger.Printf("card refresh: %v", err)
		return
	}
	for _, d := range docs {
		m.saveCard(d)
	}
}

func (m *Mutator) saveCard(doc *model.Document) {
	if m.cards == nil {
		return
	}
	if err := m.cards.Save(doc); err != nil {
		m.logger.Printf("card %s: %v", doc.ID, err)
	}
}

// childPath joins a parent disk path and a child name. The library root's
// disk path is empty, so its children sit at the top level.
func childPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
