package reconcile

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"strings"

	"github.com/omniscope/libr/internal/errs"
	"github.com/omniscope/libr/internal/model"
)

func statFile(abs string) (int64, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func errNoRootRow() error {
	return errs.Validationf("index has no library root folder; run init first")
}

func errNoFolderForDir(dir string) error {
	return errs.Validationf("no indexed folder for directory %q", dir)
}

// Mode selects how much of a report Apply commits.
type Mode int

const (
	// ModeMarkOnly applies only the present -> missing downgrades. Leaving
	// a record pointing at a nonexistent file is never correct, so these
	// are committed in every mode.
	ModeMarkOnly Mode = iota
	// ModeDiskWins additionally relinks reappeared files, imports
	// untracked directories and files, adopts hash-detected moves, and
	// removes folder rows whose directory is gone.
	ModeDiskWins
)

// Applied summarizes what Apply committed.
type Applied struct {
	FoldersImported int
	FoldersRemoved  int
	DocsImported    int
	DocsMarked      int
	DocsRelinked    int
	DocsMoved       int
}

// Apply commits the repairs from a report. Missing downgrades are applied in
// every mode; everything else only under ModeDiskWins.
//
// Directory imports run parents before children so each new folder row can
// reference its parent. Every committed folder import, document import,
// adopted move, and orphan removal is mirrored into the in-memory tree.
// Presence downgrades and relinks need no mirror: the document stays in its
// folder and the tree tracks only never-had-file records as ghosts.
func (r *Reconciler) Apply(ctx context.Context, rep *Report, mode Mode) (*Applied, error) {
	out := &Applied{}

	for _, doc := range rep.MissingFiles {
		if err := doc.Presence.MarkMissing(); err != nil {
			return out, err
		}
		doc.Touch()
		if err := r.db.UpsertDocument(ctx, doc); err != nil {
			return out, err
		}
		r.saveCard(doc)
		r.logAction("sync.doc_missing", nil, doc)
		out.DocsMarked++
	}

	if mode != ModeDiskWins {
		return out, nil
	}

	for _, doc := range rep.Relinked {
		size := int64(0)
		if info, err := statFile(r.root.Abs(doc.Presence.Path)); err == nil {
			size = info
		}
		if err := doc.Presence.Relink(doc.Presence.Path, size); err != nil {
			return out, err
		}
		doc.Touch()
		if err := r.db.UpsertDocument(ctx, doc); err != nil {
			return out, err
		}
		r.saveCard(doc)
		r.logAction("sync.doc_relinked", nil, doc)
		out.DocsRelinked++
	}

	// UntrackedDirs is sorted, so a parent always precedes its children.
	// Dirs go first so adopted moves and imported files can resolve their
	// owning folder.
	for _, dir := range rep.UntrackedDirs {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		f, err := r.importDir(ctx, dir)
		if err != nil {
			return out, err
		}
		r.treeCreated(f)
		r.logAction("sync.folder_imported", nil, f)
		out.FoldersImported++
	}

	for _, mv := range rep.Moved {
		oldPath := mv.Doc.Presence.Path
		oldFolderID := mv.Doc.FolderID
		if mv.Doc.Presence.State == model.StatePresent {
			if err := mv.Doc.Presence.MarkMissing(); err != nil {
				return out, err
			}
		}
		if err := mv.Doc.Presence.Relink(mv.NewPath, mv.NewSize); err != nil {
			return out, err
		}
		if folderID, _, err := r.folderIDForDir(ctx, path.Dir(mv.NewPath)); err == nil {
			mv.Doc.FolderID = folderID
		}
		mv.Doc.Touch()
		if err := r.db.UpsertDocument(ctx, mv.Doc); err != nil {
			return out, err
		}
		if mv.Doc.FolderID != oldFolderID {
			if oldFolderID != "" {
				r.treeCountDelta(oldFolderID, -1, 0)
			}
			if mv.Doc.FolderID != "" {
				r.treeCountDelta(mv.Doc.FolderID, 1, 0)
			}
		}
		r.saveCard(mv.Doc)
		r.logger.Printf("adopted move %s -> %s", oldPath, mv.NewPath)
		r.logAction("sync.doc_moved", oldPath, mv.Doc)
		out.DocsMoved++
	}

	for _, file := range rep.UntrackedFiles {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		doc, err := r.importFile(ctx, file)
		if err != nil {
			return out, err
		}
		r.treeCountDelta(doc.FolderID, 1, 0)
		r.logAction("sync.doc_imported", nil, doc)
		out.DocsImported++
	}

	removed := make(map[string]bool)
	for _, f := range rep.OrphanedFolders {
		if removed[f.ID] {
			continue
		}
		ids, err := r.db.ListSubtreeFolderIDs(ctx, f.ID)
		if err != nil {
			return out, err
		}
		if err := r.db.DeleteFolderCascade(ctx, f.ID); err != nil {
			return out, err
		}
		r.treeDeleted(f.ID)
		for _, id := range ids {
			removed[id] = true
		}
		r.logAction("sync.folder_removed", f, nil)
		out.FoldersRemoved++
	}

	r.logger.Printf("applied: folders +%d -%d, docs +%d, marked %d, relinked %d, moved %d",
		out.FoldersImported, out.FoldersRemoved, out.DocsImported,
		out.DocsMarked, out.DocsRelinked, out.DocsMoved)
	return out, nil
}

// importDir creates a physical folder row for an untracked directory. The
// parent row must already exist (root or a directory imported earlier in the
// same pass).
func (r *Reconciler) importDir(ctx context.Context, dir string) (*model.Folder, error) {
	parentID, libraryID, err := r.folderIDForDir(ctx, path.Dir(dir))
	if err != nil {
		return nil, err
	}

	f := model.NewFolder(path.Base(dir), model.KindPhysical)
	f.ParentID = parentID
	f.DiskPath = dir
	f.LibraryID = libraryID
	if err := r.db.CreateFolder(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// importFile creates a document row for an untracked file, titled from its
// filename.
func (r *Reconciler) importFile(ctx context.Context, file string) (*model.Document, error) {
	folderID, _, err := r.folderIDForDir(ctx, path.Dir(file))
	if err != nil {
		return nil, err
	}

	size := int64(0)
	if s, err := statFile(r.root.Abs(file)); err == nil {
		size = s
	}

	title, author := titleFromFilename(file)
	doc := model.NewDocument(title)
	doc.FolderID = folderID
	doc.Presence = model.PresentFile(file, size)
	if author != "" {
		meta, _ := json.Marshal(map[string]string{"author": author})
		doc.Meta = meta
	}
	if r.cfg.HashMoveDetection {
		if hash, err := r.HashFile(file); err == nil {
			doc.Presence.ContentHash = hash
		}
	}

	if err := r.db.UpsertDocument(ctx, doc); err != nil {
		return nil, err
	}
	r.saveCard(doc)
	return doc, nil
}

// folderIDForDir resolves a library-relative directory to its folder id.
// "" and "." resolve to the library root.
func (r *Reconciler) folderIDForDir(ctx context.Context, dir string) (id, libraryID string, err error) {
	if dir == "" || dir == "." {
		root, err := r.db.FindFolderByDiskPath(ctx, "")
		if err != nil {
			return "", "", err
		}
		if root == nil {
			return "", "", errNoRootRow()
		}
		return root.ID, root.LibraryID, nil
	}
	f, err := r.db.FindFolderByDiskPath(ctx, dir)
	if err != nil {
		return "", "", err
	}
	if f == nil {
		return "", "", errNoFolderForDir(dir)
	}
	return f.ID, f.LibraryID, nil
}

// titleFromFilename derives a title, and possibly an author, from a file
// path. Underscores read as spaces, and
// "Knuth - The Art of Computer Programming.pdf" splits on the first " - ";
// anything else becomes the title as-is.
func titleFromFilename(rel string) (title, author string) {
	base := path.Base(rel)
	stem := strings.TrimSuffix(base, path.Ext(base))
	stem = strings.ReplaceAll(stem, "_", " ")
	if before, after, ok := strings.Cut(stem, " - "); ok {
		before, after = strings.TrimSpace(before), strings.TrimSpace(after)
		if before != "" && after != "" {
			return after, before
		}
	}
	return strings.TrimSpace(stem), ""
}

func (r *Reconciler) treeCreated(f *model.Folder) {
	if r.tree == nil {
		return
	}
	if err := r.tree.ApplyCreated(f); err != nil {
		r.logger.Printf("tree: %v", err)
	}
}

func (r *Reconciler) treeDeleted(id string) {
	if r.tree == nil {
		return
	}
	if err := r.tree.ApplyDeleted(id); err != nil && !errs.IsNotFound(err) {
		r.logger.Printf("tree: %v", err)
	}
}

func (r *Reconciler) treeCountDelta(id string, docs, ghosts int) {
	if r.tree == nil {
		return
	}
	if err := r.tree.ApplyCountDelta(id, docs, ghosts); err != nil && !errs.IsNotFound(err) {
		r.logger.Printf("tree: %v", err)
	}
}

func (r *Reconciler) saveCard(doc *model.Document) {
	if r.cards == nil {
		return
	}
	if err := r.cards.Save(doc); err != nil {
		r.logger.Printf("card %s: %v", doc.ID, err)
	}
}

func (r *Reconciler) logAction(op string, before, after any) {
	if r.alog == nil {
		return
	}
	if err := r.alog.Append(op, before, after); err != nil {
		r.logger.Printf("action log: %v", err)
	}
}
