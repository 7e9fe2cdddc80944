package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/omniscope/libr/internal/errs"
	"github.com/omniscope/libr/internal/model"
)

// Move pairs a missing document with the untracked file its content hash
// matched.
type Move struct {
	Doc     *model.Document
	NewPath string
	NewSize int64
}

// Report classifies every divergence between disk and index found by Diff.
// All paths are slash-separated and library-relative.
type Report struct {
	// UntrackedDirs are directories on disk with no folder row, sorted so
	// parents precede children.
	UntrackedDirs []string
	// OrphanedFolders are physical folder rows whose directory is gone.
	OrphanedFolders []*model.Folder
	// UntrackedFiles are document files on disk with no document row.
	UntrackedFiles []string
	// MissingFiles are present-state documents whose file is gone.
	MissingFiles []*model.Document
	// Relinked are missing-state documents whose last known path exists
	// again.
	Relinked []*model.Document
	// Moved are missing-state documents matched to untracked files by
	// content hash. Populated only with hash move detection enabled.
	Moved []Move
	// InSync counts documents whose file is exactly where the index says.
	InSync int
}

// IsClean reports whether disk and index fully agree.
func (rep *Report) IsClean() bool {
	return len(rep.UntrackedDirs) == 0 &&
		len(rep.OrphanedFolders) == 0 &&
		len(rep.UntrackedFiles) == 0 &&
		len(rep.MissingFiles) == 0 &&
		len(rep.Relinked) == 0 &&
		len(rep.Moved) == 0
}

// Diff compares a disk snapshot against the index and classifies every
// divergence. It reads the index but mutates nothing.
func (r *Reconciler) Diff(ctx context.Context, disk *DiskState) (*Report, error) {
	rep := &Report{}

	folderPaths, err := r.db.ListFolderPaths(ctx)
	if err != nil {
		return nil, err
	}
	indexedDirs := make(map[string]bool, len(folderPaths))
	for _, p := range folderPaths {
		indexedDirs[p] = true
	}

	for dir := range disk.Dirs {
		if !indexedDirs[dir] {
			rep.UntrackedDirs = append(rep.UntrackedDirs, dir)
		}
	}
	sort.Strings(rep.UntrackedDirs)

	folders, err := r.db.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range folders {
		if f.Kind == model.KindPhysical && f.DiskPath != "" && !disk.Dirs[f.DiskPath] {
			rep.OrphanedFolders = append(rep.OrphanedFolders, f)
		}
	}

	docPaths, err := r.db.ListPresentDocumentPaths(ctx)
	if err != nil {
		return nil, err
	}
	var untracked []string
	for file := range disk.Files {
		if _, ok := docPaths[file]; ok {
			rep.InSync++
		} else {
			untracked = append(untracked, file)
		}
	}
	sort.Strings(untracked)

	for path, docID := range docPaths {
		if _, ok := disk.Files[path]; !ok {
			doc, err := r.db.GetDocument(ctx, docID)
			if err != nil {
				return nil, err
			}
			rep.MissingFiles = append(rep.MissingFiles, doc)
		}
	}
	sort.Slice(rep.MissingFiles, func(i, j int) bool {
		return rep.MissingFiles[i].Presence.Path < rep.MissingFiles[j].Presence.Path
	})

	missing, err := r.db.ListMissingDocuments(ctx)
	if err != nil {
		return nil, err
	}
	missingByPath := make(map[string]*model.Document, len(missing))
	for _, d := range missing {
		if d.Presence.Path != "" {
			missingByPath[d.Presence.Path] = d
		}
	}

	claimed := make(map[string]bool)
	for _, file := range untracked {
		if doc, ok := missingByPath[file]; ok {
			rep.Relinked = append(rep.Relinked, doc)
			claimed[file] = true
		}
	}

	if r.cfg.HashMoveDetection {
		// Candidates: documents already missing in the index, plus the
		// ones this pass just found gone. A same-content untracked file
		// claims one as a move instead of missing+untracked.
		byHash := make(map[string]*model.Document)
		for _, d := range missing {
			if d.Presence.ContentHash != "" {
				byHash[d.Presence.ContentHash] = d
			}
		}
		for _, d := range rep.MissingFiles {
			if d.Presence.ContentHash != "" {
				byHash[d.Presence.ContentHash] = d
			}
		}

		movedIDs := make(map[string]bool)
		for _, file := range untracked {
			if claimed[file] {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			hash, err := r.HashFile(file)
			if err != nil {
				r.logger.Printf("hash %s: %v", file, err)
				continue
			}
			doc, ok := byHash[hash]
			if !ok {
				continue
			}
			rep.Moved = append(rep.Moved, Move{
				Doc:     doc,
				NewPath: file,
				NewSize: disk.Files[file],
			})
			claimed[file] = true
			movedIDs[doc.ID] = true
			delete(byHash, hash)
		}

		if len(movedIDs) > 0 {
			kept := rep.MissingFiles[:0]
			for _, d := range rep.MissingFiles {
				if !movedIDs[d.ID] {
					kept = append(kept, d)
				}
			}
			rep.MissingFiles = kept
		}
	}

	for _, file := range untracked {
		if !claimed[file] {
			rep.UntrackedFiles = append(rep.UntrackedFiles, file)
		}
	}

	return rep, nil
}

// HashFile computes the hex SHA-256 over the configured prefix of a
// library-relative file.
func (r *Reconciler) HashFile(rel string) (string, error) {
	abs := r.root.Abs(rel)
	f, err := os.Open(abs)
	if err != nil {
		return "", errs.Disk("open", abs, err)
	}
	defer f.Close()

	h := sha256.New()
	limit := r.cfg.HashPrefixBytes
	if limit <= 0 {
		limit = 256 * 1024
	}
	if _, err := io.Copy(h, io.LimitReader(f, limit)); err != nil {
		return "", errs.Disk("hash", abs, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Summary renders a one-line report overview for logs.
func (rep *Report) Summary() string {
	return fmt.Sprintf("in_sync=%d untracked_dirs=%d orphaned_folders=%d untracked_files=%d missing=%d relinked=%d moved=%d",
		rep.InSync, len(rep.UntrackedDirs), len(rep.OrphanedFolders),
		len(rep.UntrackedFiles), len(rep.MissingFiles), len(rep.Relinked), len(rep.Moved))
}
