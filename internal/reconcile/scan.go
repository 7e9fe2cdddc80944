// Package reconcile compares the relational index against the live
// filesystem and repairs drift in either direction.
//
// Reconciliation is a three-step pipeline: Scan walks the disk, Diff
// classifies every divergence between disk and index, and Apply commits the
// chosen repairs. Scan and Diff never mutate anything.
package reconcile

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path"
	"strings"

	"github.com/omniscope/libr/internal/actionlog"
	"github.com/omniscope/libr/internal/cards"
	"github.com/omniscope/libr/internal/errs"
	"github.com/omniscope/libr/internal/library"
	"github.com/omniscope/libr/internal/store"
	"github.com/omniscope/libr/internal/tree"
)

// DiskState is a snapshot of the managed tree on disk. Paths are
// slash-separated and library-relative.
type DiskState struct {
	// Dirs holds every directory under the root, excluding the root itself
	// and ignored subtrees.
	Dirs map[string]bool
	// Files maps each document file to its size in bytes.
	Files map[string]int64
}

// Reconciler drives the scan/diff/apply pipeline for one library. Applied
// repairs are mirrored into the in-memory tree so long-running callers keep a
// current view without a rebuild.
type Reconciler struct {
	db     *store.DB
	tree   *tree.Tree
	root   *library.Root
	cfg    *library.Config
	cards  *cards.Store
	alog   actionlog.Log
	logger *log.Logger
}

// New returns a reconciler for the given library. t, cardStore, and alog may
// be nil, in which case tree mirroring, card writes, and action logging are
// skipped.
func New(db *store.DB, t *tree.Tree, root *library.Root, cfg *library.Config, cardStore *cards.Store, alog actionlog.Log, logger *log.Logger) *Reconciler {
	return &Reconciler{db: db, tree: t, root: root, cfg: cfg, cards: cardStore, alog: alog, logger: logger}
}

// Scan walks the library directory and snapshots its state. The metadata
// directory, hidden entries, and configured ignore globs are skipped. Files
// are filtered by the extension allowlist.
func (r *Reconciler) Scan(ctx context.Context) (*DiskState, error) {
	state := &DiskState{
		Dirs:  make(map[string]bool),
		Files: make(map[string]int64),
	}

	rootPath := r.root.Path()
	err := fs.WalkDir(rootFS(rootPath), ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			return errs.Disk("scan", r.root.Abs(rel), err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if rel == "." {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if name == library.MetaDirName || strings.HasPrefix(name, ".") || r.ignored(rel) {
				return fs.SkipDir
			}
			state.Dirs[rel] = true
			return nil
		}

		if strings.HasPrefix(name, ".") || r.ignored(rel) || !r.allowedExtension(name) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return errs.Disk("stat", r.root.Abs(rel), err)
		}
		state.Files[rel] = info.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Printf("scanned %d dirs, %d files under %s",
		len(state.Dirs), len(state.Files), rootPath)
	return state, nil
}

// rootFS exposes the library directory as an fs.FS so walks produce
// slash-separated relative paths on every platform.
func rootFS(path string) fs.FS { return os.DirFS(path) }

// ignored reports whether a library-relative path matches a configured
// ignore glob, tested against the full path and its base name.
func (r *Reconciler) ignored(rel string) bool {
	base := path.Base(rel)
	for _, glob := range r.cfg.IgnoreGlobs {
		if ok, _ := path.Match(glob, rel); ok {
			return true
		}
		if ok, _ := path.Match(glob, base); ok {
			return true
		}
	}
	return false
}

// allowedExtension reports whether the file name carries a document
// extension from the allowlist.
func (r *Reconciler) allowedExtension(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" {
		return false
	}
	for _, allowed := range r.cfg.WatchExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
