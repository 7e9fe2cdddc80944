// Command libr manages a personal document library: an on-disk folder tree
// mirrored by a relational index, kept in sync by scan/diff/apply
// reconciliation and a live filesystem watcher.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/omniscope/libr/internal/actionlog"
	"github.com/omniscope/libr/internal/cards"
	"github.com/omniscope/libr/internal/library"
	"github.com/omniscope/libr/internal/logging"
	"github.com/omniscope/libr/internal/mutate"
	"github.com/omniscope/libr/internal/reconcile"
	"github.com/omniscope/libr/internal/store"
	"github.com/omniscope/libr/internal/tree"
)

var rootCmd = &cobra.Command{
	Use:   "libr",
	Short: "Folder and document synchronization for a personal library",
	Long: `libr keeps a document library's folder tree and its relational index
in sync. The library root carries a .libr/ metadata directory holding the
index database, per-document cards, the action log, and configuration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// session bundles everything an open library gives a command.
type session struct {
	root    *library.Root
	cfg     *library.Config
	db      *store.DB
	tree    *tree.Tree
	mutator *mutate.Mutator
	rec     *reconcile.Reconciler
	cards   *cards.Store
}

// openLibrary discovers the library from the working directory and builds
// the full engine stack. The caller must Close the session.
func openLibrary(ctx context.Context) (*session, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root := library.Discover(cwd)
	if root == nil {
		return nil, fmt.Errorf("no library found; run 'libr init' first")
	}

	cfg, err := root.LoadConfig()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(root.DatabasePath())
	if err != nil {
		return nil, err
	}

	folders, err := db.ListFolders(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	counts, err := db.DocCountsByFolder(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	t, err := tree.Build(folders, counts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	cardStore, err := cards.NewStore(root.CardsDir())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	alog := actionlog.NewFileLog(root.ActionLogPath())

	mutLogger := logging.New("[mutate] ", cfg.LogFile)
	recLogger := logging.New("[sync] ", cfg.LogFile)

	return &session{
		root:    root,
		cfg:     cfg,
		db:      db,
		tree:    t,
		mutator: mutate.New(db, t, root, cardStore, alog, mutLogger),
		rec:     reconcile.New(db, t, root, cfg, cardStore, alog, recLogger),
		cards:   cardStore,
	}, nil
}

func (s *session) Close() {
	if err := s.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// resolveFolder accepts a folder id or a library-relative disk path and
// returns the folder id. "" and "/" mean the library root.
func (s *session) resolveFolder(ref string) (string, error) {
	if ref == "" || ref == "/" || ref == "." {
		return s.tree.Root().Folder.ID, nil
	}
	if n, ok := s.tree.Get(ref); ok {
		return n.Folder.ID, nil
	}
	if n, ok := s.tree.GetByPath(ref); ok {
		return n.Folder.ID, nil
	}
	return "", fmt.Errorf("no folder with id or path %q", ref)
}
