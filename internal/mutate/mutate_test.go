package mutate

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/omniscope/libr/internal/actionlog"
	"github.com/omniscope/libr/internal/errs"
	"github.com/omniscope/libr/internal/library"
	"github.com/omniscope/libr/internal/model"
	"github.com/omniscope/libr/internal/store"
	"github.com/omniscope/libr/internal/tree"
)

// testLibrary builds a fresh on-disk library with an open store, a tree, and
// a mutator.
func testLibrary(t *testing.T) (*Mutator, *library.Root, *store.DB, *tree.Tree) {
	t.Helper()
	ctx := context.Background()

	root, err := library.Init(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("library.Init() failed: %v", err)
	}
	db, err := store.Open(root.DatabasePath())
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	rootFolder := model.NewFolder("test", model.KindLibraryRoot)
	if err := db.CreateFolder(ctx, rootFolder); err != nil {
		t.Fatalf("CreateFolder(root) failed: %v", err)
	}

	tr, err := tree.Build([]*model.Folder{rootFolder}, nil)
	if err != nil {
		t.Fatalf("tree.Build() failed: %v", err)
	}

	logger := log.New(os.Stderr, "[test] ", 0)
	m := New(db, tr, root, nil, actionlog.Nop{}, logger)
	return m, root, db, tr
}

// TestCreateFolder_Physical verifies the directory exists after create and
// the index and tree agree (post-condition: every physical folder's path
// resolves to a real directory).
func TestCreateFolder_Physical(t *testing.T) {
	m, root, db, tr := testLibrary(t)
	ctx := context.Background()

	f, err := m.CreateFolder(ctx, tr.Root().Folder.ID, "Books", model.KindPhysical)
	if err != nil {
		t.Fatalf("CreateFolder() failed: %v", err)
	}

	info, statErr := os.Stat(root.Abs(f.DiskPath))
	if statErr != nil || !info.IsDir() {
		t.Errorf("directory %s missing after create: %v", f.DiskPath, statErr)
	}
	if _, err := db.GetFolder(ctx, f.ID); err != nil {
		t.Errorf("GetFolder() failed: %v", err)
	}
	if _, ok := tr.GetByPath("Books"); !ok {
		t.Error("tree should index the new folder by path")
	}
}

// TestCreateFolder_BadNameRejected verifies validation happens before any
// disk change.
func TestCreateFolder_BadNameRejected(t *testing.T) {
	m, root, _, tr := testLibrary(t)
	ctx := context.Background()

	for _, bad := range []string{"", "a/b", "..", " lead"} {
		if _, err := m.CreateFolder(ctx, tr.Root().Folder.ID, bad, model.KindPhysical); !errs.IsValidation(err) {
			t.Errorf("CreateFolder(%q) = %v, want validation error", bad, err)
		}
	}

	entries, err := os.ReadDir(root.Path())
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	for _, e := range entries {
		if e.Name() != library.MetaDirName {
			t.Errorf("unexpected entry %q created by rejected operation", e.Name())
		}
	}
}

// TestCreateFolder_SiblingCollision verifies duplicate names under one
// parent are rejected.
func TestCreateFolder_SiblingCollision(t *testing.T) {
	m, _, _, tr := testLibrary(t)
	ctx := context.Background()

	if _, err := m.CreateFolder(ctx, tr.Root().Folder.ID, "Books", model.KindPhysical); err != nil {
		t.Fatalf("CreateFolder() failed: %v", err)
	}
	if _, err := m.CreateFolder(ctx, tr.Root().Folder.ID, "Books", model.KindVirtual); !errs.IsValidation(err) {
		t.Errorf("duplicate sibling = %v, want validation error", err)
	}
}

// TestRenameFolder_RewritesSubtree verifies the rename moves the directory
// and rewrites descendant and document paths.
func TestRenameFolder_RewritesSubtree(t *testing.T) {
	m, root, db, tr := testLibrary(t)
	ctx := context.Background()

	a, err := m.CreateFolder(ctx, tr.Root().Folder.ID, "a", model.KindPhysical)
	if err != nil {
		t.Fatalf("CreateFolder(a) failed: %v", err)
	}
	b, err := m.CreateFolder(ctx, a.ID, "b", model.KindPhysical)
	if err != nil {
		t.Fatalf("CreateFolder(b) failed: %v", err)
	}

	doc := model.NewDocument("f")
	doc.FolderID = b.ID
	doc.Presence = model.PresentFile("a/b/f.pdf", 2048)
	if err := os.WriteFile(root.Abs("a/b/f.pdf"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := db.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument() failed: %v", err)
	}

	if _, err := m.RenameFolder(ctx, a.ID, "x"); err != nil {
		t.Fatalf("RenameFolder() failed: %v", err)
	}

	if _, err := os.Stat(root.Abs("x/b/f.pdf")); err != nil {
		t.Errorf("file should be at x/b/f.pdf on disk: %v", err)
	}
	if _, err := os.Stat(root.Abs("a")); !os.IsNotExist(err) {
		t.Error("old directory 'a' should be gone")
	}
	gotDoc, _ := db.GetDocument(ctx, doc.ID)
	if gotDoc.Presence.Path != "x/b/f.pdf" {
		t.Errorf("doc path = %q, want x/b/f.pdf", gotDoc.Presence.Path)
	}
	if n, ok := tr.GetByPath("x/b"); !ok || n.Folder.ID != b.ID {
		t.Error("tree should index b at x/b")
	}
}

// TestMoveFolder_CycleRejected verifies moving a folder into its own subtree
// fails and leaves everything untouched.
func TestMoveFolder_CycleRejected(t *testing.T) {
	m, root, db, tr := testLibrary(t)
	ctx := context.Background()

	a, err := m.CreateFolder(ctx, tr.Root().Folder.ID, "a", model.KindPhysical)
	if err != nil {
		t.Fatalf("CreateFolder(a) failed: %v", err)
	}
	b, err := m.CreateFolder(ctx, a.ID, "b", model.KindPhysical)
	if err != nil {
		t.Fatalf("CreateFolder(b) failed: %v", err)
	}

	if _, err := m.MoveFolder(ctx, a.ID, b.ID); !errs.IsValidation(err) {
		t.Fatalf("MoveFolder(a, b) = %v, want cycle validation error", err)
	}
	if _, err := m.MoveFolder(ctx, a.ID, a.ID); !errs.IsValidation(err) {
		t.Fatalf("MoveFolder(a, a) = %v, want cycle validation error", err)
	}

	// Disk, index, and tree untouched.
	if _, err := os.Stat(root.Abs("a/b")); err != nil {
		t.Errorf("directory a/b should still exist: %v", err)
	}
	gotA, _ := db.GetFolder(ctx, a.ID)
	if gotA.ParentID != tr.Root().Folder.ID || gotA.DiskPath != "a" {
		t.Errorf("folder a changed: %+v", gotA)
	}
}

// TestMoveFolder_MovesDirectory verifies a legal move relocates the
// directory and rewrites the subtree prefix.
func TestMoveFolder_MovesDirectory(t *testing.T) {
	m, root, _, tr := testLibrary(t)
	ctx := context.Background()

	a, _ := m.CreateFolder(ctx, tr.Root().Folder.ID, "a", model.KindPhysical)
	b, _ := m.CreateFolder(ctx, a.ID, "b", model.KindPhysical)
	c, err := m.CreateFolder(ctx, tr.Root().Folder.ID, "c", model.KindPhysical)
	if err != nil {
		t.Fatalf("CreateFolder(c) failed: %v", err)
	}

	if _, err := m.MoveFolder(ctx, b.ID, c.ID); err != nil {
		t.Fatalf("MoveFolder() failed: %v", err)
	}

	if _, err := os.Stat(root.Abs("c/b")); err != nil {
		t.Errorf("directory should be at c/b: %v", err)
	}
	if n, ok := tr.GetByPath("c/b"); !ok || n.Folder.ID != b.ID {
		t.Error("tree should index b at c/b")
	}
}

// TestDeleteFolder_WithFilesRemovesSubtree covers the end-to-end case:
// create a/b, delete a with files, and the tree, index, and disk all forget
// the subtree.
func TestDeleteFolder_WithFilesRemovesSubtree(t *testing.T) {
	m, root, db, tr := testLibrary(t)
	ctx := context.Background()

	a, _ := m.CreateFolder(ctx, tr.Root().Folder.ID, "a", model.KindPhysical)
	b, err := m.CreateFolder(ctx, a.ID, "b", model.KindPhysical)
	if err != nil {
		t.Fatalf("CreateFolder(b) failed: %v", err)
	}
	if err := os.WriteFile(root.Abs("a/b/f.pdf"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	if err := m.DeleteFolder(ctx, a.ID, WithFiles); err != nil {
		t.Fatalf("DeleteFolder() failed: %v", err)
	}

	if _, ok := tr.Get(a.ID); ok {
		t.Error("tree still contains a")
	}
	if _, ok := tr.Get(b.ID); ok {
		t.Error("tree still contains a/b")
	}
	if _, err := db.GetFolder(ctx, a.ID); !errs.IsNotFound(err) {
		t.Errorf("GetFolder(a) = %v, want not-found", err)
	}
	if _, err := os.Stat(root.Abs("a")); !os.IsNotExist(err) {
		t.Error("directory 'a' should be removed from disk")
	}
}

// TestDeleteFolder_KeepFilesLeavesDisk verifies keep-files mode detaches
// documents but leaves the directory untracked on disk.
func TestDeleteFolder_KeepFilesLeavesDisk(t *testing.T) {
	m, root, db, tr := testLibrary(t)
	ctx := context.Background()

	a, _ := m.CreateFolder(ctx, tr.Root().Folder.ID, "a", model.KindPhysical)
	doc := model.NewDocument("f")
	doc.FolderID = a.ID
	doc.Presence = model.PresentFile("a/f.pdf", 2048)
	if err := os.WriteFile(root.Abs("a/f.pdf"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := db.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument() failed: %v", err)
	}

	if err := m.DeleteFolder(ctx, a.ID, KeepFiles); err != nil {
		t.Fatalf("DeleteFolder() failed: %v", err)
	}

	if _, err := os.Stat(root.Abs("a/f.pdf")); err != nil {
		t.Errorf("file should remain on disk: %v", err)
	}
	gotDoc, _ := db.GetDocument(ctx, doc.ID)
	if gotDoc.FolderID != "" || gotDoc.Presence.State != model.StateMissing {
		t.Errorf("doc = folder %q state %q, want detached and missing",
			gotDoc.FolderID, gotDoc.Presence.State)
	}
}

// TestDeleteFolder_RootRejected verifies the library root cannot be deleted.
func TestDeleteFolder_RootRejected(t *testing.T) {
	m, _, _, tr := testLibrary(t)
	if err := m.DeleteFolder(context.Background(), tr.Root().Folder.ID, KeepFiles); !errs.IsValidation(err) {
		t.Errorf("DeleteFolder(root) = %v, want validation error", err)
	}
}

// TestMoveDocument_NumericSuffixOnCollision verifies a present document
// moving into a folder that already holds a same-named file lands at the
// first free "name (N)" path, and the stored path matches the file exactly.
func TestMoveDocument_NumericSuffixOnCollision(t *testing.T) {
	m, root, db, tr := testLibrary(t)
	ctx := context.Background()

	x, _ := m.CreateFolder(ctx, tr.Root().Folder.ID, "X", model.KindPhysical)
	y, err := m.CreateFolder(ctx, tr.Root().Folder.ID, "Y", model.KindPhysical)
	if err != nil {
		t.Fatalf("CreateFolder(Y) failed: %v", err)
	}

	if err := os.WriteFile(root.Abs("X/f.pdf"), []byte("moving"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := os.WriteFile(root.Abs("Y/f.pdf"), []byte("existing"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	doc := model.NewDocument("f")
	doc.FolderID = x.ID
	doc.Presence = model.PresentFile("X/f.pdf", 6)
	if err := db.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument() failed: %v", err)
	}

	moved, err := m.MoveDocument(ctx, doc.ID, y.ID)
	if err != nil {
		t.Fatalf("MoveDocument() failed: %v", err)
	}

	if moved.Presence.Path != "Y/f (2).pdf" {
		t.Errorf("path = %q, want Y/f (2).pdf", moved.Presence.Path)
	}
	if _, err := os.Stat(root.Abs(moved.Presence.Path)); err != nil {
		t.Errorf("stored path should match the file location: %v", err)
	}
	if _, err := os.Stat(root.Abs("X/f.pdf")); !os.IsNotExist(err) {
		t.Error("source file should be gone")
	}
	data, _ := os.ReadFile(root.Abs("Y/f.pdf"))
	if string(data) != "existing" {
		t.Error("existing file must not be overwritten")
	}
}

// TestMoveDocument_MissingRecordPathNotReclaimed verifies a missing
// document's last known path counts as taken even with no file on disk: a
// move into that folder lands on the next free suffix, so the record can
// still relink to its own file if it reappears.
func TestMoveDocument_MissingRecordPathNotReclaimed(t *testing.T) {
	m, root, db, tr := testLibrary(t)
	ctx := context.Background()

	x, _ := m.CreateFolder(ctx, tr.Root().Folder.ID, "X", model.KindPhysical)
	y, err := m.CreateFolder(ctx, tr.Root().Folder.ID, "Y", model.KindPhysical)
	if err != nil {
		t.Fatalf("CreateFolder(Y) failed: %v", err)
	}

	lost := model.NewDocument("lost")
	lost.FolderID = y.ID
	lost.Presence = model.PresentFile("Y/f.pdf", 4)
	if err := lost.Presence.MarkMissing(); err != nil {
		t.Fatalf("MarkMissing() failed: %v", err)
	}
	if err := db.UpsertDocument(ctx, lost); err != nil {
		t.Fatalf("UpsertDocument(lost) failed: %v", err)
	}

	if err := os.WriteFile(root.Abs("X/f.pdf"), []byte("moving"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	doc := model.NewDocument("f")
	doc.FolderID = x.ID
	doc.Presence = model.PresentFile("X/f.pdf", 6)
	if err := db.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument() failed: %v", err)
	}

	moved, err := m.MoveDocument(ctx, doc.ID, y.ID)
	if err != nil {
		t.Fatalf("MoveDocument() failed: %v", err)
	}
	if moved.Presence.Path != "Y/f (2).pdf" {
		t.Errorf("path = %q, want Y/f (2).pdf", moved.Presence.Path)
	}
	if _, err := os.Stat(root.Abs("Y/f (2).pdf")); err != nil {
		t.Errorf("file should land at the suffixed path: %v", err)
	}
	gotLost, _ := db.GetDocument(ctx, lost.ID)
	if gotLost.Presence.Path != "Y/f.pdf" {
		t.Errorf("missing doc path = %q, want Y/f.pdf kept", gotLost.Presence.Path)
	}
}

// TestMoveDocument_GhostIsIndexOnly verifies a never-had-file document moves
// without touching the disk.
func TestMoveDocument_GhostIsIndexOnly(t *testing.T) {
	m, root, db, tr := testLibrary(t)
	ctx := context.Background()

	x, _ := m.CreateFolder(ctx, tr.Root().Folder.ID, "X", model.KindPhysical)
	y, _ := m.CreateFolder(ctx, tr.Root().Folder.ID, "Y", model.KindPhysical)

	doc := model.NewDocument("wish")
	doc.FolderID = x.ID
	if err := db.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument() failed: %v", err)
	}

	var before []string
	_ = filepath.WalkDir(root.Path(), func(p string, d fs.DirEntry, err error) error {
		before = append(before, p)
		return err
	})

	moved, err := m.MoveDocument(ctx, doc.ID, y.ID)
	if err != nil {
		t.Fatalf("MoveDocument() failed: %v", err)
	}
	if moved.FolderID != y.ID {
		t.Errorf("FolderID = %q, want %q", moved.FolderID, y.ID)
	}

	var after []string
	_ = filepath.WalkDir(root.Path(), func(p string, d fs.DirEntry, err error) error {
		after = append(after, p)
		return err
	})
	if len(before) != len(after) {
		t.Errorf("disk changed for a ghost move: %d entries before, %d after", len(before), len(after))
	}
}

// TestScaffoldTemplate verifies a template creates its folders parent-first
// and is idempotent.
func TestScaffoldTemplate(t *testing.T) {
	m, root, _, tr := testLibrary(t)
	ctx := context.Background()

	tpl := TemplateByName("research")
	if tpl == nil {
		t.Fatal("research template missing")
	}

	created, err := m.ScaffoldTemplate(ctx, tpl)
	if err != nil {
		t.Fatalf("ScaffoldTemplate() failed: %v", err)
	}
	if len(created) != len(tpl.Folders) {
		t.Errorf("created %d folders, want %d", len(created), len(tpl.Folders))
	}
	if _, err := os.Stat(root.Abs("Papers/To Read")); err != nil {
		t.Errorf("scaffolded directory missing: %v", err)
	}

	again, err := m.ScaffoldTemplate(ctx, tpl)
	if err != nil {
		t.Fatalf("second ScaffoldTemplate() failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second run created %d folders, want 0", len(again))
	}
	if _, ok := tr.GetByPath("Papers/Archive"); !ok {
		t.Error("tree should index scaffolded folders")
	}
}
