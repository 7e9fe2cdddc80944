package watch

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/omniscope/libr/internal/library"
)

// testWatcher starts a watcher over a fresh library with a short debounce.
func testWatcher(t *testing.T) (*Watcher, *library.Root) {
	t.Helper()

	root, err := library.Init(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("library.Init() failed: %v", err)
	}

	cfg := library.DefaultConfig()
	cfg.DebounceMS = 200
	cfg.MinFileSizeBytes = 1

	logger := log.New(os.Stderr, "[test] ", 0)
	w := New(root, cfg, logger)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, root
}

// waitAdvisory blocks until the next advisory or fails the test.
func waitAdvisory(t *testing.T, w *Watcher) Advisory {
	t.Helper()
	select {
	case a, ok := <-w.Events():
		if !ok {
			t.Fatal("events channel closed while waiting for advisory")
		}
		return a
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for advisory")
	}
	return Advisory{}
}

// expectQuiet fails if any advisory arrives within the window.
func expectQuiet(t *testing.T, w *Watcher, window time.Duration) {
	t.Helper()
	select {
	case a, ok := <-w.Events():
		if ok {
			t.Fatalf("unexpected advisory %s %s", a.Kind, a.Path)
		}
	case <-time.After(window):
	}
}

// TestWatcher_StateLifecycle verifies the idle -> watching -> stopped
// transitions and that stopped is terminal.
func TestWatcher_StateLifecycle(t *testing.T) {
	root, err := library.Init(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("library.Init() failed: %v", err)
	}
	cfg := library.DefaultConfig()
	w := New(root, cfg, log.New(os.Stderr, "[test] ", 0))

	if w.State() != Idle {
		t.Errorf("State() = %v, want idle before start", w.State())
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if w.State() != Watching {
		t.Errorf("State() = %v, want watching", w.State())
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("Start() while watching should fail")
	}

	w.Stop()
	w.Stop() // safe to repeat
	if w.State() != Stopped {
		t.Errorf("State() = %v, want stopped", w.State())
	}
	if err := w.Start(context.Background()); err == nil {
		t.Error("Start() after stop should fail rather than silently do nothing")
	}
}

// TestWatcher_FileAppeared verifies a new stable document file surfaces as
// exactly one advisory.
func TestWatcher_FileAppeared(t *testing.T) {
	w, root := testWatcher(t)

	if err := os.WriteFile(root.Abs("book.pdf"), []byte("stable content"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	a := waitAdvisory(t, w)
	if a.Kind != FileAppeared {
		t.Errorf("Kind = %s, want %s", a.Kind, FileAppeared)
	}
	if a.Path != "book.pdf" {
		t.Errorf("Path = %q, want book.pdf", a.Path)
	}
	if a.Size != int64(len("stable content")) {
		t.Errorf("Size = %d, want %d", a.Size, len("stable content"))
	}
	expectQuiet(t, w, 600*time.Millisecond)
}

// TestWatcher_MinSizeGate verifies a file below the configured minimum never
// surfaces.
func TestWatcher_MinSizeGate(t *testing.T) {
	root, err := library.Init(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("library.Init() failed: %v", err)
	}
	cfg := library.DefaultConfig()
	cfg.DebounceMS = 200
	cfg.MinFileSizeBytes = 1024

	w := New(root, cfg, log.New(os.Stderr, "[test] ", 0))
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(w.Stop)

	if err := os.WriteFile(root.Abs("tiny.pdf"), []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	expectQuiet(t, w, 1200*time.Millisecond)
}

// TestWatcher_IgnoresMetadataAndExtensions verifies writes to the metadata
// directory and non-document files stay silent.
func TestWatcher_IgnoresMetadataAndExtensions(t *testing.T) {
	w, root := testWatcher(t)

	if err := os.WriteFile(filepath.Join(root.MetaDir(), "scratch.pdf"), []byte("internal"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := os.WriteFile(root.Abs("notes.docx"), []byte("not a document extension"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	expectQuiet(t, w, 1200*time.Millisecond)
}

// TestWatcher_FolderAppearedAndRecursive verifies a new directory surfaces
// and files created inside it afterwards are watched too.
func TestWatcher_FolderAppearedAndRecursive(t *testing.T) {
	w, root := testWatcher(t)

	if err := os.Mkdir(root.Abs("Shelf"), 0755); err != nil {
		t.Fatalf("Mkdir() failed: %v", err)
	}
	a := waitAdvisory(t, w)
	if a.Kind != FolderAppeared || a.Path != "Shelf" {
		t.Fatalf("advisory = %s %s, want folder_appeared Shelf", a.Kind, a.Path)
	}

	if err := os.WriteFile(root.Abs("Shelf/inside.pdf"), []byte("content"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	a = waitAdvisory(t, w)
	if a.Kind != FileAppeared || a.Path != "Shelf/inside.pdf" {
		t.Errorf("advisory = %s %s, want file_appeared Shelf/inside.pdf", a.Kind, a.Path)
	}
}

// TestWatcher_FileVanished verifies a removed tracked file surfaces as a
// vanish advisory.
func TestWatcher_FileVanished(t *testing.T) {
	w, root := testWatcher(t)

	if err := os.WriteFile(root.Abs("book.pdf"), []byte("content"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if a := waitAdvisory(t, w); a.Kind != FileAppeared {
		t.Fatalf("setup advisory = %s, want file_appeared", a.Kind)
	}

	if err := os.Remove(root.Abs("book.pdf")); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	a := waitAdvisory(t, w)
	if a.Kind != FileVanished || a.Path != "book.pdf" {
		t.Errorf("advisory = %s %s, want file_vanished book.pdf", a.Kind, a.Path)
	}
}

// TestWatcher_RenameCoalescing verifies a remove plus a same-named create at
// a different path inside the debounce window surfaces as exactly one rename
// advisory, never an independent vanish plus appear pair.
func TestWatcher_RenameCoalescing(t *testing.T) {
	w, root := testWatcher(t)

	if err := os.MkdirAll(root.Abs("a"), 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.MkdirAll(root.Abs("b"), 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	// Drain the two folder advisories.
	for i := 0; i < 2; i++ {
		if a := waitAdvisory(t, w); a.Kind != FolderAppeared {
			t.Fatalf("setup advisory = %s, want folder_appeared", a.Kind)
		}
	}

	if err := os.WriteFile(root.Abs("a/f.pdf"), []byte("content"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if a := waitAdvisory(t, w); a.Kind != FileAppeared {
		t.Fatalf("setup advisory = %s, want file_appeared", a.Kind)
	}

	if err := os.Rename(root.Abs("a/f.pdf"), root.Abs("b/f.pdf")); err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}

	a := waitAdvisory(t, w)
	if a.Kind != FileRenamed {
		t.Fatalf("advisory = %s %s, want file_renamed", a.Kind, a.Path)
	}
	if a.OldPath != "a/f.pdf" || a.Path != "b/f.pdf" {
		t.Errorf("rename = %q -> %q, want a/f.pdf -> b/f.pdf", a.OldPath, a.Path)
	}
	expectQuiet(t, w, 600*time.Millisecond)
}

// TestWatcher_Poll verifies the non-blocking drain.
func TestWatcher_Poll(t *testing.T) {
	w, root := testWatcher(t)

	if got := w.Poll(); len(got) != 0 {
		t.Errorf("Poll() on quiet watcher = %v, want empty", got)
	}

	if err := os.WriteFile(root.Abs("book.pdf"), []byte("content"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	var got []Advisory
	for time.Now().Before(deadline) {
		got = append(got, w.Poll()...)
		if len(got) > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if len(got) != 1 || got[0].Kind != FileAppeared {
		t.Errorf("Poll() = %v, want one file_appeared", got)
	}
}
