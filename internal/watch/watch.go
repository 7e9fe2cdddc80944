// Package watch surfaces debounced filesystem-change advisories for a
// library.
//
// Raw fsnotify events are queued per path and held until the debounce window
// elapses with no further activity for that path. A Remove followed within
// the window by a Create of a same-named file elsewhere is coalesced into a
// single Rename advisory. New files are surfaced only once their size is
// stable and at least the configured minimum, so partially-copied files are
// never acted on.
//
// Coalescing is a heuristic: a rapid delete-then-create of an unrelated
// same-named file inside the window is indistinguishable from a rename. This
// ambiguity is accepted.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/omniscope/libr/internal/library"
)

// State is the watcher lifecycle state.
type State int32

const (
	// Idle means the watcher has not started.
	Idle State = iota
	// Watching means live events are flowing.
	Watching
	// Stopped is terminal: explicit stop or a fatal OS-watch failure.
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Watching:
		return "watching"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// AdvisoryKind classifies a surfaced change.
type AdvisoryKind string

const (
	// FileAppeared is a new document file, size-stable and above minimum.
	FileAppeared AdvisoryKind = "file_appeared"
	// FileVanished is a tracked-path file removal (presence downgrade).
	FileVanished AdvisoryKind = "file_vanished"
	// FileRenamed is a coalesced remove+create pair (path update).
	FileRenamed AdvisoryKind = "file_renamed"
	// FolderAppeared is a new directory.
	FolderAppeared AdvisoryKind = "folder_appeared"
	// FolderVanished is a removed directory.
	FolderVanished AdvisoryKind = "folder_vanished"
)

// Advisory is one debounced change notice. Paths are slash-separated and
// library-relative. OldPath is set only for FileRenamed.
type Advisory struct {
	Kind    AdvisoryKind
	Path    string
	OldPath string
	Size    int64
}

// pending is one path's queued activity inside the debounce window.
type pending struct {
	rel      string
	isDir    bool
	created  bool
	removed  bool
	lastSeen time.Time
	lastSize int64
	sized    bool
}

// Watcher turns raw filesystem notifications into debounced advisories.
type Watcher struct {
	root   *library.Root
	cfg    *library.Config
	logger *log.Logger

	fw     *fsnotify.Watcher
	events chan Advisory

	mu       sync.Mutex
	state    State
	queue    map[string]*pending
	watched  map[string]bool
	stopOnce sync.Once
	done     chan struct{}
}

// New returns an idle watcher for the given library.
func New(root *library.Root, cfg *library.Config, logger *log.Logger) *Watcher {
	return &Watcher{
		root:    root,
		cfg:     cfg,
		logger:  logger,
		events:  make(chan Advisory, 256),
		queue:   make(map[string]*pending),
		watched: make(map[string]bool),
		done:    make(chan struct{}),
	}
}

// Events returns the advisory channel. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan Advisory { return w.events }

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start begins watching the library tree. Watches are added for the root and
// every subdirectory, and for directories created while running. Returns
// after the watches are established; event processing continues until Stop,
// context cancellation, or a fatal watch failure.
//
// A watcher runs at most once. Starting a watching or stopped watcher fails;
// after a stop, create a new watcher.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state != Idle {
		state := w.state
		w.mu.Unlock()
		return fmt.Errorf("cannot start a %s watcher", state)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.state = Stopped
		w.mu.Unlock()
		return err
	}
	w.fw = fw
	w.state = Watching
	w.mu.Unlock()

	if err := w.addRecursive(w.root.Path()); err != nil {
		w.logger.Printf("warning: %v", err)
	}

	go w.run(ctx)
	w.logger.Printf("watching %s (debounce %s)", w.root.Path(), w.cfg.Debounce())
	return nil
}

// Stop halts the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.state = Stopped
		fw := w.fw
		w.mu.Unlock()
		close(w.done)
		if fw != nil {
			_ = fw.Close()
		}
	})
}

// Poll drains every advisory currently available without blocking.
func (w *Watcher) Poll() []Advisory {
	var out []Advisory
	for {
		select {
		case a, ok := <-w.events:
			if !ok {
				return out
			}
			out = append(out, a)
		default:
			return out
		}
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.events)

	tick := w.cfg.Debounce() / 4
	if tick < 100*time.Millisecond {
		tick = 100 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				w.fatal("event stream closed")
				return
			}
			w.handleRaw(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				w.fatal("error stream closed")
				return
			}
			w.logger.Printf("warning: watch error: %v", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

// fatal transitions to Stopped after an unrecoverable watch failure. The
// application continues without live sync.
func (w *Watcher) fatal(reason string) {
	w.logger.Printf("warning: live sync disabled: %s", reason)
	w.Stop()
}

// handleRaw queues one raw event, filtering out the metadata directory,
// hidden entries, ignore globs, and files without a document extension.
func (w *Watcher) handleRaw(ev fsnotify.Event) {
	rel, err := w.root.Rel(ev.Name)
	if err != nil || rel == "" {
		return
	}
	if w.skip(rel) {
		return
	}

	now := time.Now()
	isDir := false
	if ev.Op&fsnotify.Create != 0 || ev.Op&fsnotify.Write != 0 {
		if info, err := os.Stat(ev.Name); err == nil {
			isDir = info.IsDir()
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !isDir && w.watched[rel] {
		isDir = true
	}

	p, ok := w.queue[rel]
	if !ok {
		p = &pending{rel: rel, isDir: isDir}
		w.queue[rel] = p
	}
	p.lastSeen = now
	if isDir {
		p.isDir = true
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		p.created = true
		if isDir {
			w.watched[rel] = true
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Printf("warning: %v", err)
			}
		}
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		p.removed = true
		if w.watched[rel] {
			p.isDir = true
			delete(w.watched, rel)
		}
	case ev.Op&fsnotify.Write != 0:
		if !isDir {
			p.created = true
		}
	}

	if !p.isDir && !w.allowedExtension(rel) {
		delete(w.queue, rel)
	}
}

// flush surfaces every queued change whose debounce window has elapsed.
// Remove+create pairs with the same base name become one rename advisory.
func (w *Watcher) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	window := w.cfg.Debounce()

	var ripe []*pending
	for _, p := range w.queue {
		if now.Sub(p.lastSeen) >= window {
			ripe = append(ripe, p)
		}
	}
	if len(ripe) == 0 {
		return
	}

	// Pair removes with creates of the same base name first.
	removedByBase := make(map[string]*pending)
	for _, p := range ripe {
		if !p.isDir && p.removed && !p.created {
			removedByBase[path.Base(p.rel)] = p
		}
	}

	handled := make(map[string]bool)
	for _, p := range ripe {
		if p.isDir || !p.created || p.removed {
			continue
		}
		old, ok := removedByBase[path.Base(p.rel)]
		if !ok || old.rel == p.rel {
			continue
		}
		size, stable := w.fileReady(p)
		if !stable {
			// Hold the paired remove too, or it would surface as a
			// vanish before the create stabilizes.
			old.lastSeen = p.lastSeen
			handled[p.rel] = true
			handled[old.rel] = true
			continue
		}
		delete(w.queue, p.rel)
		delete(w.queue, old.rel)
		handled[p.rel] = true
		handled[old.rel] = true
		delete(removedByBase, path.Base(p.rel))
		w.emit(Advisory{Kind: FileRenamed, Path: p.rel, OldPath: old.rel, Size: size})
	}

	for _, p := range ripe {
		if handled[p.rel] {
			continue
		}
		switch {
		case p.isDir && p.removed && !p.created:
			delete(w.queue, p.rel)
			w.emit(Advisory{Kind: FolderVanished, Path: p.rel})
		case p.isDir && p.created:
			delete(w.queue, p.rel)
			w.emit(Advisory{Kind: FolderAppeared, Path: p.rel})
		case p.removed && p.created:
			// Replaced in place: surface as a fresh appearance.
			size, stable := w.fileReady(p)
			if !stable {
				continue
			}
			delete(w.queue, p.rel)
			if size >= 0 {
				w.emit(Advisory{Kind: FileAppeared, Path: p.rel, Size: size})
			}
		case p.removed:
			delete(w.queue, p.rel)
			w.emit(Advisory{Kind: FileVanished, Path: p.rel})
		case p.created:
			size, stable := w.fileReady(p)
			if !stable {
				continue
			}
			delete(w.queue, p.rel)
			if size >= 0 {
				w.emit(Advisory{Kind: FileAppeared, Path: p.rel, Size: size})
			}
		default:
			delete(w.queue, p.rel)
		}
	}
}

// fileReady stats a created file and reports whether it can be surfaced.
// A file whose size is still changing stays queued for another window; a
// stable file below the minimum size, or one that vanished again, is
// reported stable with size -1 so the entry is dropped without an advisory.
func (w *Watcher) fileReady(p *pending) (size int64, stable bool) {
	info, err := os.Stat(w.root.Abs(p.rel))
	if err != nil {
		return -1, true
	}
	if !p.sized || info.Size() != p.lastSize {
		p.lastSize = info.Size()
		p.sized = true
		p.lastSeen = time.Now()
		return 0, false
	}
	if info.Size() < w.cfg.MinFileSizeBytes {
		return -1, true
	}
	return info.Size(), true
}

func (w *Watcher) emit(a Advisory) {
	select {
	case w.events <- a:
	default:
		w.logger.Printf("warning: advisory buffer full, dropping %s %s", a.Kind, a.Path)
	}
}

// addRecursive adds watches for a directory and everything below it,
// skipping the metadata directory and hidden or ignored subtrees.
func (w *Watcher) addRecursive(abs string) error {
	return filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := w.root.Rel(p)
		if relErr != nil {
			return fs.SkipDir
		}
		if rel != "" && w.skip(rel) {
			return fs.SkipDir
		}
		if err := w.fw.Add(p); err != nil {
			return err
		}
		if rel != "" {
			w.watched[rel] = true
		}
		return nil
	})
}

// skip reports whether a library-relative path is outside the watcher's
// interest: the metadata directory, hidden entries, or an ignore glob.
func (w *Watcher) skip(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part == library.MetaDirName || strings.HasPrefix(part, ".") {
			return true
		}
	}
	base := path.Base(rel)
	for _, glob := range w.cfg.IgnoreGlobs {
		if ok, _ := path.Match(glob, rel); ok {
			return true
		}
		if ok, _ := path.Match(glob, base); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) allowedExtension(rel string) bool {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(rel), "."))
	if ext == "" {
		return false
	}
	for _, allowed := range w.cfg.WatchExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
