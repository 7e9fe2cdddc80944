// Package tree maintains the in-memory index of the folder hierarchy.
//
// The tree is rebuilt from the store on startup and kept current by applying
// incremental mutations. Lookups by id and by disk path are O(1); document
// counts are cached per node and aggregated up to the root.
package tree

import (
	"sort"
	"strings"
	"sync"

	"github.com/omniscope/libr/internal/errs"
	"github.com/omniscope/libr/internal/model"
	"github.com/omniscope/libr/internal/store"
)

// Node is a folder plus its cached aggregates.
type Node struct {
	Folder *model.Folder

	// Children are sorted by sort index, then name.
	Children []*Node

	// DirectDocs counts documents assigned directly to this folder,
	// including virtual memberships.
	DirectDocs int

	// SubtreeDocs counts documents in this folder and all descendants.
	SubtreeDocs int

	// GhostCount counts documents here that never had a file.
	GhostCount int

	// Expanded is UI state carried across rebuilds.
	Expanded bool

	parent *Node
}

// Tree indexes the folder hierarchy for fast lookup.
type Tree struct {
	mu     sync.RWMutex
	root   *Node
	byID   map[string]*Node
	byPath map[string]*Node
}

// Build constructs a tree from the full folder list and per-folder document
// counts. Exactly one folder must be the library root. Folders whose parent
// is unknown are dropped with their descendants.
func Build(folders []*model.Folder, counts map[string]store.FolderDocCounts) (*Tree, error) {
	t := &Tree{
		byID:   make(map[string]*Node, len(folders)),
		byPath: make(map[string]*Node),
	}

	for _, f := range folders {
		n := &Node{Folder: f}
		if c, ok := counts[f.ID]; ok {
			n.DirectDocs = c.Direct
			n.GhostCount = c.Ghosts
		}
		t.byID[f.ID] = n
		if f.Kind == model.KindLibraryRoot {
			if t.root != nil {
				return nil, errs.Validationf("multiple library roots in index")
			}
			t.root = n
		}
	}
	if t.root == nil {
		return nil, errs.Validationf("no library root in index")
	}

	// Link children; orphans (parent not loaded) are unreachable and thus
	// pruned from lookup by the reindex below.
	for _, n := range t.byID {
		if n == t.root {
			continue
		}
		parent, ok := t.byID[n.Folder.ParentID]
		if !ok {
			continue
		}
		n.parent = parent
		parent.Children = append(parent.Children, n)
	}

	t.byID = make(map[string]*Node, len(folders))
	t.indexSubtree(t.root)
	sortChildren(t.root)
	aggregate(t.root)
	return t, nil
}

// Root returns the library root node.
func (t *Tree) Root() *Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Get returns the node for a folder id.
func (t *Tree) Get(id string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.byID[id]
	return n, ok
}

// GetByPath returns the node owning the given library-relative disk path.
func (t *Tree) GetByPath(diskPath string) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.byPath[diskPath]
	return n, ok
}

// Breadcrumb returns the chain of folders from the root down to id.
func (t *Tree) Breadcrumb(id string) ([]*model.Folder, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.byID[id]
	if !ok {
		return nil, errs.NotFound("folder", id)
	}
	var chain []*model.Folder
	for ; n != nil; n = n.parent {
		chain = append(chain, n.Folder)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Children returns the ordered child folders of id.
func (t *Tree) Children(id string) ([]*model.Folder, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.byID[id]
	if !ok {
		return nil, errs.NotFound("folder", id)
	}
	out := make([]*model.Folder, len(n.Children))
	for i, c := range n.Children {
		out[i] = c.Folder
	}
	return out, nil
}

// Len returns the number of indexed folders.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// ApplyCreated inserts a new folder under its parent.
func (t *Tree) ApplyCreated(f *model.Folder) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byID[f.ID]; exists {
		return errs.Validationf("folder %s already indexed", f.ID)
	}
	parent, ok := t.byID[f.ParentID]
	if !ok {
		return errs.NotFound("folder", f.ParentID)
	}

	n := &Node{Folder: f, parent: parent}
	parent.Children = append(parent.Children, n)
	sortNodes(parent.Children)
	t.byID[f.ID] = n
	if f.DiskPath != "" {
		t.byPath[f.DiskPath] = n
	}
	return nil
}

// ApplyRenamed updates a folder's name and reindexes the disk paths of its
// whole subtree. The store is the source of the rewritten paths, so the
// caller passes the updated folder; descendant paths are recomputed from the
// old and new prefixes.
func (t *Tree) ApplyRenamed(id, newName, oldPrefix, newPrefix string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.byID[id]
	if !ok {
		return errs.NotFound("folder", id)
	}
	n.Folder.Name = newName
	t.rewritePaths(n, oldPrefix, newPrefix)
	if n.parent != nil {
		sortNodes(n.parent.Children)
	}
	return nil
}

// ApplyMoved reparents a folder and reindexes its subtree paths.
func (t *Tree) ApplyMoved(id, newParentID, oldPrefix, newPrefix string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.byID[id]
	if !ok {
		return errs.NotFound("folder", id)
	}
	newParent, ok := t.byID[newParentID]
	if !ok {
		return errs.NotFound("folder", newParentID)
	}

	subtreeDocs := n.SubtreeDocs
	if n.parent != nil {
		n.parent.Children = removeNode(n.parent.Children, n)
		for p := n.parent; p != nil; p = p.parent {
			p.SubtreeDocs -= subtreeDocs
		}
	}
	n.parent = newParent
	n.Folder.ParentID = newParentID
	newParent.Children = append(newParent.Children, n)
	sortNodes(newParent.Children)
	for p := newParent; p != nil; p = p.parent {
		p.SubtreeDocs += subtreeDocs
	}

	t.rewritePaths(n, oldPrefix, newPrefix)
	return nil
}

// ApplyDeleted removes a folder and its subtree from the index.
func (t *Tree) ApplyDeleted(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.byID[id]
	if !ok {
		return errs.NotFound("folder", id)
	}
	if n == t.root {
		return errs.Validationf("cannot delete the library root")
	}

	if n.parent != nil {
		n.parent.Children = removeNode(n.parent.Children, n)
		for p := n.parent; p != nil; p = p.parent {
			p.SubtreeDocs -= n.SubtreeDocs
		}
	}
	t.dropSubtree(n)
	return nil
}

// ApplyCountDelta adjusts the document counts of a folder and propagates the
// subtree total up to the root. ghosts may be negative.
func (t *Tree) ApplyCountDelta(id string, docs, ghosts int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.byID[id]
	if !ok {
		return errs.NotFound("folder", id)
	}
	n.DirectDocs += docs
	n.GhostCount += ghosts
	for ; n != nil; n = n.parent {
		n.SubtreeDocs += docs
	}
	return nil
}

// SetExpanded records UI expansion state for a folder.
func (t *Tree) SetExpanded(id string, expanded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.byID[id]; ok {
		n.Expanded = expanded
	}
}

// Walk visits every node top-down, parents before children.
func (t *Tree) Walk(fn func(n *Node, depth int)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	walk(t.root, 0, fn)
}

func walk(n *Node, depth int, fn func(*Node, int)) {
	fn(n, depth)
	for _, c := range n.Children {
		walk(c, depth+1, fn)
	}
}

func (t *Tree) indexSubtree(n *Node) {
	t.byID[n.Folder.ID] = n
	if n.Folder.DiskPath != "" {
		t.byPath[n.Folder.DiskPath] = n
	}
	for _, c := range n.Children {
		t.indexSubtree(c)
	}
}

func (t *Tree) rewritePaths(n *Node, oldPrefix, newPrefix string) {
	if n.Folder.DiskPath != "" {
		delete(t.byPath, n.Folder.DiskPath)
		if n.Folder.DiskPath == oldPrefix {
			n.Folder.DiskPath = newPrefix
		} else if strings.HasPrefix(n.Folder.DiskPath, oldPrefix+"/") {
			n.Folder.DiskPath = newPrefix + n.Folder.DiskPath[len(oldPrefix):]
		}
		t.byPath[n.Folder.DiskPath] = n
	}
	for _, c := range n.Children {
		t.rewritePaths(c, oldPrefix, newPrefix)
	}
}

func (t *Tree) dropSubtree(n *Node) {
	delete(t.byID, n.Folder.ID)
	if n.Folder.DiskPath != "" {
		delete(t.byPath, n.Folder.DiskPath)
	}
	for _, c := range n.Children {
		t.dropSubtree(c)
	}
}

func aggregate(n *Node) int {
	total := n.DirectDocs
	for _, c := range n.Children {
		total += aggregate(c)
	}
	n.SubtreeDocs = total
	return total
}

func sortChildren(n *Node) {
	sortNodes(n.Children)
	for _, c := range n.Children {
		sortChildren(c)
	}
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i].Folder, nodes[j].Folder
		if a.SortIndex != b.SortIndex {
			return a.SortIndex < b.SortIndex
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}

func removeNode(nodes []*Node, target *Node) []*Node {
	for i, n := range nodes {
		if n == target {
			return append(nodes[:i], nodes[i+1:]...)
		}
	}
	return nodes
}
