package filetree

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"squirrelctl/pkg/utils"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrFixedNode    = errors.New("node is fixed and cannot be moved or removed")
	ErrCycle        = errors.New("cannot move a directory inside itself")
	ErrEmptyName    = errors.New("name must not be empty")
)

// Tree owns every node and the ordered list of top-level entries.
// A Tree is not safe for concurrent mutation; take a Clone before handing it
// to another goroutine.
type Tree struct {
	nodes   map[NodeID]*Node
	roots   []NodeID
	parents map[NodeID]NodeID
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{
		nodes:   make(map[NodeID]*Node),
		parents: make(map[NodeID]NodeID),
	}
}

func newID() NodeID {
	return NodeID(uuid.NewString())
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Empty reports whether the tree has no top-level entries.
func (t *Tree) Empty() bool {
	return len(t.roots) == 0
}

// Roots returns the top-level node ids in order.
func (t *Tree) Roots() []NodeID {
	return append([]NodeID(nil), t.roots...)
}

// Node returns a copy of the node with the given id.
func (t *Tree) Node(id NodeID) (Node, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n.clone(), true
}

// Children returns the ordered children of id, or the roots for Root.
func (t *Tree) Children(id NodeID) []NodeID {
	if id == Root {
		return t.Roots()
	}
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return append([]NodeID(nil), n.Children...)
}

// FindParent returns the directory whose children contain id. It reports
// false when id is a top-level node or is not in the tree.
func (t *Tree) FindParent(id NodeID) (NodeID, bool) {
	p, ok := t.parents[id]
	return p, ok
}

// FindBySource returns every node whose source path matches path, ignoring case.
func (t *Tree) FindBySource(path string) []NodeID {
	var found []NodeID
	t.walkIDs(t.roots, func(id NodeID) {
		if n := t.nodes[id]; n.SourcePath != "" && utils.SamePath(n.SourcePath, path) {
			found = append(found, id)
		}
	})
	return found
}

// AddFile inserts the file or directory at path under target. Directories
// are imported recursively. Any other node with the same source path is
// removed first. On error nothing imported from path is left in the tree.
func (t *Tree) AddFile(path string, target NodeID) (NodeID, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	for _, id := range t.FindBySource(abs) {
		if t.nodes[id].IsRootFixed {
			continue
		}
		t.removeSubtree(id)
	}

	node := &Node{ID: newID(), IsDirectory: info.IsDir()}
	if err := t.setSource(node, abs, info); err != nil {
		return "", err
	}
	t.insert(node, t.resolveTarget(target))

	if !node.IsDirectory {
		return node.ID, nil
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		t.removeSubtree(node.ID)
		return "", fmt.Errorf("read directory %s: %w", abs, err)
	}
	// files first, then subdirectories
	for _, wantDir := range []bool{false, true} {
		for _, entry := range entries {
			if entry.IsDir() != wantDir {
				continue
			}
			if _, err := t.AddFile(filepath.Join(abs, entry.Name()), node.ID); err != nil {
				t.removeSubtree(node.ID)
				return "", err
			}
		}
	}
	return node.ID, nil
}

// NewFolder creates an empty directory node named after NewFolderName,
// made unique among its future siblings.
func (t *Tree) NewFolder(target NodeID) NodeID {
	parent := t.resolveTarget(target)
	node := &Node{
		ID:          newID(),
		IsDirectory: true,
		OutputName:  GetValidName(NewFolderName, t.childNames(parent)),
	}
	t.insert(node, parent)
	return node.ID
}

// AddFixedFolder creates a directory that can be neither moved nor removed.
func (t *Tree) AddFixedFolder(name string, target NodeID) (NodeID, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyName
	}
	parent := t.resolveTarget(target)
	node := &Node{
		ID:          newID(),
		IsDirectory: true,
		IsRootFixed: true,
		OutputName:  GetValidName(name, t.childNames(parent)),
	}
	t.insert(node, parent)
	return node.ID, nil
}

// Rename sets the output name of id.
func (t *Tree) Rename(id NodeID, name string) error {
	n, ok := t.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	n.OutputName = name
	return nil
}

// MoveNode detaches id and re-inserts it under target, keeping its identity
// and children.
func (t *Tree) MoveNode(id NodeID, target NodeID) error {
	n, ok := t.nodes[id]
	if !ok {
		return ErrNodeNotFound
	}
	if n.IsRootFixed {
		return ErrFixedNode
	}

	parent := t.resolveTarget(target)
	if parent == id || t.isAncestor(id, parent) {
		return ErrCycle
	}

	t.detach(id)
	t.insert(n, parent)
	return nil
}

// RemoveNode removes id and its descendants and returns the removed node.
func (t *Tree) RemoveNode(id NodeID) (Node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, ErrNodeNotFound
	}
	if n.IsRootFixed {
		return Node{}, ErrFixedNode
	}
	removed := *n.clone()
	t.removeSubtree(id)
	return removed, nil
}

// RemoveAll clears every sibling of anchor, anchor included. Fixed nodes stay.
// It returns the number of top-level entries removed at that level.
func (t *Tree) RemoveAll(anchor NodeID) (int, error) {
	if _, ok := t.nodes[anchor]; !ok {
		return 0, ErrNodeNotFound
	}

	parent, _ := t.FindParent(anchor)
	removed := 0
	for _, id := range t.Children(parent) {
		if t.nodes[id].IsRootFixed {
			continue
		}
		t.removeSubtree(id)
		removed++
	}
	return removed, nil
}

// Reorder returns a copy of the tree with every level sorted directories
// first, then by display name ignoring case. The receiver is not modified.
func (t *Tree) Reorder() *Tree {
	c := t.Clone()
	c.roots = c.sorted(c.roots)
	for _, n := range c.nodes {
		n.Children = c.sorted(n.Children)
	}
	return c
}

// Clone returns a deep copy that shares no state with t.
func (t *Tree) Clone() *Tree {
	c := New()
	for id, n := range t.nodes {
		c.nodes[id] = n.clone()
	}
	c.roots = append([]NodeID(nil), t.roots...)
	c.rebuildIndex()
	return c
}

// Walk visits every node depth-first in tree order. dir holds the display
// names of the node's ancestors, outermost first.
func (t *Tree) Walk(fn func(n Node, dir []string) error) error {
	return t.walk(t.roots, nil, fn)
}

func (t *Tree) walk(ids []NodeID, dir []string, fn func(Node, []string) error) error {
	for _, id := range ids {
		n := t.nodes[id]
		if err := fn(*n.clone(), append([]string(nil), dir...)); err != nil {
			return err
		}
		if n.IsDirectory {
			if err := t.walk(n.Children, append(dir, n.DisplayName()), fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Path returns the slash separated display path of id.
func (t *Tree) Path(id NodeID) string {
	var parts []string
	for cur, ok := id, true; ok; cur, ok = t.parents[cur] {
		n, exists := t.nodes[cur]
		if !exists {
			return ""
		}
		parts = append([]string{n.DisplayName()}, parts...)
	}
	return strings.Join(parts, "/")
}

// Resolve finds the node at a slash separated display path.
func (t *Tree) Resolve(path string) (NodeID, bool) {
	path = strings.Trim(filepath.ToSlash(path), "/")
	if path == "" {
		return Root, false
	}

	level := t.roots
	var found NodeID
	for _, part := range strings.Split(path, "/") {
		match := NodeID("")
		for _, id := range level {
			if t.nodes[id].DisplayName() == part {
				match = id
				break
			}
		}
		if match == "" {
			return Root, false
		}
		found = match
		level = t.nodes[match].Children
	}
	return found, true
}

// GetValidName returns base, or base followed by " (N)" with the smallest
// N >= 1 that no sibling uses.
func GetValidName(base string, siblings []string) string {
	taken := make(map[string]struct{}, len(siblings))
	for _, s := range siblings {
		taken[s] = struct{}{}
	}

	name := base
	for i := 1; ; i++ {
		if _, exists := taken[name]; !exists {
			return name
		}
		name = base + " (" + strconv.Itoa(i) + ")"
	}
}

func (t *Tree) setSource(n *Node, path string, info os.FileInfo) error {
	n.SourcePath = path
	n.LastModified = info.ModTime().UTC().Truncate(time.Second)
	if !info.IsDir() {
		n.SizeBytes = info.Size()
		return nil
	}
	size, err := utils.PathSize(path)
	if err != nil {
		return fmt.Errorf("compute size of %s: %w", path, err)
	}
	n.SizeBytes = size
	return nil
}

// resolveTarget maps a drop target to the directory that receives the node:
// a directory receives it directly, a file hands it to its own parent.
func (t *Tree) resolveTarget(target NodeID) NodeID {
	if target == Root {
		return Root
	}
	n, ok := t.nodes[target]
	if !ok {
		return Root
	}
	if n.IsDirectory {
		return target
	}
	if p, ok := t.parents[target]; ok {
		return p
	}
	return Root
}

func (t *Tree) insert(n *Node, parent NodeID) {
	t.nodes[n.ID] = n
	if parent == Root {
		t.roots = append(t.roots, n.ID)
		delete(t.parents, n.ID)
		return
	}
	p := t.nodes[parent]
	p.Children = append(p.Children, n.ID)
	t.parents[n.ID] = parent
}

func (t *Tree) detach(id NodeID) {
	if parent, ok := t.parents[id]; ok {
		p := t.nodes[parent]
		p.Children = without(p.Children, id)
		delete(t.parents, id)
		return
	}
	t.roots = without(t.roots, id)
}

func (t *Tree) removeSubtree(id NodeID) {
	t.detach(id)
	t.walkIDs([]NodeID{id}, func(sub NodeID) {
		delete(t.parents, sub)
		delete(t.nodes, sub)
	})
}

// walkIDs visits ids and their descendants, parents before children.
func (t *Tree) walkIDs(ids []NodeID, fn func(NodeID)) {
	for _, id := range ids {
		n, ok := t.nodes[id]
		if !ok {
			continue
		}
		children := append([]NodeID(nil), n.Children...)
		fn(id)
		t.walkIDs(children, fn)
	}
}

// isAncestor reports whether ancestor appears on the parent chain of id.
func (t *Tree) isAncestor(ancestor, id NodeID) bool {
	for cur, ok := t.parents[id]; ok; cur, ok = t.parents[cur] {
		if cur == ancestor {
			return true
		}
	}
	return false
}

func (t *Tree) childNames(parent NodeID) []string {
	ids := t.Children(parent)
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, t.nodes[id].DisplayName())
	}
	return names
}

func (t *Tree) rebuildIndex() {
	t.parents = make(map[NodeID]NodeID, len(t.nodes))
	for id, n := range t.nodes {
		for _, child := range n.Children {
			t.parents[child] = id
		}
	}
}

func (t *Tree) sorted(ids []NodeID) []NodeID {
	out := append([]NodeID(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := t.nodes[out[i]], t.nodes[out[j]]
		if a.IsDirectory != b.IsDirectory {
			return a.IsDirectory
		}
		an, bn := a.DisplayName(), b.DisplayName()
		if la, lb := strings.ToLower(an), strings.ToLower(bn); la != lb {
			return la < lb
		}
		if an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
	return out
}

func without(ids []NodeID, id NodeID) []NodeID {
	out := ids[:0:0]
	for _, cur := range ids {
		if cur != id {
			out = append(out, cur)
		}
	}
	return out
}
