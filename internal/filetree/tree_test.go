package filetree

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFiles creates every relative path under dir; names ending in "/" are directories.
func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if strings.HasSuffix(name, "/") {
			require.NoError(t, os.MkdirAll(p, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
	}
}

func paths(t *testing.T, tr *Tree) []string {
	t.Helper()
	var out []string
	require.NoError(t, tr.Walk(func(n Node, dir []string) error {
		out = append(out, strings.Join(append(dir, n.DisplayName()), "/"))
		return nil
	}))
	return out
}

// assertConsistent checks that every node is reachable exactly once, no
// node is its own ancestor and no two nodes share a source path.
func assertConsistent(t *testing.T, tr *Tree) {
	t.Helper()
	seen := map[NodeID]int{}
	sources := map[string]NodeID{}
	tr.walkIDs(tr.roots, func(id NodeID) {
		seen[id]++
		n := tr.nodes[id]
		if !n.IsDirectory {
			assert.Empty(t, n.Children, "file %s has children", n.DisplayName())
		}
		if n.SourcePath != "" {
			key := strings.ToLower(n.SourcePath)
			if other, dup := sources[key]; dup {
				t.Errorf("source %s held by %s and %s", n.SourcePath, other, id)
			}
			sources[key] = id
		}
		assert.False(t, tr.isAncestor(id, id), "node %s is its own ancestor", id)
	})
	assert.Len(t, seen, len(tr.nodes), "unreachable nodes in arena")
	for id, count := range seen {
		assert.Equal(t, 1, count, "node %s reachable %d times", id, count)
	}
}

func TestAddFileDirectoryRecursive(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "app/app.exe", "app/lib/core.dll", "app/lib/data/x.json", "app/readme.txt")

	tr := New()
	id, err := tr.AddFile(filepath.Join(dir, "app"), Root)
	require.NoError(t, err)

	n, ok := tr.Node(id)
	require.True(t, ok)
	assert.True(t, n.IsDirectory)
	assert.Equal(t, "app", n.DisplayName())
	assert.EqualValues(t, len("app/app.exe")+len("app/lib/core.dll")+len("app/lib/data/x.json")+len("app/readme.txt"), n.SizeBytes)

	// files first, then subdirectories
	assert.Equal(t, []string{
		"app",
		"app/app.exe",
		"app/readme.txt",
		"app/lib",
		"app/lib/core.dll",
		"app/lib/data",
		"app/lib/data/x.json",
	}, paths(t, tr))
	assertConsistent(t, tr)
}

func TestAddFileRollsBackFailedDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "keep.txt", "app/a.dll", "app/lib/core.dll")
	require.NoError(t, os.Symlink(filepath.Join(dir, "gone"), filepath.Join(dir, "app", "lib", "z-broken.dll")))

	tr := New()
	_, err := tr.AddFile(filepath.Join(dir, "keep.txt"), Root)
	require.NoError(t, err)
	before := tr.Records()

	id, err := tr.AddFile(filepath.Join(dir, "app"), Root)
	require.Error(t, err)
	assert.Empty(t, id)
	assert.Equal(t, before, tr.Records(), "no part of app may stay in the tree")
	assert.Empty(t, tr.FindBySource(filepath.Join(dir, "app", "a.dll")))
	assertConsistent(t, tr)
}

func TestAddFileTargetResolution(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a.txt", "b.txt", "c.txt", "sub/")

	tr := New()
	sub := tr.NewFolder(Root)
	a, err := tr.AddFile(filepath.Join(dir, "a.txt"), sub)
	require.NoError(t, err)

	// dropping on a file inserts as its sibling
	b, err := tr.AddFile(filepath.Join(dir, "b.txt"), a)
	require.NoError(t, err)
	parent, ok := tr.FindParent(b)
	require.True(t, ok)
	assert.Equal(t, sub, parent)

	// unknown target falls back to root
	c, err := tr.AddFile(filepath.Join(dir, "c.txt"), NodeID("missing"))
	require.NoError(t, err)
	_, ok = tr.FindParent(c)
	assert.False(t, ok)
	assert.Contains(t, tr.Roots(), c)

	_, err = tr.AddFile(filepath.Join(dir, "nope.txt"), Root)
	assert.Error(t, err)
}

func TestAddFileReplacesSameSource(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "app.exe")

	tr := New()
	folder := tr.NewFolder(Root)
	first, err := tr.AddFile(filepath.Join(dir, "app.exe"), Root)
	require.NoError(t, err)

	second, err := tr.AddFile(filepath.Join(dir, "APP.EXE"), folder)
	if err != nil {
		// case-sensitive filesystem: add through the original name instead
		second, err = tr.AddFile(filepath.Join(dir, "app.exe"), folder)
		require.NoError(t, err)
	}

	_, ok := tr.Node(first)
	assert.False(t, ok, "old occurrence must be removed")
	assert.Len(t, tr.FindBySource(filepath.Join(dir, "app.exe")), 1)
	parent, _ := tr.FindParent(second)
	assert.Equal(t, folder, parent)
	assertConsistent(t, tr)
}

func TestMoveNode(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "outer/inner/deep.txt", "file.txt")

	tr := New()
	outer, err := tr.AddFile(filepath.Join(dir, "outer"), Root)
	require.NoError(t, err)
	file, err := tr.AddFile(filepath.Join(dir, "file.txt"), Root)
	require.NoError(t, err)
	inner, ok := tr.Resolve("outer/inner")
	require.True(t, ok)

	require.NoError(t, tr.MoveNode(file, inner))
	assert.Equal(t, "outer/inner/file.txt", tr.Path(file))

	assert.ErrorIs(t, tr.MoveNode(outer, outer), ErrCycle)
	assert.ErrorIs(t, tr.MoveNode(outer, inner), ErrCycle)
	assert.ErrorIs(t, tr.MoveNode(NodeID("missing"), Root), ErrNodeNotFound)

	// moving keeps identity and children
	before, _ := tr.Node(inner)
	require.NoError(t, tr.MoveNode(inner, Root))
	after, ok := tr.Node(inner)
	require.True(t, ok)
	assert.Equal(t, before.Children, after.Children)
	assert.Equal(t, "inner/file.txt", tr.Path(file))
	assertConsistent(t, tr)
}

func TestFixedNodes(t *testing.T) {
	tr := New()
	fixed, err := tr.AddFixedFolder("lib", Root)
	require.NoError(t, err)
	free := tr.NewFolder(Root)

	_, err = tr.AddFixedFolder("  ", Root)
	assert.ErrorIs(t, err, ErrEmptyName)

	before := tr.Records()

	_, err = tr.RemoveNode(fixed)
	assert.ErrorIs(t, err, ErrFixedNode)
	assert.ErrorIs(t, tr.MoveNode(fixed, free), ErrFixedNode)
	assert.Equal(t, before, tr.Records(), "tree must be unchanged")

	removed, err := tr.RemoveAll(free)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []NodeID{fixed}, tr.Roots())
}

func TestRemoveNode(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "bin/a.dll", "bin/b.dll")

	tr := New()
	bin, err := tr.AddFile(filepath.Join(dir, "bin"), Root)
	require.NoError(t, err)
	a, _ := tr.Resolve("bin/a.dll")

	removed, err := tr.RemoveNode(a)
	require.NoError(t, err)
	assert.Equal(t, "a.dll", removed.DisplayName())
	assert.Equal(t, 2, tr.Len())

	_, err = tr.RemoveNode(bin)
	require.NoError(t, err)
	assert.True(t, tr.Empty())
	assert.Equal(t, 0, tr.Len(), "descendants must leave the arena")
}

func TestRemoveAllNested(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "bin/a.dll", "bin/b.dll", "top.txt")

	tr := New()
	bin, err := tr.AddFile(filepath.Join(dir, "bin"), Root)
	require.NoError(t, err)
	_, err = tr.AddFile(filepath.Join(dir, "top.txt"), Root)
	require.NoError(t, err)
	a, _ := tr.Resolve("bin/a.dll")

	n, err := tr.RemoveAll(a)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, tr.Children(bin))
	assert.Len(t, tr.Roots(), 2)
}

func TestReorder(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "b.txt", "A.txt", "c/", "z/x.txt", "z/y/")

	tr := New()
	for _, name := range []string{"b.txt", "z", "A.txt", "c"} {
		_, err := tr.AddFile(filepath.Join(dir, name), Root)
		require.NoError(t, err)
	}
	original := paths(t, tr)

	once := tr.Reorder()
	assert.Equal(t, []string{"c", "z", "z/y", "z/x.txt", "A.txt", "b.txt"}, paths(t, once))
	assert.Equal(t, original, paths(t, tr), "Reorder must not mutate the receiver")

	twice := once.Reorder()
	assert.Equal(t, once.Records(), twice.Records())
	assertConsistent(t, twice)
}

func TestGetValidName(t *testing.T) {
	tests := []struct {
		name     string
		siblings []string
		want     string
	}{
		{"no siblings", nil, "NEW FOLDER"},
		{"one taken", []string{"NEW FOLDER"}, "NEW FOLDER (1)"},
		{"two taken", []string{"NEW FOLDER", "NEW FOLDER (1)"}, "NEW FOLDER (2)"},
		{"gap", []string{"NEW FOLDER", "NEW FOLDER (2)"}, "NEW FOLDER (1)"},
		{"unrelated", []string{"lib"}, "NEW FOLDER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetValidName(NewFolderName, tt.siblings))
		})
	}
}

func TestNewFolderAndRename(t *testing.T) {
	tr := New()
	first := tr.NewFolder(Root)
	second := tr.NewFolder(first)
	third := tr.NewFolder(Root)

	n1, _ := tr.Node(first)
	n3, _ := tr.Node(third)
	assert.Equal(t, "NEW FOLDER", n1.DisplayName())
	assert.Equal(t, "NEW FOLDER (1)", n3.DisplayName())
	assert.Equal(t, "NEW FOLDER/NEW FOLDER", tr.Path(second))

	require.NoError(t, tr.Rename(first, "plugins"))
	assert.Equal(t, "plugins/NEW FOLDER", tr.Path(second))
	assert.ErrorIs(t, tr.Rename(first, "  "), ErrEmptyName)
	assert.ErrorIs(t, tr.Rename(NodeID("x"), "y"), ErrNodeNotFound)

	got, ok := tr.Resolve("plugins/NEW FOLDER")
	require.True(t, ok)
	assert.Equal(t, second, got)
	_, ok = tr.Resolve("plugins/missing")
	assert.False(t, ok)
}

func TestDisplayNamePlaceholder(t *testing.T) {
	assert.Equal(t, "no_namefile", Node{}.DisplayName())
	assert.Equal(t, "app.exe", Node{SourcePath: "/x/app.exe"}.DisplayName())
	assert.Equal(t, "main.exe", Node{SourcePath: "/x/app.exe", OutputName: "main.exe"}.DisplayName())
}

func TestCloneIsIndependent(t *testing.T) {
	tr := New()
	folder := tr.NewFolder(Root)
	c := tr.Clone()

	require.NoError(t, tr.Rename(folder, "changed"))
	tr.NewFolder(folder)

	n, _ := c.Node(folder)
	assert.Equal(t, "NEW FOLDER", n.DisplayName())
	assert.Empty(t, n.Children)
}

func TestRandomEditsStayConsistent(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, "a/1.txt", "a/b/2.txt", "c/3.txt", "4.txt", "5.txt")

	tr := New()
	for _, name := range []string{"a", "c", "4.txt", "5.txt"} {
		_, err := tr.AddFile(filepath.Join(dir, name), Root)
		require.NoError(t, err)
	}

	// deterministic pseudo-random sequence of moves, re-adds and removals
	seed := uint32(7)
	next := func(n int) int {
		seed = seed*1664525 + 1013904223
		return int(seed>>16) % n
	}
	sources := []string{"a", "a/b", "a/1.txt", "c/3.txt", "4.txt", "5.txt"}
	for i := 0; i < 200; i++ {
		var ids []NodeID
		tr.walkIDs(tr.roots, func(id NodeID) { ids = append(ids, id) })
		switch op := next(3); {
		case op == 0 && len(ids) > 1:
			_ = tr.MoveNode(ids[next(len(ids))], ids[next(len(ids))])
		case op == 1:
			target := Root
			if len(ids) > 0 {
				target = ids[next(len(ids))]
			}
			_, err := tr.AddFile(filepath.Join(dir, filepath.FromSlash(sources[next(len(sources))])), target)
			require.NoError(t, err)
		case len(ids) > 0:
			_, _ = tr.RemoveNode(ids[next(len(ids))])
		}
		assertConsistent(t, tr)
	}
}
