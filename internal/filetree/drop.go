package filetree

import (
	"path/filepath"
	"strings"
)

var excludedExtensions = map[string]struct{}{
	".pdb":   {},
	".nupkg": {},
}

// Importable reports whether an external path should be accepted by a drop.
// Debug symbols, existing packages and host-process shims are skipped.
func Importable(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	if strings.Contains(name, ".vshost.") {
		return false
	}
	_, excluded := excludedExtensions[filepath.Ext(name)]
	return !excluded
}

// DropNodes moves existing nodes onto target. Fixed nodes and moves that
// would create a cycle are skipped. The returned tree is reordered and
// should replace the receiver.
func (t *Tree) DropNodes(ids []NodeID, target NodeID) (*Tree, []error) {
	var errs []error
	for _, id := range ids {
		if err := t.MoveNode(id, target); err != nil {
			errs = append(errs, err)
		}
	}
	return t.Reorder(), errs
}

// DropPaths imports external paths onto target, skipping those Importable
// rejects. It returns the ids of the imported top nodes and a reordered tree
// that should replace the receiver.
func (t *Tree) DropPaths(paths []string, target NodeID) (*Tree, []NodeID, error) {
	var added []NodeID
	for _, p := range paths {
		if !Importable(p) {
			continue
		}
		id, err := t.AddFile(p, target)
		if err != nil {
			return t.Reorder(), added, err
		}
		added = append(added, id)
	}
	return t.Reorder(), added, nil
}
