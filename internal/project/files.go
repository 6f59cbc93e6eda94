package project

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"squirrelctl/internal/filetree"
	"squirrelctl/pkg/utils"
)

// AddFile imports path under target. A top-level executable becomes the
// main executable and fills metadata the user has not set yet.
func (p *Project) AddFile(path string, target filetree.NodeID) (filetree.NodeID, error) {
	id, err := p.Tree.AddFile(path, target)
	p.Tree = p.Tree.Reorder()
	if err != nil {
		return "", err
	}
	p.adoptIfMain(id)
	return id, nil
}

// DropPaths imports external paths, skipping build by-products. Paths
// imported before an error stay in the tree.
func (p *Project) DropPaths(paths []string, target filetree.NodeID) ([]filetree.NodeID, error) {
	for _, path := range paths {
		if !filetree.Importable(path) {
			p.logger.Debug("skipping dropped path", zap.String("path", path))
		}
	}
	tree, added, err := p.Tree.DropPaths(paths, target)
	p.Tree = tree
	for _, id := range added {
		p.adoptIfMain(id)
	}
	return added, err
}

// NewFixedFolder creates a directory that can be neither moved nor removed.
func (p *Project) NewFixedFolder(name string, target filetree.NodeID) (filetree.NodeID, error) {
	id, err := p.Tree.AddFixedFolder(name, target)
	if err != nil {
		return "", err
	}
	p.Tree = p.Tree.Reorder()
	return id, nil
}

// adoptIfMain makes id the main executable when it is a top-level .exe.
func (p *Project) adoptIfMain(id filetree.NodeID) {
	n, ok := p.Tree.Node(id)
	if !ok {
		return
	}
	if _, nested := p.Tree.FindParent(id); !nested && !n.IsDirectory && isExecutable(n.SourcePath) {
		p.adoptExecutable(n.SourcePath)
	}
}

// Move moves existing nodes onto target.
func (p *Project) Move(ids []filetree.NodeID, target filetree.NodeID) []error {
	tree, errs := p.Tree.DropNodes(ids, target)
	p.Tree = tree
	return errs
}

// NewFolder creates an empty directory under target.
func (p *Project) NewFolder(target filetree.NodeID) filetree.NodeID {
	id := p.Tree.NewFolder(target)
	p.Tree = p.Tree.Reorder()
	return id
}

// Rename changes the output name of a node.
func (p *Project) Rename(id filetree.NodeID, name string) error {
	if err := p.Tree.Rename(id, name); err != nil {
		return err
	}
	p.Tree = p.Tree.Reorder()
	return nil
}

// Remove deletes a node. Losing the main executable clears the designation.
func (p *Project) Remove(id filetree.NodeID) (filetree.Node, error) {
	removed, err := p.Tree.RemoveNode(id)
	if err != nil {
		return removed, err
	}

	if main := p.Metadata.MainExecutablePath; main != "" && len(p.Tree.FindBySource(main)) == 0 {
		p.clearMainExecutable()
	}
	return removed, nil
}

// RemoveAll clears the level anchor sits on and always drops the main
// executable designation.
func (p *Project) RemoveAll(anchor filetree.NodeID) (int, error) {
	n, err := p.Tree.RemoveAll(anchor)
	if err != nil {
		return 0, err
	}
	p.clearMainExecutable()
	return n, nil
}

func (p *Project) clearMainExecutable() {
	p.Metadata.MainExecutablePath = ""
	if err := p.RefreshVersion(); err != nil {
		p.logger.Warn("version refresh failed", zap.Error(err))
	}
}

func (p *Project) adoptExecutable(path string) {
	m := &p.Metadata
	if m.MainExecutablePath != "" && len(p.Tree.FindBySource(m.MainExecutablePath)) > 0 && !utils.SamePath(m.MainExecutablePath, path) {
		return
	}
	m.MainExecutablePath = path

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if m.AppID == "" {
		m.AppID = name
	}
	if m.Title == "" {
		m.Title = name
	}

	info, err := p.versions.Read(path)
	if err != nil {
		p.logger.Warn("cannot read version resource", zap.String("path", path), zap.Error(err))
		return
	}
	if m.Description == "" {
		m.Description = info.FileDescription
	}
	if m.Authors == "" {
		m.Authors = info.CompanyName
	}
	if err := p.RefreshVersion(); err != nil {
		p.logger.Warn("version refresh failed", zap.Error(err))
	}
}

func isExecutable(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".exe")
}
