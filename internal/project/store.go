package project

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"squirrelctl/internal/destination"
	"squirrelctl/internal/filetree"
	"squirrelctl/pkg/utils"
)

// Extension is the file extension of project files.
const Extension = ".asproj"

// ErrNotSaved is returned when an operation needs a project location and
// none has been chosen yet.
var ErrNotSaved = errors.New("project has not been saved yet")

type fileFormat struct {
	SelectedDestination string               `toml:"selected_destination,omitempty"`
	Metadata            Metadata             `toml:"metadata"`
	Destinations        []destination.Record `toml:"destinations,omitempty"`
	Files               []filetree.Record    `toml:"files,omitempty"`
}

// Load reads a project file.
func Load(path string, opts Options) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	var f fileFormat
	if _, err := toml.DecodeFile(abs, &f); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", abs, err)
	}

	tree, err := filetree.FromRecords(f.Files)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", abs, err)
	}

	p := New(opts)
	p.Path = abs
	p.Metadata = f.Metadata
	p.Tree = tree.Reorder()
	if err := p.Destinations.Restore(f.Destinations, f.SelectedDestination); err != nil {
		return nil, fmt.Errorf("project %s: %w", abs, err)
	}
	p.NupkgOutputPath, p.SquirrelOutputPath = outputDirs(abs)

	p.logger.Debug("project loaded", zap.String("path", abs), zap.Int("nodes", p.Tree.Len()))
	return p, nil
}

// SaveAs sets the project location and saves. The project extension is
// added when missing.
func (p *Project) SaveAs(path string) error {
	if path == "" {
		return ErrNotSaved
	}
	if !strings.EqualFold(filepath.Ext(path), Extension) {
		path += Extension
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	p.Path = abs
	return p.Save()
}

// Save writes the project file and creates its output directories.
func (p *Project) Save() error {
	if p.Path == "" {
		return ErrNotSaved
	}

	p.NupkgOutputPath, p.SquirrelOutputPath = outputDirs(p.Path)
	for _, dir := range []string{p.NupkgOutputPath, p.SquirrelOutputPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory %s: %w", dir, err)
		}
	}

	f := fileFormat{
		SelectedDestination: p.Destinations.SelectedLabel(),
		Metadata:            p.Metadata,
		Destinations:        p.Destinations.Records(),
		Files:               p.Tree.Records(),
	}

	// credentials are stored in clear, keep the file private
	err := utils.WriteFileAtomic(p.Path, 0o600, func(w io.Writer) error {
		return toml.NewEncoder(w).Encode(f)
	})
	if err != nil {
		return fmt.Errorf("save project: %w", err)
	}

	p.logger.Debug("project saved", zap.String("path", p.Path))
	return nil
}

// outputDirs derives <dir>/<name>_files/Packages and <dir>/<name>_files/Releases.
func outputDirs(projectPath string) (nupkg, releases string) {
	dir := filepath.Dir(projectPath)
	name := strings.TrimSuffix(filepath.Base(projectPath), filepath.Ext(projectPath))
	base := filepath.Join(dir, name+"_files")
	return filepath.Join(base, "Packages"), filepath.Join(base, "Releases")
}
