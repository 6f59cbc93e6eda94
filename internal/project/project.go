// Package project holds the package being published: its metadata, file
// tree and cached destinations, plus the project file they are saved to.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"squirrelctl/internal/destination"
	"squirrelctl/internal/exeinfo"
	"squirrelctl/internal/filetree"
	"squirrelctl/internal/logging"
	"squirrelctl/internal/validation"
)

// Metadata field names, used for validation errors and the set command.
const (
	FieldAppID           = "appId"
	FieldTitle           = "title"
	FieldVersion         = "version"
	FieldAuthors         = "authors"
	FieldDescription     = "description"
	FieldMainExecutable  = "mainExecutablePath"
	FieldIcon            = "iconPath"
	FieldSplash          = "splashPath"
	FieldVersionIsManual = "versionIsManual"
	FieldFiles           = "files"
	FieldDestination     = "destination"
)

var ErrUnknownField = errors.New("unknown metadata field")

// Metadata describes the package.
type Metadata struct {
	AppID              string `toml:"app_id"`
	Title              string `toml:"title"`
	Version            string `toml:"version"`
	Authors            string `toml:"authors"`
	Description        string `toml:"description"`
	MainExecutablePath string `toml:"main_executable_path,omitempty"`
	IconPath           string `toml:"icon_path,omitempty"`
	SplashPath         string `toml:"splash_path,omitempty"`
	// VersionIsManual stops the version from following the main executable.
	VersionIsManual bool `toml:"version_is_manual"`
}

// Options configures collaborators shared by every project.
type Options struct {
	Destinations destination.Options
	Versions     exeinfo.Reader
	Logger       *zap.Logger
}

// Project is a package being edited. It is owned by a single goroutine;
// publish runs work on a snapshot.
type Project struct {
	Path               string
	Metadata           Metadata
	Tree               *filetree.Tree
	Destinations       *destination.Cache
	NupkgOutputPath    string
	SquirrelOutputPath string

	versions exeinfo.Reader
	logger   *zap.Logger
}

func New(opts Options) *Project {
	logger := logging.OrDefault(opts.Logger).Named("project")
	versions := opts.Versions
	if versions == nil {
		versions = exeinfo.FileReader{Logger: logger}
	}
	return &Project{
		Tree:         filetree.New(),
		Destinations: destination.NewCache(opts.Destinations),
		versions:     versions,
		logger:       logger,
	}
}

// Validate checks that the project can be published.
func (p *Project) Validate() validation.Result {
	var r validation.Result
	m := p.Metadata
	r.Required(FieldAppID, m.AppID)
	r.Required(FieldTitle, m.Title)
	r.Required(FieldDescription, m.Description)
	if strings.TrimSpace(m.Version) == "" {
		r.Required(FieldVersion, m.Version)
	} else if _, err := ParseVersion(m.Version); err != nil {
		r.Add(FieldVersion, "must be major.minor.patch")
	}
	if p.Tree.Empty() {
		r.Add(FieldFiles, "package has no files")
	}
	r.Required(FieldAuthors, m.Authors)

	if d := p.Destinations.Selected(); d == nil {
		r.Add(FieldDestination, "no destination selected")
	} else {
		r.Merge(FieldDestination, d.Validate())
	}
	return r
}

// SetVersion stores a manually entered version. An invalid value is
// rejected and the version is re-derived from the main executable.
func (p *Project) SetVersion(v string) error {
	parsed, err := ParseVersion(v)
	if err != nil {
		p.Metadata.VersionIsManual = false
		if refreshErr := p.RefreshVersion(); refreshErr != nil {
			p.logger.Warn("version refresh failed", zap.Error(refreshErr))
		}
		return err
	}
	p.Metadata.Version = parsed.String()
	p.Metadata.VersionIsManual = true
	return nil
}

// RefreshVersion re-reads the version of the main executable unless the
// version was set manually.
func (p *Project) RefreshVersion() error {
	m := &p.Metadata
	if m.VersionIsManual || m.MainExecutablePath == "" {
		return nil
	}
	if _, err := os.Stat(m.MainExecutablePath); err != nil {
		return nil
	}

	info, err := p.versions.Read(m.MainExecutablePath)
	if err != nil {
		return fmt.Errorf("read version of %s: %w", m.MainExecutablePath, err)
	}
	v, err := versionFromExecutable(info.Version())
	if err != nil {
		return fmt.Errorf("version of %s: %w", m.MainExecutablePath, err)
	}
	if m.Version != v.String() {
		p.logger.Debug("package version refreshed", zap.String("from", m.Version), zap.String("to", v.String()))
	}
	m.Version = v.String()
	return nil
}

// Set updates one metadata field by name.
func (p *Project) Set(field, value string) error {
	m := &p.Metadata
	switch field {
	case FieldAppID:
		m.AppID = value
	case FieldTitle:
		m.Title = value
	case FieldVersion:
		return p.SetVersion(value)
	case FieldAuthors:
		m.Authors = value
	case FieldDescription:
		m.Description = value
	case FieldIcon:
		return setExistingPath(&m.IconPath, value)
	case FieldSplash:
		return setExistingPath(&m.SplashPath, value)
	case FieldMainExecutable:
		if err := setExistingPath(&m.MainExecutablePath, value); err != nil {
			return err
		}
		return p.RefreshVersion()
	case FieldVersionIsManual:
		manual, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		m.VersionIsManual = manual
		if !manual {
			return p.RefreshVersion()
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownField, field)
	}
	return nil
}

// setExistingPath stores an absolute path that must exist, or clears it.
func setExistingPath(dst *string, value string) error {
	if value == "" {
		*dst = ""
		return nil
	}
	abs, err := filepath.Abs(value)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("%s: %w", value, err)
	}
	*dst = abs
	return nil
}

// Snapshot returns a copy whose tree shares no state with p.
func (p *Project) Snapshot() *Project {
	c := *p
	c.Tree = p.Tree.Clone()
	return &c
}
