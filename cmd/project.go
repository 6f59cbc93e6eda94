package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"squirrelctl/internal/destination"
	"squirrelctl/internal/models"
	"squirrelctl/internal/project"
	"squirrelctl/pkg/utils"
)

var initCmd = &cobra.Command{
	Use:   "init <file>",
	Short: "Create a project file",
	Long: `Create an empty project file. The .asproj extension is added when missing.

Saving also creates the <name>_files/Packages and <name>_files/Releases
directories next to the project file.`,
	Example: `  # Create a project in the current directory
  squirrelctl init acme

  # Create a project with the folder destination selected
  squirrelctl init releases/acme.asproj --destination "File System"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd, args)
	},
}

func runInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	label, _ := cmd.Flags().GetString("destination")

	path := args[0]
	if !strings.EqualFold(filepath.Ext(path), project.Extension) {
		path += project.Extension
	}
	if utils.FileExists(path) && !force {
		return fail("init", fmt.Errorf("project %s already exists, pass --force to overwrite", path))
	}

	p := project.New(projectOptions())
	if label != "" {
		if _, err := p.Destinations.Select(label); err != nil {
			return fail("init", err)
		}
	}
	if err := p.SaveAs(path); err != nil {
		return fail("init", err)
	}

	if err := utils.PrintJSON(projectInfo(p)); err != nil {
		return fail("init", err)
	}
	if isVerbose(cmd) {
		cmd.PrintErrf("Project created: %s\n", p.Path)
	}
	return nil
}

var infoCmd = &cobra.Command{
	Use:     "info",
	Short:   "Show project metadata and output directories",
	Example: `  squirrelctl info -p acme.asproj`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return fail("info", err)
		}
		if err := utils.PrintJSON(projectInfo(p)); err != nil {
			return fail("info", err)
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the project can be published",
	Long: `Check the package metadata, the file list and the selected destination.
Exits non-zero and lists the failing fields when the project is not publishable.`,
	Example: `  squirrelctl validate -p acme.asproj`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd)
	},
}

func runValidate(cmd *cobra.Command) error {
	p, err := loadProject(cmd)
	if err != nil {
		return fail("validate", err)
	}
	if err := p.RefreshVersion(); err != nil && isVerbose(cmd) {
		cmd.PrintErrf("Version refresh failed: %v\n", err)
	}

	r := p.Validate()
	report := models.ValidationReport{Project: p.Path, Valid: r.Valid(), Fields: r.Fields()}
	for _, e := range r.Errors {
		report.Errors = append(report.Errors, e.String())
	}
	if err := utils.PrintJSON(report); err != nil {
		return fail("validate", err)
	}
	return r.Err()
}

var setCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Set a package metadata field",
	Long: `Set one package metadata field and save the project.

Fields: appId, title, version, authors, description, mainExecutablePath,
iconPath, splashPath, versionIsManual.

A version must be major.minor.patch; anything else is rejected and the
version is derived from the main executable again.`,
	Example: `  squirrelctl set -p acme.asproj description "Acme desktop client"
  squirrelctl set -p acme.asproj version 2.1.0
  squirrelctl set -p acme.asproj iconPath assets/app.ico`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSet(cmd, args)
	},
}

func runSet(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return fail("set", err)
	}

	setErr := p.Set(args[0], args[1])
	if setErr != nil && !errors.Is(setErr, project.ErrInvalidVersion) {
		return fail("set", setErr)
	}
	// a rejected version still re-derives from the executable, keep that
	if err := p.Save(); err != nil {
		return fail("set", err)
	}
	if setErr != nil {
		return fail("set", setErr)
	}

	if err := utils.PrintJSON(projectInfo(p)); err != nil {
		return fail("set", err)
	}
	return nil
}

func projectInfo(p *project.Project) models.ProjectInfo {
	m := p.Metadata
	info := models.ProjectInfo{
		Path:               p.Path,
		AppID:              m.AppID,
		Title:              m.Title,
		Version:            m.Version,
		VersionIsManual:    m.VersionIsManual,
		Authors:            m.Authors,
		Description:        m.Description,
		MainExecutablePath: m.MainExecutablePath,
		IconPath:           m.IconPath,
		SplashPath:         m.SplashPath,
		NupkgOutputPath:    p.NupkgOutputPath,
		SquirrelOutputPath: p.SquirrelOutputPath,
		FileCount:          p.Tree.Len(),
	}
	if d := p.Destinations.Selected(); d != nil {
		info.Destination = d.Label()
		info.DestinationFields = destination.FieldMap(d, false)
	}
	return info
}

func init() {
	initCmd.Flags().Bool("force", false, "Overwrite an existing project file")
	initCmd.Flags().StringP("destination", "d", "", "Destination to select (Amazon S3, File System, MinIO)")
}
