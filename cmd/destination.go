package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"squirrelctl/internal/destination"
	"squirrelctl/internal/models"
	"squirrelctl/internal/project"
	"squirrelctl/pkg/utils"
)

var errNoDestination = errors.New("no destination selected, run destination select first")

var destinationCmd = &cobra.Command{
	Use:     "destination",
	Aliases: []string{"dest"},
	Short:   "Choose and configure where releases are uploaded",
	Long: `Choose and configure where releases are uploaded.

Available destinations: Amazon S3, File System, MinIO. Every destination
keeps its own settings in the project file, so switching back and forth
does not lose them. Secret fields are masked in the output.`,
}

var destinationListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List destinations with their settings",
	Example: `  squirrelctl destination list -p acme.asproj`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return fail("destination list", err)
		}
		infos := make([]models.DestinationInfo, 0, len(destination.Labels()))
		for _, label := range destination.Labels() {
			d, err := p.Destinations.Get(label)
			if err != nil {
				return fail("destination list", err)
			}
			infos = append(infos, destinationInfo(p, d))
		}
		if err := utils.PrintJSON(infos); err != nil {
			return fail("destination list", err)
		}
		return nil
	},
}

var destinationSelectCmd = &cobra.Command{
	Use:   "select <label>",
	Short: "Select the destination used by publish",
	Example: `  squirrelctl destination select -p acme.asproj "File System"
  squirrelctl destination select -p acme.asproj minio`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editDestination(cmd, "destination select", func(p *project.Project) (destination.Destination, error) {
			return p.Destinations.Select(args[0])
		})
	},
}

var destinationSetCmd = &cobra.Command{
	Use:   "set <field> <value>",
	Short: "Set a field of the selected destination",
	Long: `Set a field of the selected destination, or of --destination when given.

Amazon S3: access_key, secret_key, bucket, region
File System: path
MinIO: endpoint, access_key, secret_key, bucket, region, use_ssl`,
	Example: `  squirrelctl destination set -p acme.asproj bucket acme-releases
  squirrelctl destination set -p acme.asproj path /srv/releases --destination "File System"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return editDestination(cmd, "destination set", func(p *project.Project) (destination.Destination, error) {
			d, err := targetDestination(cmd, p)
			if err != nil {
				return nil, err
			}
			return p.Destinations.SetField(d.Label(), args[0], args[1])
		})
	},
}

var destinationURLCmd = &cobra.Command{
	Use:     "url",
	Short:   "Show the download URL of the installer",
	Example: `  squirrelctl destination url -p acme.asproj`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject(cmd)
		if err != nil {
			return fail("destination url", err)
		}
		d, err := targetDestination(cmd, p)
		if err != nil {
			return fail("destination url", err)
		}
		if err := utils.PrintJSON(destinationInfo(p, d)); err != nil {
			return fail("destination url", err)
		}
		return nil
	},
}

func editDestination(cmd *cobra.Command, command string, edit func(p *project.Project) (destination.Destination, error)) error {
	p, err := loadProject(cmd)
	if err != nil {
		return fail(command, err)
	}
	d, err := edit(p)
	if err != nil {
		return fail(command, err)
	}
	if err := p.Save(); err != nil {
		return fail(command, err)
	}
	if err := utils.PrintJSON(destinationInfo(p, d)); err != nil {
		return fail(command, err)
	}
	return nil
}

// targetDestination returns --destination when set, otherwise the selected
// destination.
func targetDestination(cmd *cobra.Command, p *project.Project) (destination.Destination, error) {
	if label, _ := cmd.Flags().GetString("destination"); label != "" {
		return p.Destinations.Get(label)
	}
	if d := p.Destinations.Selected(); d != nil {
		return d, nil
	}
	return nil, errNoDestination
}

func destinationInfo(p *project.Project, d destination.Destination) models.DestinationInfo {
	r := d.Validate()
	info := models.DestinationInfo{
		Label:       d.Label(),
		Selected:    d.Label() == p.Destinations.SelectedLabel(),
		Fields:      destination.FieldMap(d, false),
		DownloadURL: d.DownloadURL(),
		Valid:       r.Valid(),
	}
	for _, e := range r.Errors {
		info.Errors = append(info.Errors, e.String())
	}
	return info
}

func init() {
	destinationCmd.AddCommand(destinationListCmd)
	destinationCmd.AddCommand(destinationSelectCmd)
	destinationCmd.AddCommand(destinationSetCmd)
	destinationCmd.AddCommand(destinationURLCmd)

	destinationSetCmd.Flags().StringP("destination", "d", "", "Destination to edit instead of the selected one")
	destinationURLCmd.Flags().StringP("destination", "d", "", "Destination to show instead of the selected one")
}
