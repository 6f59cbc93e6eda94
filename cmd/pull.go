package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"squirrelctl/internal/logging"
	"squirrelctl/internal/s3client"
	"squirrelctl/pkg/utils"
)

var pullCmd = &cobra.Command{
	Use:     "pull",
	Aliases: []string{"download"},
	Short:   "Download the published release files",
	Long: `Download RELEASES and the release packages from the bucket.

Squirrel computes the delta package against the previous full package in
the Releases directory, so run this before publishing from a machine that
did not publish the previous version. Setup.exe is not downloaded.

With --project the files go to the project's Releases directory, otherwise
--destination is required.`,
	Example: `  # Download into the project's Releases directory
  squirrelctl pull -p acme.asproj

  # Download to a specific directory
  squirrelctl pull --destination /tmp/releases --bucket acme-releases`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPull(cmd)
	},
}

func runPull(cmd *cobra.Command) error {
	releaseDir, _ := cmd.Flags().GetString("destination")
	confirm, _ := cmd.Flags().GetBool("confirm")

	if releaseDir == "" {
		if projectPath(cmd) == "" {
			return fail("pull", fmt.Errorf("no destination directory, pass --destination or --project"))
		}
		p, err := loadProject(cmd)
		if err != nil {
			return fail("pull", err)
		}
		releaseDir = p.SquirrelOutputPath
	}

	settings, _, err := s3Settings(cmd)
	if err != nil {
		return fail("pull", err)
	}

	if !confirm {
		prompt := fmt.Sprintf("Download operation summary:\nBucket: %s\nDestination: %s\nContinue with download? (y/N): ",
			settings.BucketName, releaseDir)
		if !askConfirmation(cmd, prompt) {
			cmd.PrintErrln("Download cancelled.")
			return nil
		}
	}

	timeout, _ := cmd.Flags().GetInt("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	client, err := s3client.New(ctx, settings, logging.L())
	if err != nil {
		return fail("pull", err)
	}

	if isVerbose(cmd) {
		cmd.PrintErrf("Starting download operation...\n")
		cmd.PrintErrf("  Bucket: %s\n", settings.BucketName)
		cmd.PrintErrf("  Destination: %s\n", releaseDir)
	}

	result, err := client.DownloadReleases(ctx, releaseDir)
	if err != nil {
		return fail("pull", err)
	}

	if err := utils.PrintJSON(result); err != nil {
		return fail("pull", err)
	}

	if isVerbose(cmd) {
		cmd.PrintErrf("Downloaded %d files (%s)\n", result.TotalFiles, result.TotalSizeHuman)
	}
	return nil
}

func init() {
	pullCmd.Flags().StringP("destination", "d", "", "Local directory (default: the project's Releases directory)")
	pullCmd.Flags().Bool("confirm", false, "Skip confirmation prompt")
	pullCmd.Flags().Int("timeout", 3600, "Timeout in seconds for the operation (default: 1 hour)")
}
