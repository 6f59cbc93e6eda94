package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"squirrelctl/internal/logging"
	"squirrelctl/internal/models"
	"squirrelctl/internal/pipeline"
	"squirrelctl/internal/upload"
	"squirrelctl/pkg/utils"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload existing release files",
	Long: `Upload the release files of the current version without rebuilding them.

The files are taken from the project's Releases directory: RELEASES and the
delta package, plus the full package and Setup.exe unless --update-only is
given. Files that do not exist are skipped. Use this to retry a publish
whose upload failed.`,
	Example: `  # Upload to the selected destination
  squirrelctl upload -p acme.asproj

  # Upload only the update files to a different destination
  squirrelctl upload -p acme.asproj --update-only --destination MinIO

  # Show what would be uploaded
  squirrelctl upload -p acme.asproj --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpload(cmd)
	},
}

func runUpload(cmd *cobra.Command) error {
	updateOnly, _ := cmd.Flags().GetBool("update-only")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	p, err := loadProject(cmd)
	if err != nil {
		return fail("upload", err)
	}
	if err := p.RefreshVersion(); err != nil && isVerbose(cmd) {
		cmd.PrintErrf("Version refresh failed: %v\n", err)
	}

	dest, err := targetDestination(cmd, p)
	if err != nil {
		return fail("upload", err)
	}
	if err := dest.Validate().Err(); err != nil {
		return fail("upload", err)
	}

	mode := pipeline.Full
	if updateOnly {
		mode = pipeline.UpdateOnly
	}
	m := p.Metadata
	paths := pipeline.Artifacts(p.SquirrelOutputPath, m.AppID, m.Version, mode)
	if len(paths) == 0 {
		return fail("upload", fmt.Errorf("no release files for %s %s in %s, run publish first", m.AppID, m.Version, p.SquirrelOutputPath))
	}

	transfers := make([]*upload.Transfer, 0, len(paths))
	for _, path := range paths {
		t, err := upload.NewTransfer(path, dest.Label())
		if err != nil {
			return fail("upload", err)
		}
		transfers = append(transfers, t)
	}

	result := models.UploadResult{
		Project:       p.Path,
		Destination:   dest.Label(),
		Mode:          mode.String(),
		DryRun:        dryRun,
		TotalFiles:    len(transfers),
		DownloadURL:   dest.DownloadURL(),
		OperationTime: utils.FormatTime(time.Now()),
	}

	start := time.Now()
	if !dryRun {
		timeout, _ := cmd.Flags().GetInt("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
		defer cancel()

		if isVerbose(cmd) {
			cmd.PrintErrf("Uploading %d files to %s\n", len(transfers), dest.Label())
		}

		q := upload.NewQueue(logging.L(), uploadListener(cmd))
		q.Enqueue(dest, transfers)
		if err := q.Start(ctx); err != nil {
			return fail("upload", err)
		}
		for i, t := range q.Transfers() {
			transfers[i] = &t
		}
	}

	for _, t := range transfers {
		result.Transfers = append(result.Transfers, t.Info())
		result.TotalSizeBytes += t.SizeBytes
	}
	result.TotalSizeHuman = utils.FormatBytes(result.TotalSizeBytes)
	result.UploadDuration = utils.FormatDuration(time.Since(start))

	if err := utils.PrintJSON(result); err != nil {
		return fail("upload", err)
	}
	if isVerbose(cmd) {
		cmd.PrintErrln("Upload operation completed successfully")
	}
	return nil
}

func uploadListener(cmd *cobra.Command) upload.Listener {
	if !isVerbose(cmd) {
		return upload.Listener{}
	}
	return upload.Listener{
		OnStart: func(t upload.Transfer) {
			cmd.PrintErrf("  %s (%s)\n", t.DisplayName, t.SizeLabel)
		},
		OnProgress: func(t upload.Transfer) {
			cmd.PrintErrf("  %s: %d%%\n", t.DisplayName, t.ProgressPercent)
		},
		OnFailure: func(t upload.Transfer, err error) {
			cmd.PrintErrf("  %s failed: %v\n", t.DisplayName, err)
		},
	}
}

func init() {
	uploadCmd.Flags().Bool("update-only", false, "Upload only RELEASES and the delta package")
	uploadCmd.Flags().StringP("destination", "d", "", "Destination to upload to instead of the selected one")
	uploadCmd.Flags().Bool("dry-run", false, "Show what would be uploaded without uploading")
	uploadCmd.Flags().Int("timeout", 3600, "Timeout in seconds for the operation (default: 1 hour)")
}
