package cmd

import (
	"bufio"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"squirrelctl/internal/logging"
	"squirrelctl/internal/s3client"
	"squirrelctl/pkg/utils"
)

var pruneCmd = &cobra.Command{
	Use:     "prune",
	Aliases: []string{"delete-old"},
	Short:   "Delete release packages older than specified days",
	Long: `Delete old release packages from the bucket.

The command will:
- List the .nupkg objects in the specified folder (or the entire bucket)
- Filter objects older than the cutoff date
- Delete matching objects in batches
- Return detailed information about the deletion operation

RELEASES and Setup.exe always describe the latest version and are never
deleted. Clients updating from a version whose packages were pruned fall
back to downloading the full package.

WARNING: This operation is irreversible. Deleted files cannot be recovered.`,
	Example: `  # Delete packages older than 90 days from the configured bucket
  squirrelctl prune --days 90

  # Delete from the bucket of a project without a prompt
  squirrelctl prune -p acme.asproj --days 30 --confirm

  # Show what would be deleted
  squirrelctl prune --days 30 --folder "beta" --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPrune(cmd)
	},
}

func runPrune(cmd *cobra.Command) error {
	days, _ := cmd.Flags().GetInt("days")
	folder, _ := cmd.Flags().GetString("folder")
	confirm, _ := cmd.Flags().GetBool("confirm")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if days <= 0 {
		return fail("prune", fmt.Errorf("days must be greater than 0"))
	}

	settings, _, err := s3Settings(cmd)
	if err != nil {
		return fail("prune", err)
	}

	if !confirm && !dryRun {
		cutoffDate := time.Now().AddDate(0, 0, -days)
		prompt := fmt.Sprintf("WARNING: This will permanently delete packages older than %d days (%s) from bucket '%s'",
			days, cutoffDate.Format("2006-01-02"), settings.BucketName)
		if folder != "" {
			prompt += fmt.Sprintf(" in folder '%s'", folder)
		}
		if !askConfirmation(cmd, prompt+"\nAre you sure? (yes/no): ") {
			cmd.PrintErrln("Operation cancelled.")
			return nil
		}
	}

	timeout, _ := cmd.Flags().GetInt("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	client, err := s3client.New(ctx, settings, logging.L())
	if err != nil {
		return fail("prune", err)
	}

	if isVerbose(cmd) {
		cmd.PrintErrf("Deleting packages older than %d days from bucket: %s\n", days, settings.BucketName)
		if folder != "" {
			cmd.PrintErrf("Folder: %s\n", folder)
		}
		if dryRun {
			cmd.PrintErrln("DRY RUN MODE: No files will actually be deleted")
		}
	}

	result, err := client.DeleteOldFiles(ctx, folder, days, dryRun)
	if err != nil {
		return fail("prune", err)
	}

	if err := utils.PrintJSON(result); err != nil {
		return fail("prune", err)
	}

	if isVerbose(cmd) {
		cmd.PrintErrln("Delete operation completed successfully")
	}
	return nil
}

// askConfirmation writes prompt to stderr and reads a yes/no answer from
// the command's input.
func askConfirmation(cmd *cobra.Command, prompt string) bool {
	cmd.PrintErr(prompt)
	response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	return slices.Contains([]string{"y", "yes"}, strings.ToLower(strings.TrimSpace(response)))
}

func init() {
	pruneCmd.Flags().Int("days", 0, "Delete packages older than this many days (required)")
	if err := pruneCmd.MarkFlagRequired("days"); err != nil {
		utils.PrintError(err, "prune")
		return
	}

	pruneCmd.Flags().StringP("folder", "f", "", "Folder/prefix to search in (optional, searches entire bucket if not specified)")
	pruneCmd.Flags().Bool("confirm", false, "Skip confirmation prompt")
	pruneCmd.Flags().Bool("dry-run", false, "Show what would be deleted without actually deleting")
	pruneCmd.Flags().Int("timeout", 1800, "Timeout in seconds for the operation (default: 30 minutes)")
}
