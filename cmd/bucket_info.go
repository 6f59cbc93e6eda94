package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"squirrelctl/internal/logging"
	"squirrelctl/internal/s3client"
	"squirrelctl/pkg/utils"
)

var bucketInfoCmd = &cobra.Command{
	Use:   "bucket-info",
	Short: "Get comprehensive bucket information",
	Long: `Get detailed information about the release bucket.

With --project the bucket and credentials of the project's Amazon S3
destination are used, otherwise the ones from the configuration. The
--bucket flag overrides the bucket name either way.`,
	Example: `  # Get info for the configured bucket
  squirrelctl bucket-info

  # Get info for the bucket of a project
  squirrelctl bucket-info -p acme.asproj

  # Get info for specific bucket
  squirrelctl bucket-info --bucket my-other-bucket`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBucketInfo(cmd)
	},
}

func runBucketInfo(cmd *cobra.Command) error {
	settings, downloadURL, err := s3Settings(cmd)
	if err != nil {
		return fail("bucket-info", err)
	}

	timeout, _ := cmd.Flags().GetInt("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	client, err := s3client.New(ctx, settings, logging.L())
	if err != nil {
		return fail("bucket-info", err)
	}

	if isVerbose(cmd) {
		cmd.PrintErrf("Getting bucket information for: %s\n", settings.BucketName)
	}

	info, err := client.GetBucketInfo(ctx)
	if err != nil {
		return fail("bucket-info", err)
	}
	info.DownloadURL = downloadURL

	if err := utils.PrintJSON(info); err != nil {
		return fail("bucket-info", err)
	}

	if isVerbose(cmd) {
		cmd.PrintErrln("Bucket info retrieved successfully")
	}
	return nil
}

func init() {
	bucketInfoCmd.Flags().Int("timeout", 300, "Timeout in seconds for the operation")
}
