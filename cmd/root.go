package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"squirrelctl/config"
	"squirrelctl/internal/destination"
	"squirrelctl/internal/filetree"
	"squirrelctl/internal/logging"
	"squirrelctl/internal/project"
	"squirrelctl/internal/s3client"
	"squirrelctl/pkg/utils"
)

var (
	cfg *config.Config
)

var errNoProject = errors.New("no project file given, pass --project or run init first")

var rootCmd = &cobra.Command{
	Use:   "squirrelctl",
	Short: "Package and publish Squirrel releases",
	Long: `squirrelctl packages a desktop application into a NuGet archive, turns it
into Squirrel release files and uploads them to Amazon S3, MinIO or a folder.

Project files (.asproj) hold the package metadata, the file layout and the
upload destinations. Configuration is loaded from .env file or environment variables`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if isVerbose(cmd) {
			logging.SetLevel("debug")
		}
	},
}

func Execute(config *config.Config) error {
	cfg = config
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(destinationCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(bucketInfoCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(pullCmd)

	rootCmd.PersistentFlags().StringP("project", "p", "", "Project file (.asproj)")
	rootCmd.PersistentFlags().StringP("bucket", "b", "", "Override bucket name from the project or config")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
}

// fail prints err as a JSON error response and returns it so the process
// exits non-zero.
func fail(command string, err error) error {
	utils.PrintError(err, command)
	return err
}

func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}

func projectPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("project")
	return path
}

// destinationOptions seeds the Amazon S3 destination with the configured
// credentials so projects may leave them empty.
func destinationOptions() destination.Options {
	return destination.Options{
		Endpoint:            cfg.ApiURL,
		ConnectivityHost:    cfg.ConnectivityHost,
		ConnectivityTimeout: cfg.ConnectivityTimeout,
		Defaults: map[string]map[string]string{
			destination.LabelObjectStorage: {
				destination.FieldAccessKey: cfg.AccessKey,
				destination.FieldSecretKey: cfg.SecretKey,
				destination.FieldBucket:    cfg.BucketName,
				destination.FieldRegion:    cfg.Region,
			},
		},
		Logger: logging.L(),
	}
}

func projectOptions() project.Options {
	return project.Options{
		Destinations: destinationOptions(),
		Logger:       logging.L(),
	}
}

func loadProject(cmd *cobra.Command) (*project.Project, error) {
	path := projectPath(cmd)
	if path == "" {
		return nil, errNoProject
	}
	return project.Load(path, projectOptions())
}

// s3Settings returns the bucket settings of the project's Amazon S3
// destination, or the configured ones when no project is given. --bucket
// overrides the bucket either way. The installer URL is only known for a
// project bucket.
func s3Settings(cmd *cobra.Command) (s3client.Settings, string, error) {
	var downloadURL string
	settings := s3client.Settings{
		Endpoint:   cfg.ApiURL,
		AccessKey:  cfg.AccessKey,
		SecretKey:  cfg.SecretKey,
		BucketName: cfg.BucketName,
		Region:     cfg.Region,
	}

	if projectPath(cmd) != "" {
		p, err := loadProject(cmd)
		if err != nil {
			return settings, "", err
		}
		d, err := p.Destinations.Get(destination.LabelObjectStorage)
		if err != nil {
			return settings, "", err
		}
		if storage, ok := d.(*destination.ObjectStorage); ok {
			settings = storage.Settings()
			if u := storage.DownloadURL(); u != destination.MissingParameter {
				downloadURL = u
			}
		}
	}

	if bucket, _ := cmd.Flags().GetString("bucket"); bucket != "" {
		settings.BucketName = destination.NormalizeBucketName(bucket)
		downloadURL = ""
	}
	if settings.BucketName == "" {
		return settings, "", fmt.Errorf("no bucket configured, set BUCKET_NAME or pass --bucket")
	}
	return settings, downloadURL, nil
}

// resolveTarget maps a display path to a node. An empty path or "/" is the
// top level of the tree.
func resolveTarget(tree *filetree.Tree, path string) (filetree.NodeID, error) {
	if strings.Trim(path, "/") == "" {
		return filetree.Root, nil
	}
	return resolveNode(tree, path)
}

func resolveNode(tree *filetree.Tree, path string) (filetree.NodeID, error) {
	id, ok := tree.Resolve(path)
	if !ok {
		return "", fmt.Errorf("%q: %w", path, filetree.ErrNodeNotFound)
	}
	return id, nil
}
