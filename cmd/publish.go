package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"squirrelctl/internal/logging"
	"squirrelctl/internal/nupkg"
	"squirrelctl/internal/pipeline"
	"squirrelctl/internal/project"
	"squirrelctl/internal/releasify"
	"squirrelctl/pkg/utils"
)

// errAborted makes an aborted publish exit non-zero. The result printed
// before it already says the run was aborted.
var errAborted = errors.New("publish aborted")

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Build, releasify and upload a release",
	Long: `Publish the project as a new release.

The command will:
- Validate the package metadata, the file list and the selected destination
- Save the project file
- Create the NuGet package in <name>_files/Packages
- Run Squirrel.exe --releasify into <name>_files/Releases
- Upload RELEASES and the delta package, plus the full package and
  Setup.exe unless --update-only is given

Interrupting the command (Ctrl+C) while the package is being created or
releasified aborts the run, as does reaching --timeout. An aborted run
prints its result with state "aborted" and exits with status 1. Once
uploading has started it runs to completion.`,
	Example: `  # Publish a full release
  squirrelctl publish -p acme.asproj

  # Publish only the update files
  squirrelctl publish -p acme.asproj --update-only

  # Show stages and upload progress
  squirrelctl publish -p acme.asproj --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPublish(cmd)
	},
}

func runPublish(cmd *cobra.Command) error {
	updateOnly, _ := cmd.Flags().GetBool("update-only")
	timeout, _ := cmd.Flags().GetInt("timeout")

	p, err := loadProject(cmd)
	if err != nil {
		return fail("publish", err)
	}

	mode := pipeline.Full
	if updateOnly {
		mode = pipeline.UpdateOnly
	}

	pl := newPipeline(cmd, p)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		for {
			select {
			case <-sigs:
				if !pl.Abort() && pl.Busy() {
					cmd.PrintErrln("Uploads in progress, waiting for them to finish")
				}
			case <-finished:
				return
			}
		}
	}()

	if err := pl.Publish(ctx, mode); err != nil {
		if errors.Is(err, project.ErrNotSaved) {
			return fail("publish", errors.New("project has no file yet, run init first"))
		}
		return fail("publish", err)
	}

	res, err := pl.Wait(context.Background())
	if err != nil {
		return fail("publish", err)
	}
	if res.Err != nil {
		return fail("publish", res.Err)
	}

	if err := utils.PrintJSON(res.Info()); err != nil {
		return fail("publish", err)
	}
	if res.Outcome == pipeline.OutcomeAborted {
		return errAborted
	}
	return nil
}

func newPipeline(cmd *cobra.Command, p *project.Project) *pipeline.Pipeline {
	opts := pipeline.Options{
		Builder:     nupkg.NewBuilder(logging.L()),
		Releasifier: releasify.NewRunner(cfg.SquirrelPath, cfg.ShortcutLocations, logging.L()),
		Logger:      logging.L(),
	}
	if isVerbose(cmd) {
		opts.OnEvent = func(e pipeline.Event) { printEvent(cmd, e) }
	}
	return pipeline.New(p, opts)
}

func printEvent(cmd *cobra.Command, e pipeline.Event) {
	switch e.Kind {
	case pipeline.StateChanged:
		if e.Stage != "" {
			cmd.PrintErrf("%s\n", e.Stage)
		} else {
			cmd.PrintErrf("State: %s\n", e.State)
		}
	case pipeline.TransferStarted:
		cmd.PrintErrf("  %s (%s) -> %s\n", e.Transfer.DisplayName, e.Transfer.SizeLabel, e.Transfer.DestinationLabel)
	case pipeline.TransferProgress:
		cmd.PrintErrf("  %s: %d%%\n", e.Transfer.DisplayName, e.Transfer.ProgressPercent)
	case pipeline.TransferCompleted:
		cmd.PrintErrf("  %s uploaded\n", e.Transfer.DisplayName)
	case pipeline.TransferFailed:
		cmd.PrintErrf("  %s failed: %v\n", e.Transfer.DisplayName, e.Err)
	}
}

func init() {
	publishCmd.Flags().Bool("update-only", false, "Upload only RELEASES and the delta package")
	publishCmd.Flags().Int("timeout", 3600, "Timeout in seconds for the whole run (default: 1 hour)")
}
