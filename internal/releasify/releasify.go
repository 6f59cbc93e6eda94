// Package releasify runs the external tool that turns a package archive into
// release files and an installer.
package releasify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"

	"squirrelctl/internal/logging"
)

// DefaultShortcutLocations is used when no shortcut locations are configured.
const DefaultShortcutLocations = "Desktop,StartMenu"

// killGrace bounds how long Run waits for output pipes after the tool is killed.
const killGrace = 5 * time.Second

var ErrToolNotFound = errors.New("releasify tool not found")

// Request describes one releasify invocation.
type Request struct {
	PackagePath string
	ReleaseDir  string
	// IconPath is passed both as shortcut icon and setup icon.
	IconPath   string
	SplashPath string
}

// Runner invokes the releasify tool.
type Runner struct {
	ToolPath          string
	ShortcutLocations string
	logger            *zap.Logger
}

func NewRunner(toolPath, shortcutLocations string, logger *zap.Logger) *Runner {
	if shortcutLocations == "" {
		shortcutLocations = DefaultShortcutLocations
	}
	return &Runner{
		ToolPath:          toolPath,
		ShortcutLocations: shortcutLocations,
		logger:            logging.OrDefault(logger).Named("releasify"),
	}
}

// Args returns the command line for req, without the tool itself.
func (r *Runner) Args(req Request) []string {
	args := []string{
		"-releasify", req.PackagePath,
		"-releaseDir", req.ReleaseDir,
		"-l", r.ShortcutLocations,
	}
	if req.IconPath != "" {
		args = append(args, "-i", req.IconPath, "-setupIcon", req.IconPath)
	}
	if req.SplashPath != "" {
		args = append(args, "-g", req.SplashPath)
	}
	return args
}

// Run starts the tool and waits for it to exit. Cancelling ctx kills the
// process; Run then returns the context error.
func (r *Runner) Run(ctx context.Context, req Request) error {
	tool, err := filepath.Abs(r.ToolPath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", r.ToolPath, err)
	}
	if info, err := os.Stat(tool); err != nil || info.IsDir() {
		return fmt.Errorf("%s: %w", tool, ErrToolNotFound)
	}

	out := &zapio.Writer{Log: r.logger, Level: zapcore.DebugLevel}
	defer out.Close()

	cmd := exec.CommandContext(ctx, tool, r.Args(req)...)
	cmd.Dir = filepath.Dir(tool)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = killGrace

	start := time.Now()
	r.logger.Info("releasify started",
		zap.String("tool", tool),
		zap.String("package", req.PackagePath),
		zap.String("release_dir", req.ReleaseDir))

	err = cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		r.logger.Warn("releasify killed", zap.Error(ctxErr))
		return ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("releasify exited with code %d: %w", exitErr.ExitCode(), err)
		}
		return fmt.Errorf("start releasify: %w", err)
	}

	r.logger.Info("releasify completed", zap.Duration("elapsed", time.Since(start)))
	return nil
}
