package pipeline

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Publish while another run is in progress.
var ErrAlreadyRunning = errors.New("a publish is already running")

// BuildError reports a failure while creating the package archive.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string { return fmt.Sprintf("package creation failed: %v", e.Err) }

func (e *BuildError) Unwrap() error { return e.Err }

// ReleasifyError reports a releasify tool that could not start or exited
// abnormally.
type ReleasifyError struct {
	Err error
}

func (e *ReleasifyError) Error() string { return fmt.Sprintf("releasify failed: %v", e.Err) }

func (e *ReleasifyError) Unwrap() error { return e.Err }
