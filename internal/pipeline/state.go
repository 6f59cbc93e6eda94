package pipeline

import (
	"fmt"
	"strings"
	"time"

	"squirrelctl/internal/upload"
)

// State is the step a publish run is in.
type State int

const (
	Idle State = iota
	Validating
	Saving
	Building
	Releasifying
	Uploading
	Aborted
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Validating:
		return "Validating"
	case Saving:
		return "Saving"
	case Building:
		return "Building"
	case Releasifying:
		return "Releasifying"
	case Uploading:
		return "Uploading"
	case Aborted:
		return "Aborted"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Mode selects which release artifacts are uploaded.
type Mode int

const (
	// Full uploads the installer and full package along with the update files.
	Full Mode = iota
	// UpdateOnly uploads the release manifest and delta package only.
	UpdateOnly
)

func (m Mode) String() string {
	if m == UpdateOnly {
		return "update-only"
	}
	return "full"
}

// ParseMode accepts the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return Full, nil
	case "update-only", "update":
		return UpdateOnly, nil
	default:
		return Full, fmt.Errorf("unknown publish mode %q", s)
	}
}

// Stage labels shown while the pipeline is busy.
const (
	StageValidate  = "VALIDATING"
	StageSave      = "SAVING PROJECT"
	StageBuild     = "NUGET PACKAGE CREATING"
	StageReleasify = "SQUIRREL PACKAGE CREATING"
	StageUpload    = "UPLOADING"
)

// EventKind tells what an Event reports.
type EventKind int

const (
	StateChanged EventKind = iota
	TransferStarted
	TransferProgress
	TransferCompleted
	TransferFailed
)

// Event is delivered to Options.OnEvent in the order it is produced.
type Event struct {
	Kind  EventKind
	RunID string
	State State
	Stage string
	// Transfer is set for transfer events.
	Transfer *upload.Transfer
	Err      error
	At       time.Time
}
