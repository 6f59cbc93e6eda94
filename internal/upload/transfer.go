// Package upload transfers release artifacts to a destination one file at a time.
package upload

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jfrog/gofrog/crypto"

	"squirrelctl/internal/models"
	"squirrelctl/pkg/utils"
)

// Status is the lifecycle state of a Transfer.
type Status int

const (
	Queued Status = iota
	InProgress
	Completed
)

func (s Status) String() string {
	switch s {
	case Queued:
		return "Queued"
	case InProgress:
		return "InProgress"
	case Completed:
		return "Completed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Transfer is one artifact waiting for, or going through, upload.
type Transfer struct {
	ID               string
	DisplayName      string
	DestinationLabel string
	SizeLabel        string
	SizeBytes        int64
	SourcePath       string
	Status           Status
	ProgressPercent  int

	SHA1   string
	SHA256 string
	MD5    string
}

// NewTransfer describes the file at path bound for destinationLabel.
func NewTransfer(path, destinationLabel string) (*Transfer, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", abs)
	}

	details, err := crypto.GetFileDetails(abs, true)
	if err != nil {
		return nil, fmt.Errorf("checksum %s: %w", abs, err)
	}

	return &Transfer{
		ID:               uuid.NewString(),
		DisplayName:      filepath.Base(abs),
		DestinationLabel: destinationLabel,
		SizeLabel:        utils.FormatBytes(info.Size()),
		SizeBytes:        info.Size(),
		SourcePath:       abs,
		Status:           Queued,
		SHA1:             details.Checksum.Sha1,
		SHA256:           details.Checksum.Sha256,
		MD5:              details.Checksum.Md5,
	}, nil
}

// Info converts t for JSON output.
func (t Transfer) Info() models.TransferInfo {
	return models.TransferInfo{
		ID:              t.ID,
		DisplayName:     t.DisplayName,
		Destination:     t.DestinationLabel,
		Size:            t.SizeLabel,
		SourcePath:      t.SourcePath,
		Status:          t.Status.String(),
		ProgressPercent: t.ProgressPercent,
		SHA1:            t.SHA1,
		SHA256:          t.SHA256,
	}
}
