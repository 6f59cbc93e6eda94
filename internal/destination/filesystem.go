package destination

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"squirrelctl/internal/logging"
	"squirrelctl/internal/validation"
	"squirrelctl/pkg/utils"
)

const LabelFileSystem = "File System"

// FileSystem copies artifacts into a local or UNC directory.
type FileSystem struct {
	TargetPath string

	logger *zap.Logger
}

func NewFileSystem(opts Options) *FileSystem {
	return &FileSystem{
		logger: logging.OrDefault(opts.Logger).With(zap.String("destination", LabelFileSystem)),
	}
}

func (f *FileSystem) Label() string { return LabelFileSystem }

func (f *FileSystem) Validate() validation.Result {
	var r validation.Result
	r.Required(FieldPath, f.TargetPath)
	return r
}

func (f *FileSystem) DownloadURL() string {
	if strings.TrimSpace(f.TargetPath) == "" {
		return MissingParameter
	}
	sep := "/"
	if strings.Contains(f.TargetPath, `\`) {
		sep = `\`
	}
	return strings.TrimRight(f.TargetPath, `/\`) + sep + setupFileName
}

func (f *FileSystem) Fields() []Field {
	return []Field{{Name: FieldPath, Value: f.TargetPath}}
}

func (f *FileSystem) SetField(name, value string) error {
	if name != FieldPath {
		return fieldError(LabelFileSystem, name)
	}
	f.TargetPath = value
	return nil
}

func (f *FileSystem) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(f.TargetPath, 0o755); err != nil {
		return fmt.Errorf("create target directory %s: %w", f.TargetPath, err)
	}
	return nil
}

// Upload copies the file. The copy has no intermediate progress, so the
// only report is the final 100.
func (f *FileSystem) Upload(ctx context.Context, localPath string, progress ProgressFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dst := filepath.Join(f.TargetPath, filepath.Base(localPath))
	n, err := utils.CopyFile(localPath, dst)
	if err != nil {
		return err
	}
	f.logger.Debug("copied artifact", zap.String("path", dst), zap.Int64("bytes", n))

	progress(100)
	return nil
}
