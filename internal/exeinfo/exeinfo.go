// Package exeinfo reads the version resource embedded in Windows executables.
package exeinfo

import (
	"errors"
	"fmt"

	peparser "github.com/saferwall/pe"
	pelog "github.com/saferwall/pe/log"
	"go.uber.org/zap"

	"squirrelctl/internal/logging"
)

var (
	ErrNotExecutable = errors.New("not a PE executable")
	ErrNoVersionInfo = errors.New("no version resource found")
)

// Info holds the StringFileInfo fields of a version resource.
type Info struct {
	ProductName     string
	ProductVersion  string
	CompanyName     string
	FileDescription string
	FileVersion     string

	Strings map[string]string
}

// Version returns the product version, falling back to the file version.
func (i Info) Version() string {
	if i.ProductVersion != "" {
		return i.ProductVersion
	}
	return i.FileVersion
}

// Reader extracts version information from a file.
type Reader interface {
	Read(path string) (Info, error)
}

// FileReader reads version resources from files on disk. Parser diagnostics
// go to Logger at debug level.
type FileReader struct {
	Logger *zap.Logger
}

func (r FileReader) Read(path string) (Info, error) {
	return readFile(path, logging.OrDefault(r.Logger))
}

// ReadFile parses the version resource of the executable at path.
func ReadFile(path string) (Info, error) {
	return FileReader{}.Read(path)
}

func readFile(path string, logger *zap.Logger) (Info, error) {
	f, err := peparser.New(path, &peparser.Options{
		Logger:                     zapLogger{logger.Named("pe")},
		DisableCertValidation:      true,
		DisableSignatureValidation: true,
	})
	if err != nil {
		return Info{}, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	if err := f.Parse(); err != nil {
		return Info{}, fmt.Errorf("%s: %w: %v", path, ErrNotExecutable, err)
	}
	strs, err := f.ParseVersionResources()
	if err != nil {
		return Info{}, fmt.Errorf("%s: %w: %v", path, ErrNoVersionInfo, err)
	}
	info, err := FromStrings(strs)
	if err != nil {
		return Info{}, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

// FromStrings builds an Info from the key/value pairs of a StringFileInfo
// table.
func FromStrings(strs map[string]string) (Info, error) {
	if len(strs) == 0 {
		return Info{}, ErrNoVersionInfo
	}
	info := Info{
		ProductName:     strs["ProductName"],
		ProductVersion:  strs["ProductVersion"],
		CompanyName:     strs["CompanyName"],
		FileDescription: strs["FileDescription"],
		FileVersion:     strs["FileVersion"],
		Strings:         make(map[string]string, len(strs)),
	}
	for k, v := range strs {
		info.Strings[k] = v
	}
	return info, nil
}

// zapLogger routes parser messages to zap.
type zapLogger struct {
	l *zap.Logger
}

func (z zapLogger) Log(level pelog.Level, keyvals ...interface{}) error {
	z.l.Debug("pe parser", zap.Any("level", level), zap.Any("keyvals", keyvals))
	return nil
}
