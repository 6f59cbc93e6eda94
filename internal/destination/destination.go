// Package destination defines where release artifacts are uploaded.
//
// Every backend implements Destination and is listed in an explicit registry,
// so selection code looks variants up by label and never switches on type.
package destination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"squirrelctl/internal/validation"
)

// MissingParameter is the download URL reported while required fields are unset.
const MissingParameter = "Missing Parameter"

const setupFileName = "Setup.exe"

var (
	ErrUnknownDestination = errors.New("unknown destination")
	ErrUnknownField       = errors.New("unknown field")
	ErrNotPrepared        = errors.New("destination not prepared")
)

// ProgressFunc receives the completion percentage of the active transfer.
type ProgressFunc func(percent int)

// Field is one user-editable setting of a destination.
type Field struct {
	Name   string
	Value  string
	Secret bool
}

// Destination is a place release artifacts can be uploaded to.
type Destination interface {
	Label() string
	Validate() validation.Result
	// DownloadURL is the best-effort public URL of the bootstrapper, or
	// MissingParameter.
	DownloadURL() string
	Fields() []Field
	SetField(name, value string) error
	// Prepare runs once per batch before the first Upload.
	Prepare(ctx context.Context) error
	// Upload transfers one file and must report 100 once it has completed.
	Upload(ctx context.Context, localPath string, progress ProgressFunc) error
}

// Options carries process-wide settings shared by every destination.
type Options struct {
	// Endpoint overrides the Amazon S3 API endpoint.
	Endpoint            string
	ConnectivityHost    string
	ConnectivityTimeout time.Duration
	// Defaults holds initial field values per label.
	Defaults map[string]map[string]string
	Logger   *zap.Logger
}

type factory func(Options) Destination

type registration struct {
	label string
	new   factory
}

var registry = []registration{
	{LabelObjectStorage, func(o Options) Destination { return NewObjectStorage(o) }},
	{LabelFileSystem, func(o Options) Destination { return NewFileSystem(o) }},
	{LabelMinIO, func(o Options) Destination { return NewMinIO(o) }},
}

// Labels returns every registered destination label in registration order.
func Labels() []string {
	labels := make([]string, 0, len(registry))
	for _, r := range registry {
		labels = append(labels, r.label)
	}
	return labels
}

// New creates the destination registered under label, case-insensitively,
// and applies the configured defaults.
func New(label string, opts Options) (Destination, error) {
	for _, r := range registry {
		if !strings.EqualFold(r.label, label) {
			continue
		}
		d := r.new(opts)
		for name, value := range opts.Defaults[r.label] {
			if value == "" {
				continue
			}
			if err := d.SetField(name, value); err != nil {
				return nil, fmt.Errorf("default for %s: %w", r.label, err)
			}
		}
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownDestination, label, strings.Join(Labels(), ", "))
}

// FieldMap returns the fields of d keyed by name. Secret values are masked
// unless reveal is set.
func FieldMap(d Destination, reveal bool) map[string]string {
	out := make(map[string]string)
	for _, f := range d.Fields() {
		v := f.Value
		if f.Secret && !reveal && v != "" {
			v = "****"
		}
		out[f.Name] = v
	}
	return out
}

func fieldError(label, name string) error {
	return fmt.Errorf("%w %q for %s", ErrUnknownField, name, label)
}

// percentOf scales done/total to 0-99; 100 is reserved for completion.
func percentOf(done, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(done * 100 / total)
	if p > 99 {
		p = 99
	}
	return p
}

func hasWhitespace(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	}) >= 0
}
