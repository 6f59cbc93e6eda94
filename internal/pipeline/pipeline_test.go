package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"squirrelctl/internal/destination"
	"squirrelctl/internal/filetree"
	"squirrelctl/internal/models"
	"squirrelctl/internal/nupkg"
	"squirrelctl/internal/project"
	"squirrelctl/internal/releasify"
	"squirrelctl/internal/upload"
	"squirrelctl/internal/validation"
)

// fakeBuilder writes an empty archive. When gate is set it signals entered
// and waits for gate to close before returning.
type fakeBuilder struct {
	err     error
	entered chan struct{}
	gate    chan struct{}
	calls   int
}

func (b *fakeBuilder) Build(_ context.Context, meta nupkg.Metadata, tree *filetree.Tree, outputDir string) (*models.PackageInfo, error) {
	b.calls++
	if b.gate != nil {
		close(b.entered)
		<-b.gate
	}
	if b.err != nil {
		return nil, b.err
	}
	path := filepath.Join(outputDir, nupkg.FileName(meta.ID, meta.Version))
	if err := os.WriteFile(path, []byte("PK"), 0o644); err != nil {
		return nil, err
	}
	return &models.PackageInfo{Path: path, AppID: meta.ID, Version: meta.Version, EntryCount: tree.Len()}, nil
}

// fakeReleasifier writes the named release files.
type fakeReleasifier struct {
	mu    sync.Mutex
	files []string
	err   error
	reqs  []releasify.Request
}

func (r *fakeReleasifier) Run(_ context.Context, req releasify.Request) error {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, name := range r.files {
		if err := os.WriteFile(filepath.Join(req.ReleaseDir, name), []byte(name), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeReleasifier) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

var allArtifacts = []string{"RELEASES", "acme-1.2.0-delta.nupkg", "acme-1.2.0-full.nupkg", "Setup.exe"}

type fixture struct {
	project   *project.Project
	builder   *fakeBuilder
	releasify *fakeReleasifier
	pipeline  *Pipeline
	uploadDir string
	events    []Event
	eventsMu  sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "core.dll"), []byte("dll"), 0o644))

	p := project.New(project.Options{Logger: zap.NewNop()})
	p.Metadata = project.Metadata{
		AppID:       "acme",
		Title:       "Acme",
		Authors:     "Acme Ltd",
		Description: "Acme Desktop",
	}
	require.NoError(t, p.SetVersion("1.2.0"))
	_, err := p.AddFile(filepath.Join(src, "core.dll"), filetree.Root)
	require.NoError(t, err)

	uploadDir := t.TempDir()
	d, err := p.Destinations.Select(destination.LabelFileSystem)
	require.NoError(t, err)
	require.NoError(t, d.SetField(destination.FieldPath, uploadDir))
	require.NoError(t, p.SaveAs(filepath.Join(t.TempDir(), "acme")))

	f := &fixture{
		project:   p,
		builder:   &fakeBuilder{},
		releasify: &fakeReleasifier{files: allArtifacts},
		uploadDir: uploadDir,
	}
	f.pipeline = New(p, Options{
		Builder:     f.builder,
		Releasifier: f.releasify,
		Logger:      zap.NewNop(),
		OnEvent: func(e Event) {
			f.eventsMu.Lock()
			defer f.eventsMu.Unlock()
			f.events = append(f.events, e)
		},
	})
	return f
}

func (f *fixture) wait(t *testing.T) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := f.pipeline.Wait(ctx)
	require.NoError(t, err)
	return res
}

func (f *fixture) states() []State {
	f.eventsMu.Lock()
	defer f.eventsMu.Unlock()
	var out []State
	for _, e := range f.events {
		if e.Kind == StateChanged {
			out = append(out, e.State)
		}
	}
	return out
}

func (f *fixture) uploaded(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.uploadDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func transferNames(ts []upload.Transfer) []string {
	var names []string
	for _, t := range ts {
		names = append(names, t.DisplayName)
	}
	return names
}

func TestPublishFull(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.pipeline.Publish(context.Background(), Full))
	res := f.wait(t)

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.Equal(t, allArtifacts, transferNames(res.Transfers))
	for _, tr := range res.Transfers {
		assert.Equal(t, upload.Completed, tr.Status)
		assert.Equal(t, 100, tr.ProgressPercent)
	}
	assert.ElementsMatch(t, allArtifacts, f.uploaded(t))
	assert.Equal(t, filepath.Join(f.uploadDir, "Setup.exe"), res.DownloadURL)

	assert.Equal(t, []State{Validating, Saving, Building, Releasifying, Uploading, Idle}, f.states())
	state, stage := f.pipeline.State()
	assert.Equal(t, Idle, state)
	assert.Empty(t, stage)
	assert.False(t, f.pipeline.Busy())

	req := f.releasify.reqs[0]
	assert.Equal(t, filepath.Join(f.project.NupkgOutputPath, "acme.1.2.0.nupkg"), req.PackagePath)
	assert.Equal(t, f.project.SquirrelOutputPath, req.ReleaseDir)

	info := res.Info()
	assert.Equal(t, "full", info.Mode)
	assert.Equal(t, OutcomeSucceeded, info.State)
	assert.Len(t, info.Transfers, 4)
}

func TestPublishUpdateOnlySkipsInstaller(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.pipeline.Publish(context.Background(), UpdateOnly))
	res := f.wait(t)

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"RELEASES", "acme-1.2.0-delta.nupkg"}, transferNames(res.Transfers))
	assert.ElementsMatch(t, []string{"RELEASES", "acme-1.2.0-delta.nupkg"}, f.uploaded(t))
}

func TestPublishFullSkipsMissingArtifacts(t *testing.T) {
	f := newFixture(t)
	f.releasify.files = []string{"RELEASES", "acme-1.2.0-delta.nupkg", "acme-1.2.0-full.nupkg"}

	require.NoError(t, f.pipeline.Publish(context.Background(), Full))
	res := f.wait(t)

	require.NoError(t, res.Err)
	assert.Equal(t, f.releasify.files, transferNames(res.Transfers))
}

func TestAbortBetweenBuildAndReleasify(t *testing.T) {
	f := newFixture(t)
	f.builder.entered = make(chan struct{})
	f.builder.gate = make(chan struct{})

	require.NoError(t, f.pipeline.Publish(context.Background(), Full))
	<-f.builder.entered

	state, stage := f.pipeline.State()
	assert.Equal(t, Building, state)
	assert.Equal(t, StageBuild, stage)
	assert.True(t, f.pipeline.Busy())

	assert.True(t, f.pipeline.Abort())
	close(f.builder.gate)
	res := f.wait(t)

	assert.NoError(t, res.Err)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Zero(t, f.releasify.calls())
	assert.Zero(t, f.pipeline.Queue().Len())
	assert.Empty(t, f.uploaded(t))

	state, _ = f.pipeline.State()
	assert.Equal(t, Idle, state)
	assert.Equal(t, []State{Validating, Saving, Building, Aborted, Idle}, f.states())

	// the pipeline accepts a new run afterwards
	f.builder.gate = nil
	require.NoError(t, f.pipeline.Publish(context.Background(), UpdateOnly))
	assert.Equal(t, OutcomeSucceeded, f.wait(t).Outcome)
}

func TestAbortAfterReleasifyBeforeUpload(t *testing.T) {
	f := newFixture(t)
	var accepted bool
	f.pipeline.beforeUpload = func() {
		state, _ := f.pipeline.State()
		assert.Equal(t, Releasifying, state)
		accepted = f.pipeline.Abort()
	}

	require.NoError(t, f.pipeline.Publish(context.Background(), Full))
	res := f.wait(t)

	assert.True(t, accepted)
	assert.NoError(t, res.Err)
	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Empty(t, res.Transfers)
	assert.Empty(t, f.uploaded(t))
	assert.Zero(t, f.pipeline.Queue().Len())
	assert.Equal(t, []State{Validating, Saving, Building, Releasifying, Aborted, Idle}, f.states())

	f.pipeline.beforeUpload = nil
	require.NoError(t, f.pipeline.Publish(context.Background(), UpdateOnly))
	res = f.wait(t)
	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.ElementsMatch(t, []string{"RELEASES", "acme-1.2.0-delta.nupkg"}, f.uploaded(t))
}

func TestAbortRefusedWhileUploading(t *testing.T) {
	f := newFixture(t)
	var attempts, accepted int
	f.pipeline.onEvent = func(e Event) {
		if e.Kind == StateChanged && e.State == Uploading {
			attempts++
			if f.pipeline.Abort() {
				accepted++
			}
		}
	}

	require.NoError(t, f.pipeline.Publish(context.Background(), Full))
	res := f.wait(t)

	assert.Equal(t, 1, attempts)
	assert.Zero(t, accepted)
	assert.Equal(t, OutcomeSucceeded, res.Outcome)
	assert.ElementsMatch(t, allArtifacts, f.uploaded(t))
}

func TestAbortWhenIdle(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.pipeline.Abort())
}

func TestPublishAlreadyRunning(t *testing.T) {
	f := newFixture(t)
	f.builder.entered = make(chan struct{})
	f.builder.gate = make(chan struct{})

	require.NoError(t, f.pipeline.Publish(context.Background(), Full))
	<-f.builder.entered

	assert.ErrorIs(t, f.pipeline.Publish(context.Background(), Full), ErrAlreadyRunning)

	close(f.builder.gate)
	assert.Equal(t, OutcomeSucceeded, f.wait(t).Outcome)
	assert.Equal(t, 1, f.builder.calls)
}

func TestPublishValidationFailure(t *testing.T) {
	f := newFixture(t)
	f.project.Metadata.Description = ""
	projectFile := f.project.Path
	require.NoError(t, os.Remove(projectFile))

	err := f.pipeline.Publish(context.Background(), Full)

	var ve *validation.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields(), project.FieldDescription)
	assert.NoFileExists(t, projectFile, "nothing is saved")
	assert.Zero(t, f.builder.calls)
	assert.False(t, f.pipeline.Busy())

	res := f.wait(t)
	assert.Equal(t, OutcomeInvalid, res.Outcome)
	assert.Equal(t, []State{Validating, Failed, Idle}, f.states())
}

func TestPublishNotSaved(t *testing.T) {
	f := newFixture(t)
	f.project.Path = ""

	err := f.pipeline.Publish(context.Background(), Full)
	assert.ErrorIs(t, err, project.ErrNotSaved)
	assert.Zero(t, f.builder.calls)
	assert.Equal(t, OutcomeNotSaved, f.wait(t).Outcome)
}

func TestPublishBuildFailure(t *testing.T) {
	f := newFixture(t)
	f.builder.err = errors.New("disk full")

	require.NoError(t, f.pipeline.Publish(context.Background(), Full))
	res := f.wait(t)

	var be *BuildError
	require.ErrorAs(t, res.Err, &be)
	assert.Contains(t, res.Err.Error(), "disk full")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Zero(t, f.releasify.calls())
	assert.Zero(t, f.pipeline.Queue().Len())
	assert.False(t, f.pipeline.Busy())
}

func TestPublishReleasifyFailure(t *testing.T) {
	f := newFixture(t)
	f.releasify.err = releasify.ErrToolNotFound

	require.NoError(t, f.pipeline.Publish(context.Background(), Full))
	res := f.wait(t)

	var re *ReleasifyError
	require.ErrorAs(t, res.Err, &re)
	assert.ErrorIs(t, res.Err, releasify.ErrToolNotFound)
	assert.Empty(t, f.uploaded(t))
	assert.Equal(t, []State{Validating, Saving, Building, Releasifying, Failed, Idle}, f.states())
}

func TestPublishUploadFailure(t *testing.T) {
	f := newFixture(t)
	d := f.project.Destinations.Selected()
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	require.NoError(t, d.SetField(destination.FieldPath, filepath.Join(blocker, "sub")))

	require.NoError(t, f.pipeline.Publish(context.Background(), Full))
	res := f.wait(t)

	var ue *upload.UploadError
	require.ErrorAs(t, res.Err, &ue)
	assert.Equal(t, OutcomeFailed, res.Outcome)
}

func TestPublishTransferEvents(t *testing.T) {
	f := newFixture(t)
	f.releasify.files = []string{"RELEASES"}

	require.NoError(t, f.pipeline.Publish(context.Background(), UpdateOnly))
	f.wait(t)

	var kinds []EventKind
	for _, e := range f.events {
		if e.Transfer != nil {
			kinds = append(kinds, e.Kind)
			assert.Equal(t, "RELEASES", e.Transfer.DisplayName)
			assert.Equal(t, Uploading, e.State)
		}
	}
	assert.Equal(t, []EventKind{TransferStarted, TransferProgress, TransferCompleted}, kinds)
}

func TestArtifacts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range allArtifacts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "acme-1.1.0-delta.nupkg"), nil, 0o644))

	full := Artifacts(dir, "acme", "1.2.0", Full)
	assert.Len(t, full, 4)
	assert.Equal(t, filepath.Join(dir, "Setup.exe"), full[3])

	update := Artifacts(dir, "acme", "1.2.0", UpdateOnly)
	assert.Equal(t, []string{filepath.Join(dir, "RELEASES"), filepath.Join(dir, "acme-1.2.0-delta.nupkg")}, update)

	assert.Equal(t, []string{filepath.Join(dir, "RELEASES")}, Artifacts(dir, "other", "1.2.0", UpdateOnly))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("update-only")
	require.NoError(t, err)
	assert.Equal(t, UpdateOnly, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Full, m)

	_, err = ParseMode("partial")
	assert.Error(t, err)
}
