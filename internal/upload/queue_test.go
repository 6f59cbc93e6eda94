package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"squirrelctl/internal/destination"
	"squirrelctl/internal/validation"
)

// fakeDestination records every call and reports progress in steps.
type fakeDestination struct {
	mu         sync.Mutex
	calls      []string
	steps      []int
	prepareErr error
	failOn     string
	q          *Queue
	maxActive  int
}

func (f *fakeDestination) Label() string { return "Fake" }
func (f *fakeDestination) Validate() validation.Result { return validation.Result{} }
func (f *fakeDestination) DownloadURL() string { return destination.MissingParameter }
func (f *fakeDestination) Fields() []destination.Field { return nil }
func (f *fakeDestination) SetField(string, string) error { return nil }

func (f *fakeDestination) Prepare(context.Context) error {
	f.record("prepare")
	return f.prepareErr
}

func (f *fakeDestination) Upload(_ context.Context, path string, progress destination.ProgressFunc) error {
	name := filepath.Base(path)
	f.record("upload " + name)

	active := 0
	for _, t := range f.q.Transfers() {
		if t.Status == InProgress {
			active++
		}
	}
	f.mu.Lock()
	if active > f.maxActive {
		f.maxActive = active
	}
	f.mu.Unlock()

	if name == f.failOn {
		progress(40)
		return errors.New("connection reset")
	}
	for _, p := range f.steps {
		progress(p)
	}
	return nil
}

func (f *fakeDestination) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func artifacts(t *testing.T, names ...string) []*Transfer {
	t.Helper()
	dir := t.TempDir()
	var out []*Transfer
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("artifact "+name), 0o644))
		tr, err := NewTransfer(path, "Fake")
		require.NoError(t, err)
		out = append(out, tr)
	}
	return out
}

func TestNewTransfer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "RELEASES")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	tr, err := NewTransfer(path, destination.LabelFileSystem)
	require.NoError(t, err)
	assert.Equal(t, "RELEASES", tr.DisplayName)
	assert.Equal(t, "3 B", tr.SizeLabel)
	assert.Equal(t, Queued, tr.Status)
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", tr.SHA1)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", tr.SHA256)
	assert.NotEmpty(t, tr.ID)

	info := tr.Info()
	assert.Equal(t, "Queued", info.Status)
	assert.Equal(t, destination.LabelFileSystem, info.Destination)

	_, err = NewTransfer(dir, "Fake")
	assert.Error(t, err)
	_, err = NewTransfer(filepath.Join(dir, "missing"), "Fake")
	assert.Error(t, err)
}

func TestQueueDrainsInOrder(t *testing.T) {
	var events []string
	q := NewQueue(zap.NewNop(), Listener{
		OnStart:    func(tr Transfer) { events = append(events, "start "+tr.DisplayName) },
		OnComplete: func(tr Transfer) { events = append(events, "complete "+tr.DisplayName) },
	})
	dest := &fakeDestination{steps: []int{10, 60, 100}, q: q}

	q.Enqueue(dest, artifacts(t, "RELEASES", "app-1.0.0-delta.nupkg", "app-1.0.0-full.nupkg", "Setup.exe"))
	require.NoError(t, q.Start(context.Background()))

	assert.Equal(t, []string{
		"start RELEASES", "complete RELEASES",
		"start app-1.0.0-delta.nupkg", "complete app-1.0.0-delta.nupkg",
		"start app-1.0.0-full.nupkg", "complete app-1.0.0-full.nupkg",
		"start Setup.exe", "complete Setup.exe",
	}, events)
	assert.Equal(t, "prepare", dest.calls[0], "prepare runs once before any upload")
	assert.Len(t, dest.calls, 5)
	assert.Equal(t, 1, dest.maxActive)

	for _, tr := range q.Transfers() {
		assert.Equal(t, Completed, tr.Status)
		assert.Equal(t, 100, tr.ProgressPercent)
	}

	// a drained queue is not an error and does not prepare again
	require.NoError(t, q.Start(context.Background()))
	assert.Len(t, dest.calls, 5)
}

func TestQueueCompletesWithoutFinalReport(t *testing.T) {
	completed := 0
	q := NewQueue(zap.NewNop(), Listener{OnComplete: func(Transfer) { completed++ }})
	dest := &fakeDestination{steps: []int{30, 20}, q: q}

	q.Enqueue(dest, artifacts(t, "RELEASES"))
	require.NoError(t, q.Start(context.Background()))

	got := q.Transfers()[0]
	assert.Equal(t, Completed, got.Status)
	assert.Equal(t, 100, got.ProgressPercent)
	assert.Equal(t, 1, completed)
}

func TestQueueCompletionFiresOnce(t *testing.T) {
	completed := 0
	q := NewQueue(zap.NewNop(), Listener{OnComplete: func(Transfer) { completed++ }})
	dest := &fakeDestination{steps: []int{100, 100, 150}, q: q}

	q.Enqueue(dest, artifacts(t, "Setup.exe"))
	require.NoError(t, q.Start(context.Background()))
	assert.Equal(t, 1, completed)
}

func TestQueueStopsOnFailure(t *testing.T) {
	var failed []string
	q := NewQueue(zap.NewNop(), Listener{OnFailure: func(tr Transfer, _ error) { failed = append(failed, tr.DisplayName) }})
	dest := &fakeDestination{steps: []int{100}, failOn: "b.nupkg", q: q}

	q.Enqueue(dest, artifacts(t, "a.nupkg", "b.nupkg", "c.nupkg"))
	err := q.Start(context.Background())

	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "b.nupkg", ue.File)
	assert.Equal(t, "Fake", ue.Destination)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, []string{"b.nupkg"}, failed)

	statuses := []Status{}
	for _, tr := range q.Transfers() {
		statuses = append(statuses, tr.Status)
	}
	assert.Equal(t, []Status{Completed, InProgress, Queued}, statuses, "no retry, partial state is kept")
	assert.Equal(t, 40, q.Transfers()[1].ProgressPercent)
}

func TestQueuePrepareFailure(t *testing.T) {
	q := NewQueue(zap.NewNop(), Listener{})
	dest := &fakeDestination{prepareErr: destination.ErrNoConnectivity, q: q}

	q.Enqueue(dest, artifacts(t, "RELEASES", "Setup.exe"))
	err := q.Start(context.Background())

	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Empty(t, ue.File)
	assert.ErrorIs(t, err, destination.ErrNoConnectivity)
	assert.Equal(t, []string{"prepare"}, dest.calls)
}

func TestEnqueueReplacesAndClear(t *testing.T) {
	q := NewQueue(zap.NewNop(), Listener{})
	dest := &fakeDestination{q: q}

	q.Enqueue(dest, artifacts(t, "a", "b"))
	q.Enqueue(dest, artifacts(t, "c"))
	require.Equal(t, 1, q.Len())
	assert.Equal(t, "c", q.Transfers()[0].DisplayName)

	q.Clear()
	assert.Equal(t, 0, q.Len())
	require.NoError(t, q.Start(context.Background()))
	assert.Empty(t, dest.calls)
}

func TestFileSystemTransferCompletes(t *testing.T) {
	fs, err := destination.New(destination.LabelFileSystem, destination.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	target := t.TempDir()
	require.NoError(t, fs.SetField(destination.FieldPath, target))

	var progress []int
	q := NewQueue(zap.NewNop(), Listener{OnProgress: func(tr Transfer) { progress = append(progress, tr.ProgressPercent) }})
	q.Enqueue(fs, artifacts(t, "RELEASES", "Setup.exe"))
	require.NoError(t, q.Start(context.Background()))

	for _, tr := range q.Transfers() {
		assert.Equal(t, Completed, tr.Status)
		assert.Equal(t, 100, tr.ProgressPercent)
		assert.FileExists(t, filepath.Join(target, tr.DisplayName))
	}
	assert.Equal(t, []int{100, 100}, progress)
}
