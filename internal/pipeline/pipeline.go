// Package pipeline drives a publish run: validate, save, build the package,
// releasify it and upload the release files.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"squirrelctl/internal/destination"
	"squirrelctl/internal/filetree"
	"squirrelctl/internal/logging"
	"squirrelctl/internal/metrics"
	"squirrelctl/internal/models"
	"squirrelctl/internal/nupkg"
	"squirrelctl/internal/project"
	"squirrelctl/internal/releasify"
	"squirrelctl/internal/upload"
	"squirrelctl/pkg/utils"
)

// Run outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeAborted   = "aborted"
	OutcomeInvalid   = "invalid"
	OutcomeNotSaved  = "not_saved"
)

// Builder creates the package archive from a file tree.
type Builder interface {
	Build(ctx context.Context, meta nupkg.Metadata, tree *filetree.Tree, outputDir string) (*models.PackageInfo, error)
}

// Releasifier turns a package archive into release files.
type Releasifier interface {
	Run(ctx context.Context, req releasify.Request) error
}

type Options struct {
	Builder     Builder
	Releasifier Releasifier
	Logger      *zap.Logger
	// OnEvent receives state changes and transfer progress.
	OnEvent func(Event)
}

// Result describes a finished run.
type Result struct {
	RunID       string
	Mode        Mode
	Outcome     string
	AppID       string
	Version     string
	Package     *models.PackageInfo
	Transfers   []upload.Transfer
	DownloadURL string
	Err         error
	Started     time.Time
	Finished    time.Time
}

// Info converts r for JSON output.
func (r Result) Info() models.PublishResult {
	transfers := make([]models.TransferInfo, 0, len(r.Transfers))
	for _, t := range r.Transfers {
		transfers = append(transfers, t.Info())
	}
	return models.PublishResult{
		RunID:       r.RunID,
		Mode:        r.Mode.String(),
		State:       r.Outcome,
		AppID:       r.AppID,
		Version:     r.Version,
		Package:     r.Package,
		Transfers:   transfers,
		DownloadURL: r.DownloadURL,
		Duration:    utils.FormatDuration(r.Finished.Sub(r.Started)),
		FinishedAt:  utils.FormatTime(r.Finished),
	}
}

// Pipeline publishes one project. Publish, Abort, State and Wait may be
// called from any goroutine; the project itself is only touched by Publish.
type Pipeline struct {
	project     *project.Project
	builder     Builder
	releasifier Releasifier
	queue       *upload.Queue
	logger      *zap.Logger
	onEvent     func(Event)

	// beforeUpload runs once the transfers are built, before the run
	// commits to uploading.
	beforeUpload func()

	emitMu sync.Mutex

	mu      sync.Mutex
	running bool
	state   State
	stage   string
	runID   string
	cancel  context.CancelFunc
	aborted bool
	done    chan struct{}
	result  Result
}

func New(p *project.Project, opts Options) *Pipeline {
	pl := &Pipeline{
		project:     p,
		builder:     opts.Builder,
		releasifier: opts.Releasifier,
		logger:      logging.OrDefault(opts.Logger).Named("pipeline"),
		onEvent:     opts.OnEvent,
	}
	pl.queue = upload.NewQueue(opts.Logger, upload.Listener{
		OnStart:    func(t upload.Transfer) { pl.emitTransfer(TransferStarted, t, nil) },
		OnProgress: func(t upload.Transfer) { pl.emitTransfer(TransferProgress, t, nil) },
		OnComplete: func(t upload.Transfer) { pl.emitTransfer(TransferCompleted, t, nil) },
		OnFailure:  func(t upload.Transfer, err error) { pl.emitTransfer(TransferFailed, t, err) },
	})
	return pl
}

// State returns the current state and stage label.
func (p *Pipeline) State() (State, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.stage
}

// Busy reports whether a run is in progress.
func (p *Pipeline) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Queue exposes the upload queue of the current or last run.
func (p *Pipeline) Queue() *upload.Queue {
	return p.queue
}

// Publish validates and saves the project on the calling goroutine, then
// builds, releasifies and uploads in the background. It returns once the
// background work has started; use Wait for the outcome.
//
// Publish returns a *validation.ValidationError when the project is not
// publishable and project.ErrNotSaved when it has no location yet. Neither
// touches the output directories.
func (p *Pipeline) Publish(ctx context.Context, mode Mode) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	runID := uuid.NewString()
	done := make(chan struct{})
	p.running = true
	p.runID = runID
	p.aborted = false
	p.done = done
	p.mu.Unlock()

	res := Result{RunID: runID, Mode: mode, Started: time.Now()}
	log := p.logger.With(zap.String("run_id", runID), zap.String("mode", mode.String()))

	p.queue.Clear()
	if err := p.project.RefreshVersion(); err != nil {
		log.Warn("version refresh failed", zap.Error(err))
	}

	p.setState(Validating, StageValidate)
	if err := p.project.Validate().Err(); err != nil {
		log.Info("project is not publishable", zap.Error(err))
		res.Outcome, res.Err = OutcomeInvalid, err
		p.finish(res, Failed)
		return err
	}

	p.setState(Saving, StageSave)
	if err := p.project.Save(); err != nil {
		if errors.Is(err, project.ErrNotSaved) {
			res.Outcome, res.Err = OutcomeNotSaved, err
			p.finish(res, Idle)
			return err
		}
		err = fmt.Errorf("save project: %w", err)
		res.Outcome, res.Err = OutcomeFailed, err
		p.finish(res, Failed)
		return err
	}

	snap := p.project.Snapshot()
	dest := p.project.Destinations.Selected()
	res.AppID, res.Version = snap.Metadata.AppID, snap.Metadata.Version

	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	log.Info("publish started",
		zap.String("app_id", res.AppID),
		zap.String("version", res.Version),
		zap.String("destination", dest.Label()))

	go func() {
		defer cancel()
		p.run(runCtx, log, snap, dest, res)
	}()
	return nil
}

// Abort cancels a run that is building or releasifying, killing the
// releasify process if it is running. Uploads that already started are
// left to finish. Abort reports whether a run was cancelled.
func (p *Pipeline) Abort() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || p.cancel == nil {
		return false
	}
	if p.state != Building && p.state != Releasifying {
		return false
	}
	p.aborted = true
	p.cancel()
	p.logger.Info("abort requested", zap.String("run_id", p.runID), zap.String("state", p.state.String()))
	return true
}

// Wait blocks until the current run has finished and returns its result.
// Without a run in progress it returns the last result.
func (p *Pipeline) Wait(ctx context.Context) (Result, error) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, nil
}

func (p *Pipeline) run(ctx context.Context, log *zap.Logger, snap *project.Project, dest destination.Destination, res Result) {
	m := snap.Metadata

	p.setState(Building, StageBuild)
	start := time.Now()
	pkg, err := p.builder.Build(ctx, nupkg.Metadata{
		ID:          m.AppID,
		Version:     m.Version,
		Title:       m.Title,
		Authors:     m.Authors,
		Description: m.Description,
	}, snap.Tree, snap.NupkgOutputPath)
	metrics.RecordStage("build", time.Since(start))
	if p.stopped(ctx, log, res) {
		return
	}
	if err != nil {
		p.fail(log, res, &BuildError{Err: err})
		return
	}
	res.Package = pkg

	p.setState(Releasifying, StageReleasify)
	start = time.Now()
	err = p.releasifier.Run(ctx, releasify.Request{
		PackagePath: pkg.Path,
		ReleaseDir:  snap.SquirrelOutputPath,
		IconPath:    m.IconPath,
		SplashPath:  m.SplashPath,
	})
	metrics.RecordStage("releasify", time.Since(start))
	if p.stopped(ctx, log, res) {
		return
	}
	if err != nil {
		p.fail(log, res, &ReleasifyError{Err: err})
		return
	}

	p.uploadArtifacts(ctx, log, snap, dest, res)
}

// stopped finishes the run when ctx was cancelled, by Abort or by the
// caller. Nothing is reported as an error and nothing is left queued.
func (p *Pipeline) stopped(ctx context.Context, log *zap.Logger, res Result) bool {
	if ctx.Err() == nil {
		return false
	}

	p.mu.Lock()
	aborted := p.aborted
	p.aborted = false
	p.mu.Unlock()

	p.queue.Clear()
	log.Info("publish stopped", zap.Bool("aborted", aborted), zap.NamedError("cause", ctx.Err()))
	res.Outcome = OutcomeAborted
	p.finish(res, Aborted)
	return true
}

func (p *Pipeline) uploadArtifacts(ctx context.Context, log *zap.Logger, snap *project.Project, dest destination.Destination, res Result) {
	m := snap.Metadata
	var transfers []*upload.Transfer
	for _, path := range Artifacts(snap.SquirrelOutputPath, m.AppID, m.Version, res.Mode) {
		t, err := upload.NewTransfer(path, dest.Label())
		if err != nil {
			p.fail(log, res, &upload.UploadError{Destination: dest.Label(), File: path, Err: err})
			return
		}
		transfers = append(transfers, t)
	}
	if len(transfers) == 0 {
		log.Warn("releasify produced no release files", zap.String("release_dir", snap.SquirrelOutputPath))
	}

	if p.beforeUpload != nil {
		p.beforeUpload()
	}
	if !p.enterUploading(ctx) {
		p.stopped(ctx, log, res)
		return
	}
	p.queue.Enqueue(dest, transfers)
	start := time.Now()
	err := p.queue.Start(context.WithoutCancel(ctx))
	metrics.RecordStage("upload", time.Since(start))
	res.Transfers = p.queue.Transfers()
	if err != nil {
		p.fail(log, res, err)
		return
	}

	res.DownloadURL = dest.DownloadURL()
	res.Outcome = OutcomeSucceeded
	log.Info("publish completed", zap.Int("files", len(transfers)), zap.String("download_url", res.DownloadURL))
	p.finish(res, Idle)
}

// enterUploading moves the run to Uploading unless it was aborted or
// cancelled first. Abort refuses once it returns true.
func (p *Pipeline) enterUploading(ctx context.Context) bool {
	p.mu.Lock()
	if p.aborted || ctx.Err() != nil {
		p.mu.Unlock()
		return false
	}
	p.state = Uploading
	p.stage = StageUpload
	runID := p.runID
	p.mu.Unlock()

	p.emit(Event{Kind: StateChanged, RunID: runID, State: Uploading, Stage: StageUpload})
	return true
}

func (p *Pipeline) fail(log *zap.Logger, res Result, err error) {
	log.Error("publish failed", zap.Error(err))
	res.Outcome, res.Err = OutcomeFailed, err
	if res.Transfers == nil {
		p.queue.Clear()
	}
	p.finish(res, Failed)
}

// finish records res, reports the terminal state and returns to Idle.
func (p *Pipeline) finish(res Result, terminal State) {
	res.Finished = time.Now()
	metrics.RecordPublish(res.Mode.String(), res.Outcome, res.Finished.Sub(res.Started))

	if terminal != Idle {
		p.setState(terminal, "")
	}

	p.mu.Lock()
	p.result = res
	p.running = false
	p.cancel = nil
	p.state = Idle
	p.stage = ""
	done := p.done
	p.mu.Unlock()

	p.emit(Event{Kind: StateChanged, RunID: res.RunID, State: Idle, Err: res.Err})
	close(done)
}

func (p *Pipeline) setState(s State, stage string) {
	p.mu.Lock()
	p.state = s
	p.stage = stage
	runID := p.runID
	p.mu.Unlock()
	p.emit(Event{Kind: StateChanged, RunID: runID, State: s, Stage: stage})
}

func (p *Pipeline) emitTransfer(kind EventKind, t upload.Transfer, err error) {
	p.mu.Lock()
	runID, state, stage := p.runID, p.state, p.stage
	p.mu.Unlock()
	p.emit(Event{Kind: kind, RunID: runID, State: state, Stage: stage, Transfer: &t, Err: err})
}

func (p *Pipeline) emit(e Event) {
	if p.onEvent == nil {
		return
	}
	e.At = time.Now()
	p.emitMu.Lock()
	defer p.emitMu.Unlock()
	p.onEvent(e)
}
