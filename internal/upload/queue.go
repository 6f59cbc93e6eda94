package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"squirrelctl/internal/destination"
	"squirrelctl/internal/logging"
	"squirrelctl/internal/metrics"
)

var ErrQueueRunning = errors.New("upload queue is already running")

// UploadError reports a failed batch preparation or transfer.
type UploadError struct {
	Destination string
	// File is empty when the batch failed before any transfer started.
	File string
	Err  error
}

func (e *UploadError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("upload to %s: %v", e.Destination, e.Err)
	}
	return fmt.Sprintf("upload %s to %s: %v", e.File, e.Destination, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Listener receives queue events. Progress may be reported from a backend's
// own goroutines. Nil callbacks are skipped.
type Listener struct {
	OnStart    func(t Transfer)
	OnProgress func(t Transfer)
	OnComplete func(t Transfer)
	OnFailure  func(t Transfer, err error)
}

// Queue holds the transfers of one batch and drives them sequentially.
type Queue struct {
	logger   *zap.Logger
	listener Listener

	mu        sync.Mutex
	dest      destination.Destination
	transfers []*Transfer
	running   bool
}

func NewQueue(logger *zap.Logger, listener Listener) *Queue {
	return &Queue{
		logger:   logging.OrDefault(logger).Named("upload"),
		listener: listener,
	}
}

// Enqueue replaces the queue contents with transfers bound for dest.
func (q *Queue) Enqueue(dest destination.Destination, transfers []*Transfer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dest = dest
	q.transfers = append([]*Transfer(nil), transfers...)
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dest = nil
	q.transfers = nil
}

// Transfers returns a snapshot of the queue in enqueue order.
func (q *Queue) Transfers() []Transfer {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Transfer, 0, len(q.transfers))
	for _, t := range q.transfers {
		out = append(out, *t)
	}
	return out
}

// Len returns the number of queued transfers of any status.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.transfers)
}

// Start prepares the destination once, then uploads every Queued transfer
// in enqueue order, one at a time. It returns nil when the queue is
// drained and an *UploadError on the first failure; nothing is retried.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return ErrQueueRunning
	}
	dest := q.dest
	if dest == nil || q.nextLocked() == nil {
		q.mu.Unlock()
		return nil
	}
	q.running = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	if err := dest.Prepare(ctx); err != nil {
		q.logger.Error("destination not ready", zap.String("destination", dest.Label()), zap.Error(err))
		return &UploadError{Destination: dest.Label(), Err: err}
	}

	for {
		q.mu.Lock()
		t := q.nextLocked()
		q.mu.Unlock()
		if t == nil {
			return nil
		}
		if err := q.run(ctx, dest, t); err != nil {
			return err
		}
	}
}

func (q *Queue) nextLocked() *Transfer {
	for _, t := range q.transfers {
		if t.Status == Queued {
			return t
		}
	}
	return nil
}

func (q *Queue) run(ctx context.Context, dest destination.Destination, t *Transfer) error {
	log := q.logger.With(zap.String("file", t.DisplayName), zap.String("destination", dest.Label()))
	start := time.Now()

	q.mu.Lock()
	t.Status = InProgress
	t.ProgressPercent = 0
	snapshot := *t
	q.mu.Unlock()
	if q.listener.OnStart != nil {
		q.listener.OnStart(snapshot)
	}
	log.Info("upload started", zap.String("size", t.SizeLabel))

	err := dest.Upload(ctx, t.SourcePath, func(percent int) {
		q.onProgress(t, percent)
	})
	if err != nil {
		q.mu.Lock()
		snapshot = *t
		q.mu.Unlock()
		metrics.RecordUpload(dest.Label(), t.SizeBytes, false, time.Since(start))
		log.Error("upload failed", zap.Error(err))
		if q.listener.OnFailure != nil {
			q.listener.OnFailure(snapshot, err)
		}
		return &UploadError{Destination: dest.Label(), File: t.DisplayName, Err: err}
	}

	// a backend that finished without a final report still completes
	q.onProgress(t, 100)

	metrics.RecordUpload(dest.Label(), t.SizeBytes, true, time.Since(start))
	log.Info("upload completed", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// onProgress records percent for t. Reaching 100 marks t Completed and
// fires the completion event exactly once.
func (q *Queue) onProgress(t *Transfer, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	q.mu.Lock()
	if t.Status == Completed {
		q.mu.Unlock()
		return
	}
	if percent < t.ProgressPercent {
		percent = t.ProgressPercent
	}
	t.ProgressPercent = percent
	completed := percent == 100
	if completed {
		t.Status = Completed
	}
	snapshot := *t
	q.mu.Unlock()

	if q.listener.OnProgress != nil {
		q.listener.OnProgress(snapshot)
	}
	if completed && q.listener.OnComplete != nil {
		q.listener.OnComplete(snapshot)
	}
}
