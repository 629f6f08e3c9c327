package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Dev-Umb/wife-generate-game/internal/metrics"
)

// JobKind names a detached post-turn task.
type JobKind string

const (
	JobSummarize JobKind = "summarize"
	JobSuggest   JobKind = "suggest"
)

// JobStatus represents the state of a background job.
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// BackgroundJob holds the state of a single detached task.
type BackgroundJob struct {
	ID        string
	Kind      JobKind
	Status    JobStatus
	StartedAt time.Time
	DoneAt    time.Time
	Error     error
}

// BackgroundManager runs post-turn work (summaries, reply suggestions) off
// the turn path. Jobs share one context that Close cancels; Wait blocks
// until every job launched so far has returned.
type BackgroundManager struct {
	mu      sync.Mutex
	jobs    map[string]*BackgroundJob
	counter int
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// NewBackgroundManager creates a BackgroundManager.
func NewBackgroundManager(logger *zap.Logger) *BackgroundManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BackgroundManager{
		jobs:   make(map[string]*BackgroundJob),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Go launches fn as a detached job and returns its id. After Close it
// returns "" without running fn.
func (bm *BackgroundManager) Go(kind JobKind, fn func(ctx context.Context) error) string {
	bm.mu.Lock()
	if bm.ctx.Err() != nil {
		bm.mu.Unlock()
		return ""
	}
	bm.counter++
	id := fmt.Sprintf("%s-%d", kind, bm.counter)
	job := &BackgroundJob{ID: id, Kind: kind, Status: JobRunning, StartedAt: time.Now()}
	bm.jobs[id] = job
	bm.wg.Add(1)
	bm.mu.Unlock()

	go func() {
		defer bm.wg.Done()
		err := fn(bm.ctx)

		bm.mu.Lock()
		job.DoneAt = time.Now()
		if err != nil {
			job.Error = err
			job.Status = JobFailed
		} else {
			job.Status = JobDone
		}
		elapsed := job.DoneAt.Sub(job.StartedAt)
		bm.mu.Unlock()

		metrics.RecordBackgroundJob(string(kind), string(job.Status))
		if err != nil {
			bm.logger.Warn("background job failed",
				zap.String("job", id), zap.Duration("elapsed", elapsed), zap.Error(err))
			return
		}
		bm.logger.Debug("background job done", zap.String("job", id), zap.Duration("elapsed", elapsed))
	}()
	return id
}

// Running returns how many jobs have not finished.
func (bm *BackgroundManager) Running() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	n := 0
	for _, j := range bm.jobs {
		if j.Status == JobRunning {
			n++
		}
	}
	return n
}

// Prune forgets finished jobs and returns how many were removed.
func (bm *BackgroundManager) Prune() int {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	n := 0
	for id, j := range bm.jobs {
		if j.Status != JobRunning {
			delete(bm.jobs, id)
			n++
		}
	}
	return n
}

// Wait blocks until all launched jobs return or ctx is done.
func (bm *BackgroundManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		bm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels running jobs and waits for them to return.
func (bm *BackgroundManager) Close() {
	bm.mu.Lock()
	bm.cancel()
	bm.mu.Unlock()
	bm.wg.Wait()
}
