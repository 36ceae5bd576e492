// Package job runs investigations asynchronously and tracks their progress.
package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/osint-investigator/internal/model"
	"github.com/sells-group/osint-investigator/internal/monitoring"
	"github.com/sells-group/osint-investigator/internal/pipeline"
	"github.com/sells-group/osint-investigator/internal/store"
)

// Stage labels set by the manager itself.
const (
	StageInitializing = "Initializing..."
	StageCompleted    = "Completed"
	StageError        = "Error"
)

// Defaults applied by NewManager.
const (
	DefaultMaxRunning      = 5
	DefaultCleanupInterval = time.Minute
	storeWriteTimeout      = 5 * time.Second
)

// Runner executes one investigation.
type Runner interface {
	Run(ctx context.Context, req model.SearchRequest, progress pipeline.ProgressFunc) (*model.PersonProfile, error)
}

// Options tune a Manager.
type Options struct {
	MaxRunning int
	// Retention is how long terminal jobs stay pollable. Zero keeps them
	// until the process exits.
	Retention       time.Duration
	CleanupInterval time.Duration
	Metrics         *monitoring.Metrics
}

// Manager starts jobs, runs each on its own goroutine and answers progress
// polls from the store.
type Manager struct {
	store   store.Store
	runner  Runner
	opts    Options
	root    context.Context
	metrics *monitoring.Metrics
	now     func() time.Time

	mu      sync.Mutex
	running int
	wg      sync.WaitGroup
}

// NewManager creates a Manager. Jobs run on root, which should only be
// cancelled at shutdown.
func NewManager(root context.Context, st store.Store, runner Runner, opts Options) *Manager {
	if opts.MaxRunning <= 0 {
		opts.MaxRunning = DefaultMaxRunning
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = DefaultCleanupInterval
	}
	return &Manager{
		store:   st,
		runner:  runner,
		opts:    opts,
		root:    root,
		metrics: opts.Metrics,
		now:     time.Now,
	}
}

// StartJob validates req, records a running job and launches it. It returns
// as soon as the job is stored. Invalid requests return a
// *model.ValidationError; a full manager returns model.ErrTooManyJobs.
func (m *Manager) StartJob(ctx context.Context, req model.SearchRequest) (string, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return "", err
	}

	if !m.acquire() {
		m.metrics.JobRejected()
		return "", model.ErrTooManyJobs
	}

	id := uuid.NewString()
	now := m.now().UTC()
	job := &model.SearchJob{
		ID:        id,
		Status:    model.JobStatusIdle,
		Request:   req,
		CreatedAt: now,
	}
	if err := m.store.Create(ctx, job); err != nil {
		m.release()
		return "", eris.Wrap(err, "job: create")
	}
	if _, err := m.store.Update(ctx, id, func(j *model.SearchJob) error {
		j.Status = model.JobStatusRunning
		j.Stage = StageInitializing
		j.Percentage = 0
		j.StartedAt = &now
		return nil
	}); err != nil {
		m.release()
		// An idle job is never terminal, so the janitor would not collect it.
		if derr := m.store.Delete(ctx, id); derr != nil {
			zap.L().Warn("job: remove unstarted job", zap.String("job_id", id), zap.Error(derr))
		}
		return "", eris.Wrap(err, "job: start")
	}

	m.metrics.JobStarted()
	zap.L().Info("job: started",
		zap.String("job_id", id),
		zap.String("name", req.Name),
		zap.String("city", req.City),
	)

	m.wg.Add(1)
	go m.run(id, req, now)
	return id, nil
}

func (m *Manager) run(id string, req model.SearchRequest, started time.Time) {
	defer m.wg.Done()
	defer m.release()
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("job: panic", zap.String("job_id", id), zap.Any("panic", r), zap.Stack("stack"))
			m.fail(id, fmt.Sprintf("internal error: %v", r), started)
		}
	}()

	profile, err := m.runner.Run(m.root, req, func(stage string, pct int) {
		m.progress(id, stage, pct)
	})
	if err != nil {
		m.fail(id, err.Error(), started)
		return
	}
	m.complete(id, profile, started)
}

// progress records a stage change. The percentage never moves backwards and
// terminal jobs are left untouched.
func (m *Manager) progress(id, stage string, pct int) {
	ctx, cancel := m.writeContext()
	defer cancel()
	_, err := m.store.Update(ctx, id, func(j *model.SearchJob) error {
		if j.Status.Terminal() {
			return errSkip
		}
		if pct < j.Percentage {
			return errSkip
		}
		j.Stage = stage
		j.Percentage = min(pct, 100)
		return nil
	})
	if err != nil && !eris.Is(err, errSkip) {
		zap.L().Warn("job: failed to record progress", zap.String("job_id", id), zap.Error(err))
	}
}

var errSkip = eris.New("job: update skipped")

func (m *Manager) complete(id string, profile *model.PersonProfile, started time.Time) {
	ctx, cancel := m.writeContext()
	defer cancel()
	now := m.now().UTC()
	_, err := m.store.Update(ctx, id, func(j *model.SearchJob) error {
		j.Status = model.JobStatusCompleted
		j.Stage = StageCompleted
		j.Percentage = 100
		j.Result = profile
		j.ErrorMessage = ""
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		zap.L().Error("job: failed to store result", zap.String("job_id", id), zap.Error(err))
	}
	d := now.Sub(started)
	m.metrics.JobFinished(string(model.JobStatusCompleted), d)
	zap.L().Info("job: completed", zap.String("job_id", id), zap.Int64("duration_ms", d.Milliseconds()))
}

func (m *Manager) fail(id, msg string, started time.Time) {
	ctx, cancel := m.writeContext()
	defer cancel()
	now := m.now().UTC()
	_, err := m.store.Update(ctx, id, func(j *model.SearchJob) error {
		j.Status = model.JobStatusError
		j.Stage = StageError
		j.Percentage = 0
		j.ErrorMessage = msg
		j.Result = nil
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		zap.L().Error("job: failed to store error", zap.String("job_id", id), zap.Error(err))
	}
	d := now.Sub(started)
	m.metrics.JobFinished(string(model.JobStatusError), d)
	zap.L().Error("job: failed", zap.String("job_id", id), zap.String("error", msg), zap.Int64("duration_ms", d.Milliseconds()))
}

// writeContext detaches store writes from root so a job interrupted by
// shutdown can still record its outcome.
func (m *Manager) writeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(m.root), storeWriteTimeout)
}

// GetProgress returns the poll view of a job. Unknown ids and terminal jobs
// past their retention return model.ErrNotFound.
func (m *Manager) GetProgress(ctx context.Context, id string) (model.Progress, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return model.Progress{}, err
	}
	if m.expired(job) {
		return model.Progress{}, eris.Wrapf(model.ErrNotFound, "job %s expired", id)
	}
	return job.Snapshot(), nil
}

func (m *Manager) expired(job *model.SearchJob) bool {
	if m.opts.Retention <= 0 || job.CompletedAt == nil || !job.Status.Terminal() {
		return false
	}
	return m.now().Sub(*job.CompletedAt) > m.opts.Retention
}

// Cleanup deletes terminal jobs older than the retention period.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	if m.opts.Retention <= 0 {
		return 0, nil
	}
	n, err := m.store.DeleteFinishedBefore(ctx, m.now().UTC().Add(-m.opts.Retention))
	if err != nil {
		return 0, eris.Wrap(err, "job: cleanup")
	}
	if n > 0 {
		zap.L().Info("job: expired jobs removed", zap.Int("count", n))
	}
	return n, nil
}

// RunJanitor calls Cleanup every cleanup interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(m.opts.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Cleanup(ctx); err != nil {
				zap.L().Warn("job: janitor sweep failed", zap.Error(err))
			}
		}
	}
}

// Stats counts stored jobs per status.
func (m *Manager) Stats(ctx context.Context) (map[model.JobStatus]int, error) {
	out := make(map[model.JobStatus]int, 4)
	for _, s := range []model.JobStatus{model.JobStatusIdle, model.JobStatusRunning, model.JobStatusCompleted, model.JobStatusError} {
		n, err := m.store.CountByStatus(ctx, s)
		if err != nil {
			return nil, eris.Wrap(err, "job: stats")
		}
		out[s] = n
	}
	return out, nil
}

// Running returns the number of jobs executing in this process.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Wait blocks until every launched job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) acquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running >= m.opts.MaxRunning {
		return false
	}
	m.running++
	return true
}

func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running--
}
