// Package scheduler runs the gateway's housekeeping jobs on cron schedules
// with a file lock that keeps gateways on one host from running the same
// job at once.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job statuses recorded after each run.
const (
	StatusOK             = "ok"
	StatusFailed         = "failed"
	StatusSkippedOverlap = "skipped_overlap"
	StatusSkippedLocked  = "skipped_locked"
)

// Job defines a schedulable unit of work.
type Job struct {
	Name string // Unique job identifier.
	Spec string // Cron expression or descriptor such as "@every 1m".
	Run  func(ctx context.Context) error
}

// RunRecorder persists the outcome of each run. The timeline service
// implements it.
type RunRecorder interface {
	UpsertScheduledJob(jobName, status string, runAt time.Time) error
}

// Config holds scheduler settings.
type Config struct {
	// LockDir enables per-job cross-process locks (<dir>/<job>.lock) when
	// non-empty.
	LockDir    string
	JobTimeout time.Duration
}

// Scheduler manages job registration and execution.
type Scheduler struct {
	cfg      Config
	cron     *cron.Cron
	recorder RunRecorder

	mu      sync.Mutex
	jobs    map[string]*Job
	running map[string]bool
	ctx     context.Context
	cancel  context.CancelFunc
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a Scheduler. recorder may be nil.
func New(cfg Config, recorder RunRecorder) *Scheduler {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	s := &Scheduler{
		cfg:      cfg,
		cron:     cron.New(cron.WithParser(parser)),
		recorder: recorder,
		jobs:     make(map[string]*Job),
		running:  make(map[string]bool),
		ctx:      context.Background(),
	}
	return s
}

// Register adds a job. Jobs registered after Start run on the next tick.
func (s *Scheduler) Register(job *Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a run function")
	}
	if _, err := parser.Parse(job.Spec); err != nil {
		return fmt.Errorf("scheduler: job %s: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("scheduler: job %s already registered", job.Name)
	}
	if _, err := s.cron.AddFunc(job.Spec, func() { s.run(s.runContext(), job) }); err != nil {
		return fmt.Errorf("scheduler: job %s: %w", job.Name, err)
	}
	s.jobs[job.Name] = job
	slog.Info("Scheduler job registered", "name", job.Name, "spec", job.Spec)
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	return out
}

// Start begins firing jobs. Runs stop receiving a live context once ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	slog.Info("Scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop halts the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-done.Done()
	slog.Info("Scheduler stopped")
}

// RunNow executes a registered job immediately and returns its status.
func (s *Scheduler) RunNow(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("scheduler: unknown job %s", name)
	}
	return s.run(ctx, job), nil
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) run(ctx context.Context, job *Job) string {
	now := time.Now()

	s.mu.Lock()
	if s.running[job.Name] {
		s.mu.Unlock()
		slog.Warn("Scheduler job skipped: previous run still active", "job", job.Name)
		s.logJobRun(job.Name, StatusSkippedOverlap, now)
		return StatusSkippedOverlap
	}
	s.running[job.Name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, job.Name)
		s.mu.Unlock()
	}()

	if s.cfg.LockDir != "" {
		lock := NewFileLock(filepath.Join(s.cfg.LockDir, job.Name+".lock"))
		acquired, err := lock.TryLock(job.Name)
		if err != nil {
			slog.Warn("Scheduler lock error", "job", job.Name, "error", err)
			s.logJobRun(job.Name, StatusFailed, now)
			return StatusFailed
		}
		if !acquired {
			owner, _ := ReadLockOwner(lock.Path())
			slog.Debug("Scheduler job skipped: lock held by another process", "job", job.Name, "pid", owner.PID, "host", owner.Host)
			s.logJobRun(job.Name, StatusSkippedLocked, now)
			return StatusSkippedLocked
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				slog.Warn("Scheduler unlock failed", "job", job.Name, "error", err)
			}
		}()
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	status := StatusOK
	if err := s.safeRun(runCtx, job); err != nil {
		status = StatusFailed
		slog.Warn("Scheduler job failed", "job", job.Name, "error", err)
	} else {
		slog.Debug("Scheduler job finished", "job", job.Name, "duration", time.Since(now))
	}
	s.logJobRun(job.Name, status, now)
	return status
}

func (s *Scheduler) safeRun(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Run(ctx)
}

// logJobRun persists the run status to the scheduled_jobs table (best-effort).
func (s *Scheduler) logJobRun(name, status string, tick time.Time) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.UpsertScheduledJob(name, status, tick); err != nil {
		slog.Debug("Scheduler run not recorded", "job", name, "error", err)
	}
}
