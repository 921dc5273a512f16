// Package scheduler owns the set of running job runners: it resumes active
// jobs at startup, starts runners for new jobs and stops them on request.
package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/aatumaykin/shuttlewatch/internal/job"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/store"
)

var ErrNotStarted = errors.New("scheduler is not started")

// JobStore is the persistence the scheduler drives.
type JobStore interface {
	Active() []store.Entry
	Append(owner string, j job.Job) (job.Job, error)
	MarkAllCompleted(owner string) (int, error)
	ListActive(owner string) []job.Job
	RemoveActive(owner string, position int) (job.Job, error)
}

// Runnable is one job's monitoring loop.
type Runnable interface {
	Run(ctx context.Context) error
}

// RunnerFactory builds the loop for a job.
type RunnerFactory func(owner string, j job.Job) Runnable

// Gauge tracks the number of running jobs.
type Gauge interface {
	SetActiveJobs(n int)
}

type running struct {
	owner  string
	cancel context.CancelFunc
}

type Scheduler struct {
	store     JobStore
	catalogue *job.Catalogue
	newRunner RunnerFactory
	log       *logger.Logger
	gauge     Gauge

	mu      sync.Mutex
	ctx     context.Context
	running map[string]running
	wg      sync.WaitGroup
}

func New(s JobStore, catalogue *job.Catalogue, newRunner RunnerFactory, log *logger.Logger, gauge Gauge) *Scheduler {
	return &Scheduler{
		store:     s,
		catalogue: catalogue,
		newRunner: newRunner,
		log:       log,
		gauge:     gauge,
		running:   make(map[string]running),
	}
}

// Start spawns a runner for every active job and returns how many were
// resumed. Runners stop when ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) int {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	resumed := 0
	for _, e := range s.store.Active() {
		if s.spawn(e.Owner, e.Job) {
			resumed++
		}
	}
	s.log.Info("scheduler started", logger.Field{Key: "resumed_jobs", Value: resumed})
	return resumed
}

// CreateJob validates j, stores it and starts monitoring it immediately.
func (s *Scheduler) CreateJob(ctx context.Context, owner string, j job.Job) (job.Job, error) {
	if !s.started() {
		return job.Job{}, ErrNotStarted
	}
	if s.catalogue != nil {
		if err := j.Validate(s.catalogue); err != nil {
			return job.Job{}, err
		}
	}
	j.Completed = false

	stored, err := s.store.Append(owner, j)
	if err != nil {
		return job.Job{}, err
	}
	s.spawn(owner, stored)

	s.log.InfoCtx(ctx, "job created",
		logger.Field{Key: "owner", Value: owner},
		logger.Field{Key: "job_id", Value: stored.ID},
		logger.Field{Key: "job", Value: stored.Summary()})
	return stored, nil
}

// StopAll completes every job of owner and stops their runners.
func (s *Scheduler) StopAll(owner string) (int, error) {
	n, err := s.store.MarkAllCompleted(owner)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	for id, r := range s.running {
		if r.owner == owner {
			r.cancel()
			delete(s.running, id)
		}
	}
	s.mu.Unlock()
	s.updateGauge()

	s.log.Info("owner jobs stopped",
		logger.Field{Key: "owner", Value: owner},
		logger.Field{Key: "count", Value: n})
	return n, nil
}

// ListActive returns owner's active jobs in creation order.
func (s *Scheduler) ListActive(owner string) []job.Job {
	return s.store.ListActive(owner)
}

// RemoveActive deletes the job at position (1-based among active jobs) and
// stops its runner.
func (s *Scheduler) RemoveActive(owner string, position int) (job.Job, error) {
	removed, err := s.store.RemoveActive(owner, position)
	if err != nil {
		return job.Job{}, err
	}
	s.cancel(removed.ID)

	s.log.Info("job removed",
		logger.Field{Key: "owner", Value: owner},
		logger.Field{Key: "job_id", Value: removed.ID})
	return removed, nil
}

// Running returns the number of live runners.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Stop cancels every runner and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id, r := range s.running {
		r.cancel()
		delete(s.running, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.updateGauge()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

func (s *Scheduler) spawn(owner string, j job.Job) bool {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return false
	}
	if _, ok := s.running[j.ID]; ok {
		s.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.running[j.ID] = running{owner: owner, cancel: cancel}
	s.wg.Add(1)
	s.mu.Unlock()
	s.updateGauge()

	r := s.newRunner(owner, j)
	log := s.log.With(
		logger.Field{Key: "owner", Value: owner},
		logger.Field{Key: "job_id", Value: j.ID})

	go func() {
		defer s.wg.Done()
		defer s.finished(j.ID, cancel)

		log.Info("runner started")
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("runner stopped with error", err)
			return
		}
		log.Info("runner stopped")
	}()
	return true
}

// finished forgets a runner that returned on its own.
func (s *Scheduler) finished(id string, cancel context.CancelFunc) {
	cancel()
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
	s.updateGauge()
}

func (s *Scheduler) cancel(id string) {
	s.mu.Lock()
	if r, ok := s.running[id]; ok {
		r.cancel()
		delete(s.running, id)
	}
	s.mu.Unlock()
	s.updateGauge()
}

func (s *Scheduler) updateGauge() {
	if s.gauge == nil {
		return
	}
	s.gauge.SetActiveJobs(s.Running())
}
