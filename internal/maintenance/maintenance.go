// Package maintenance runs periodic housekeeping: expiring jobs whose travel
// date has passed and sweeping browser profile directories left behind by
// killed processes.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/browser"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/notify"
	"github.com/aatumaykin/shuttlewatch/internal/store"
	"github.com/robfig/cron/v3"
)

const (
	DefaultExpireSchedule = "0 5 0 * * *"
	DefaultSweepSchedule  = "0 */30 * * * *"
	DefaultProfileMaxAge  = 6 * time.Hour
)

// Config holds the housekeeping schedules. Schedules use the six-field cron
// format with seconds; an empty schedule disables that task.
type Config struct {
	ExpireSchedule string
	SweepSchedule  string
	ProfileRoot    string
	ProfileMaxAge  time.Duration
	Location       *time.Location
}

// Expirer completes jobs whose travel date is before day.
type Expirer interface {
	ExpireBefore(day time.Time) ([]store.Entry, error)
}

// ProfileTracker reports profile directories owned by live sessions.
type ProfileTracker interface {
	InUse(dir string) bool
}

// SweepStats summarises one profile sweep.
type SweepStats struct {
	Scanned  int
	Removed  int
	InUse    int
	Failures int
	Duration time.Duration
}

type Service struct {
	cfg      Config
	cron     *cron.Cron
	jobs     Expirer
	profiles ProfileTracker
	notifier notify.Notifier
	logger   *logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	started bool
}

// New validates the schedules and registers the tasks. Nothing runs until Start.
func New(cfg Config, jobs Expirer, profiles ProfileTracker, notifier notify.Notifier, log *logger.Logger) (*Service, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ProfileMaxAge <= 0 {
		cfg.ProfileMaxAge = DefaultProfileMaxAge
	}

	s := &Service{
		cfg:      cfg,
		cron:     cron.New(cron.WithSeconds(), cron.WithLocation(cfg.Location)),
		jobs:     jobs,
		profiles: profiles,
		notifier: notifier,
		logger:   log,
		now:      time.Now,
		ctx:      context.Background(),
	}

	if cfg.ExpireSchedule != "" && jobs != nil {
		if _, err := s.cron.AddFunc(cfg.ExpireSchedule, func() {
			if _, err := s.ExpireJobs(s.context()); err != nil {
				s.logger.Error("job expiry failed", err)
			}
		}); err != nil {
			return nil, fmt.Errorf("invalid expire schedule %q: %w", cfg.ExpireSchedule, err)
		}
	}
	if cfg.SweepSchedule != "" && cfg.ProfileRoot != "" {
		if _, err := s.cron.AddFunc(cfg.SweepSchedule, func() {
			if _, err := s.SweepProfiles(); err != nil {
				s.logger.Error("profile sweep failed", err)
			}
		}); err != nil {
			return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
		}
	}
	return s, nil
}

// Start runs both tasks once and then on their schedules until ctx ends.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("maintenance already started")
	}
	s.started = true
	s.ctx = ctx
	s.mu.Unlock()

	if s.cfg.ExpireSchedule != "" && s.jobs != nil {
		if _, err := s.ExpireJobs(ctx); err != nil {
			s.logger.Error("initial job expiry failed", err)
		}
	}
	if s.cfg.SweepSchedule != "" && s.cfg.ProfileRoot != "" {
		if _, err := s.SweepProfiles(); err != nil {
			s.logger.Error("initial profile sweep failed", err)
		}
	}

	s.cron.Start()
	s.logger.Info("maintenance started",
		logger.Field{Key: "tasks", Value: len(s.cron.Entries())})

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running task to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("maintenance stopped")
}

func (s *Service) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// ExpireJobs completes every active job dated before today and tells each
// owner. Runners notice on their next cycle and exit.
func (s *Service) ExpireJobs(ctx context.Context) (int, error) {
	today := s.now().In(s.cfg.Location)
	expired, err := s.jobs.ExpireBefore(today)
	if err != nil {
		return 0, err
	}

	for _, e := range expired {
		s.logger.InfoCtx(ctx, "job expired",
			logger.Field{Key: "owner", Value: e.Owner},
			logger.Field{Key: "job_id", Value: e.Job.ID},
			logger.Field{Key: "date", Value: e.Job.OnwardDate()})
		if s.notifier != nil {
			s.notifier.Send(ctx, e.Owner, ExpiredMessage(e.Job.Summary()))
		}
	}
	if len(expired) == 0 {
		s.logger.Debug("no jobs to expire")
	}
	return len(expired), nil
}

// ExpiredMessage tells the owner a job was dropped because its date passed.
func ExpiredMessage(summary string) string {
	return fmt.Sprintf("⌛ Travel date passed, stopped watching %s.", summary)
}

// SweepProfiles removes profile directories under the profile root that are
// older than the maximum age and not owned by a live session.
func (s *Service) SweepProfiles() (SweepStats, error) {
	start := s.now()
	var stats SweepStats

	entries, err := os.ReadDir(s.cfg.ProfileRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("failed to read profile root: %w", err)
	}

	cutoff := start.Add(-s.cfg.ProfileMaxAge)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), browser.ProfilePrefix) {
			continue
		}
		stats.Scanned++

		dir := filepath.Join(s.cfg.ProfileRoot, entry.Name())
		if s.profiles != nil && s.profiles.InUse(dir) {
			stats.InUse++
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			stats.Failures++
			s.logger.Warn("failed to remove stale profile",
				logger.Field{Key: "dir", Value: dir},
				logger.Field{Key: "error", Value: err.Error()})
			continue
		}
		stats.Removed++
	}

	stats.Duration = s.now().Sub(start)
	if stats.Removed > 0 {
		s.logger.Info(fmt.Sprintf("profile sweep removed %d stale directories", stats.Removed),
			logger.Field{Key: "scanned", Value: stats.Scanned},
			logger.Field{Key: "removed", Value: stats.Removed},
			logger.Field{Key: "in_use", Value: stats.InUse},
			logger.Field{Key: "duration_ms", Value: stats.Duration.Milliseconds()})
	} else {
		s.logger.Debug("profile sweep: nothing to remove")
	}
	return stats, nil
}
