// Package runner keeps one job's poller alive across browser session failures.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/browser"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/poller"
)

// DefaultBackoff is the pause before a failed session is replaced.
const DefaultBackoff = 60 * time.Second

// ActiveChecker reports whether a job still needs monitoring.
type ActiveChecker interface {
	IsActive(id string) bool
}

// Poller is the per-job cycle driver.
type Poller interface {
	Run(ctx context.Context, sess browser.Session) error
}

// Metrics receives session lifecycle events.
type Metrics interface {
	SessionStarted()
	SessionFailed(reason string)
	SessionClosed()
}

// Config configures a Runner.
type Config struct {
	JobID   string
	Backoff time.Duration
}

// Runner opens a fresh session for every attempt, runs the poller on it and
// always closes it. It re-reads the authoritative active flag before each
// attempt.
type Runner struct {
	cfg      Config
	jobs     ActiveChecker
	launcher browser.Launcher
	poller   Poller
	log      *logger.Logger
	metrics  Metrics
}

func New(cfg Config, jobs ActiveChecker, launcher browser.Launcher, p Poller, log *logger.Logger, metrics Metrics) *Runner {
	if cfg.Backoff == 0 {
		cfg.Backoff = DefaultBackoff
	}
	return &Runner{
		cfg:      cfg,
		jobs:     jobs,
		launcher: launcher,
		poller:   p,
		log:      log,
		metrics:  metrics,
	}
}

// Run returns nil once the job is completed or stopped, or ctx.Err() when ctx
// ends first. Session failures never end the loop.
func (r *Runner) Run(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.jobs.IsActive(r.cfg.JobID) {
			r.log.Info("job no longer active, runner exiting")
			return nil
		}

		err := r.attempt(ctx)
		switch {
		case err == nil, errors.Is(err, poller.ErrJobInactive):
			r.log.Info("job finished", logger.Field{Key: "attempts", Value: attempt})
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}

		r.log.Error("session failed, replacing it after backoff", err,
			logger.Field{Key: "attempt", Value: attempt},
			logger.Field{Key: "backoff", Value: r.cfg.Backoff.String()})
		r.sessionFailed(reason(err))

		timer := time.NewTimer(r.cfg.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// attempt runs the poller on one session. A panic inside the session is
// turned into an error so the outer loop can replace the session.
func (r *Runner) attempt(ctx context.Context) (err error) {
	sess, err := r.launcher.Open(ctx, r.cfg.JobID)
	if err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.SessionStarted()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("session panic: %v", rec)
		}
		if closeErr := sess.Close(); closeErr != nil {
			r.log.Warn("failed to close browser session",
				logger.Field{Key: "error", Value: closeErr.Error()})
		}
		if r.metrics != nil {
			r.metrics.SessionClosed()
		}
	}()

	return r.poller.Run(ctx, sess)
}

func (r *Runner) sessionFailed(reason string) {
	if r.metrics != nil {
		r.metrics.SessionFailed(reason)
	}
}

func reason(err error) string {
	var (
		start    *browser.SessionStartError
		notFound *browser.ElementNotFoundError
		timeout  *browser.TimeoutError
	)
	switch {
	case errors.As(err, &start):
		return "start"
	case errors.As(err, &notFound):
		return "element_not_found"
	case errors.As(err, &timeout):
		return "timeout"
	default:
		return "other"
	}
}
