package builders

import (
	"fmt"
	"os"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/browser"
	"github.com/aatumaykin/shuttlewatch/internal/config"
	"github.com/aatumaykin/shuttlewatch/internal/job"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/metrics"
	"github.com/aatumaykin/shuttlewatch/internal/notify"
	"github.com/aatumaykin/shuttlewatch/internal/poller"
	"github.com/aatumaykin/shuttlewatch/internal/runner"
	"github.com/aatumaykin/shuttlewatch/internal/scheduler"
)

// LoadCatalogue reads the route catalogue named in [target], or returns the
// built-in one.
func LoadCatalogue(cfg *config.Config) (*job.Catalogue, error) {
	if cfg.Target.Catalogue == "" {
		return job.DefaultCatalogue(), nil
	}
	data, err := os.ReadFile(cfg.Target.Catalogue)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue: %w", err)
	}
	cat, err := job.ParseCatalogue(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalogue %s: %w", cfg.Target.Catalogue, err)
	}
	return cat, nil
}

// PollerConfig applies the [poller] timings and [target] overrides to the
// built-in defaults.
func PollerConfig(cfg *config.Config) poller.Config {
	pc := poller.DefaultConfig()

	p := cfg.Poller
	setDuration(&pc.ResultsTimeout, p.ResultsTimeoutSeconds, time.Second)
	setDuration(&pc.InterstitialTimeout, p.InterstitialTimeoutSeconds, time.Second)
	setDuration(&pc.DismissDelay, p.DismissDelayMillis, time.Millisecond)
	setDuration(&pc.RetryDelay, p.RetryDelaySeconds, time.Second)
	setDuration(&pc.CycleInterval, p.CycleIntervalSeconds, time.Second)

	t, o := &pc.Target, cfg.Target
	setString(&t.SearchURL, o.SearchURL)
	setString(&t.OriginField, o.OriginField)
	setString(&t.DestinationField, o.DestinationField)
	setString(&t.OnwardDateField, o.OnwardDateField)
	setString(&t.ReturnDateField, o.ReturnDateField)
	setString(&t.PassengerField, o.PassengerField)
	setString(&t.SubmitSelector, o.SubmitSelector)
	setString(&t.InterstitialSelector, o.InterstitialSelector)
	setString(&t.DismissSelector, o.DismissSelector)
	setString(&t.ResultsSelector, o.ResultsSelector)
	setString(&t.RowSelector, o.RowSelector)
	setString(&t.SlotAttribute, o.SlotAttribute)
	if o.SeatCell > 0 {
		t.SeatCell = o.SeatCell
	}
	return pc
}

func setDuration(dst *time.Duration, n int, unit time.Duration) {
	if n > 0 {
		*dst = time.Duration(n) * unit
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// RunnerDeps is everything a job's runner is built from.
type RunnerDeps struct {
	Poller   poller.Config
	Backoff  time.Duration
	Jobs     poller.JobState
	Launcher browser.Launcher
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
}

// RunnerFactory builds a poller and its session runner for each scheduled job.
func RunnerFactory(d RunnerDeps) scheduler.RunnerFactory {
	return func(owner string, j job.Job) scheduler.Runnable {
		log := d.Logger.With(
			logger.Field{Key: "owner", Value: owner},
			logger.Field{Key: "job_id", Value: j.ID})
		p := poller.New(d.Poller, owner, j, d.Jobs, d.Notifier, log, poller.WithMetrics(d.Metrics))
		return runner.New(runner.Config{JobID: j.ID, Backoff: d.Backoff}, d.Jobs, d.Launcher, p, log, d.Metrics)
	}
}
