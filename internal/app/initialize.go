package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/app/builders"
	"github.com/aatumaykin/shuttlewatch/internal/browser"
	"github.com/aatumaykin/shuttlewatch/internal/bus"
	"github.com/aatumaykin/shuttlewatch/internal/commands"
	"github.com/aatumaykin/shuttlewatch/internal/config"
	"github.com/aatumaykin/shuttlewatch/internal/ipc"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/maintenance"
	"github.com/aatumaykin/shuttlewatch/internal/metrics"
	"github.com/aatumaykin/shuttlewatch/internal/notify"
	"github.com/aatumaykin/shuttlewatch/internal/scheduler"
	"github.com/aatumaykin/shuttlewatch/internal/store"
	"github.com/aatumaykin/shuttlewatch/internal/version"
)

// Initialize builds and starts every component. Expired jobs are completed
// before the scheduler resumes the remaining active ones.
func (a *App) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	dir := a.config.Storage.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	if err := ipc.Acquire(dir); err != nil {
		return err
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	a.started = true
	if err := a.initialize(); err != nil {
		_ = a.shutdownInternal()
		return err
	}
	return nil
}

func (a *App) initialize() error {
	cfg := a.config

	catalogue, err := builders.LoadCatalogue(cfg)
	if err != nil {
		return err
	}
	a.catalogue = catalogue
	a.store = store.Load(cfg.Storage.Path, a.logger)

	a.messageBus = bus.New(cfg.MessageBus.Capacity, a.logger)
	if err := a.messageBus.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start message bus: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics.Namespace, nil)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.metrics.Serve(a.ctx, cfg.Metrics.ListenAddr, a.logger); err != nil {
				a.logger.Error("metrics endpoint failed", err,
					logger.Field{Key: "addr", Value: cfg.Metrics.ListenAddr})
			}
		}()
	}

	if cfg.Telegram.Enabled {
		a.notifier = notify.NewBusNotifier(a.messageBus, bus.ChannelTypeTelegram, a.logger)
	} else {
		a.notifier = notify.NewLogNotifier(a.logger)
	}

	a.profiles = browser.NewProfiles()
	if a.launcherOverride != nil {
		a.launcher = a.launcherOverride
	} else {
		a.launcher, a.runtime, err = builders.BuildLauncher(cfg, a.profiles, a.metrics, a.logger)
		if err != nil {
			return err
		}
	}

	a.scheduler = scheduler.New(a.store, a.catalogue, builders.RunnerFactory(builders.RunnerDeps{
		Poller:   builders.PollerConfig(cfg),
		Backoff:  cfg.Runner.Backoff(),
		Jobs:     a.store,
		Launcher: a.launcher,
		Notifier: a.notifier,
		Metrics:  a.metrics,
		Logger:   a.logger,
	}), a.logger, a.metrics)

	a.commandHandler = commands.NewHandler(a.scheduler, a.messageBus, a.catalogue, a.logger,
		commands.WithLocation(cfg.Maintenance.Location()))

	a.telegram, err = builders.NewTelegramBuilder(cfg, a.logger, a.messageBus).WithBot(a.bot).Build(a.ctx)
	if err != nil {
		return err
	}

	if cfg.Maintenance.Enabled {
		if err := a.startMaintenance(); err != nil {
			return err
		}
	}

	a.resumed = a.scheduler.Start(a.ctx)

	if admin := cfg.Telegram.AdminChat; admin != "" {
		a.notifier.Send(a.ctx, admin, version.FormatStartupMessage(a.resumed))
	}
	return nil
}

func (a *App) startMaintenance() error {
	mc := a.config.Maintenance
	mcfg := maintenance.Config{
		ExpireSchedule: mc.ExpireSchedule,
		SweepSchedule:  mc.SweepSchedule,
		ProfileMaxAge:  time.Duration(mc.ProfileMaxAgeHours) * time.Hour,
		Location:       mc.Location(),
	}
	// Container profiles vanish with their container.
	if a.config.Browser.Engine != config.EngineDocker {
		mcfg.ProfileRoot = builders.BrowserOptions(a.config).ProfileRoot()
	}

	svc, err := maintenance.New(mcfg, a.store, a.profiles, a.notifier, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create maintenance tasks: %w", err)
	}
	if err := svc.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start maintenance tasks: %w", err)
	}
	a.maintenance = svc
	return nil
}
