// Package app wires the watcher together: job storage, the per-job runners,
// the command handler, the Telegram channel and the maintenance tasks.
package app

import (
	"context"
	"sync"

	"github.com/aatumaykin/shuttlewatch/internal/browser"
	"github.com/aatumaykin/shuttlewatch/internal/bus"
	"github.com/aatumaykin/shuttlewatch/internal/channels/telegram"
	"github.com/aatumaykin/shuttlewatch/internal/commands"
	"github.com/aatumaykin/shuttlewatch/internal/config"
	"github.com/aatumaykin/shuttlewatch/internal/docker"
	"github.com/aatumaykin/shuttlewatch/internal/job"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/maintenance"
	"github.com/aatumaykin/shuttlewatch/internal/metrics"
	"github.com/aatumaykin/shuttlewatch/internal/notify"
	"github.com/aatumaykin/shuttlewatch/internal/scheduler"
	"github.com/aatumaykin/shuttlewatch/internal/store"
)

// App represents the running watcher.
// It holds references to all major components and manages their lifecycle.
type App struct {
	config *config.Config
	logger *logger.Logger

	// Jobs
	store     *store.Store
	catalogue *job.Catalogue
	scheduler *scheduler.Scheduler

	// Communication infrastructure
	messageBus     *bus.MessageBus
	notifier       notify.Notifier
	commandHandler *commands.Handler
	telegram       *telegram.Connector

	// Browser sessions
	profiles *browser.Profiles
	launcher browser.Launcher
	runtime  *docker.Runtime

	metrics     *metrics.Metrics
	maintenance *maintenance.Service

	// Injected replacements for external systems.
	launcherOverride browser.Launcher
	bot              telegram.BotInterface

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	resumed int
}

// Option customizes an App before Initialize.
type Option func(*App)

// WithLauncher replaces the configured browser engine.
func WithLauncher(l browser.Launcher) Option {
	return func(a *App) { a.launcherOverride = l }
}

// WithTelegramBot replaces the Bot API client.
func WithTelegramBot(bot telegram.BotInterface) Option {
	return func(a *App) { a.bot = bot }
}

// New creates an App. Components are built by Initialize.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) *App {
	a := &App{
		config: cfg,
		logger: log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until the context is cancelled,
// then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.Initialize(ctx); err != nil {
		return err
	}
	if err := a.StartMessageProcessing(a.ctx); err != nil {
		_ = a.Shutdown()
		return err
	}

	a.logger.Info("✅ shuttlewatch is running",
		logger.Field{Key: "resumed_jobs", Value: a.resumed})

	<-ctx.Done()
	return a.Shutdown()
}

// Resumed is the number of stored jobs restarted by Initialize.
func (a *App) Resumed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resumed
}
