package browser

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/aatumaykin/shuttlewatch/internal/docker"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
)

// LocalLauncher starts a Chromium process on this host per session.
type LocalLauncher struct {
	opts     Options
	profiles *Profiles
	log      *logger.Logger
}

func NewLocalLauncher(opts Options, profiles *Profiles, log *logger.Logger) *LocalLauncher {
	return &LocalLauncher{opts: opts.withDefaults(), profiles: profiles, log: log}
}

func (l *LocalLauncher) Open(ctx context.Context, label string) (Session, error) {
	dir, err := l.profiles.Acquire(l.opts.ProfileDir)
	if err != nil {
		return nil, &SessionStartError{Engine: "local", Err: err}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(l.opts, dir)...)
	tab, tabCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	// The first Run starts the browser; it must use the tab context itself so
	// the process lives until Close.
	if err := chromedp.Run(tab); err != nil {
		cancel()
		_ = l.profiles.Release(dir)
		return nil, &SessionStartError{Engine: "local", Err: err}
	}

	l.log.Debug("browser session opened",
		logger.Field{Key: "engine", Value: "local"},
		logger.Field{Key: "label", Value: label},
		logger.Field{Key: "profile", Value: dir})

	return newCDPSession(tab, cancel, l.opts, func() error {
		return l.profiles.Release(dir)
	}), nil
}

// ContainerProfileDir lives on the container's tmpfs and disappears with it.
const ContainerProfileDir = "/tmp/profile"

// DockerLauncher runs each session's browser in its own container and attaches
// to it over the DevTools protocol. The runtime's container args should come
// from CommandLine(opts, ContainerProfileDir).
type DockerLauncher struct {
	opts    Options
	runtime *docker.Runtime
	log     *logger.Logger
}

func NewDockerLauncher(opts Options, runtime *docker.Runtime, log *logger.Logger) *DockerLauncher {
	return &DockerLauncher{opts: opts.withDefaults(), runtime: runtime, log: log}
}

func (l *DockerLauncher) Open(ctx context.Context, label string) (Session, error) {
	bc, err := l.runtime.Start(ctx, label)
	if err != nil {
		return nil, &SessionStartError{Engine: "docker", Err: err}
	}

	stopContainer := func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return l.runtime.Stop(stopCtx, bc)
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, bc.Endpoint)
	tab, tabCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	if err := chromedp.Run(tab); err != nil {
		cancel()
		if stopErr := stopContainer(); stopErr != nil {
			l.log.Error("failed to remove browser container", stopErr,
				logger.Field{Key: "label", Value: label})
		}
		return nil, &SessionStartError{Engine: "docker", Err: err}
	}

	l.log.Debug("browser session opened",
		logger.Field{Key: "engine", Value: "docker"},
		logger.Field{Key: "label", Value: label},
		logger.Field{Key: "endpoint", Value: bc.Endpoint})

	return newCDPSession(tab, cancel, l.opts, stopContainer), nil
}
