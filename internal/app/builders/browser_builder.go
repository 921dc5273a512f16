package builders

import (
	"fmt"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/browser"
	"github.com/aatumaykin/shuttlewatch/internal/config"
	"github.com/aatumaykin/shuttlewatch/internal/docker"
	"github.com/aatumaykin/shuttlewatch/internal/logger"
	"github.com/aatumaykin/shuttlewatch/internal/metrics"
)

// BrowserOptions maps the [browser] section onto launcher options.
func BrowserOptions(cfg *config.Config) browser.Options {
	b := cfg.Browser
	return browser.Options{
		ExecPath:       b.ExecPath,
		ProfileDir:     b.ProfileDir,
		Headless:       !b.ShowWindow,
		UserAgent:      b.UserAgent,
		ExtraFlags:     b.ExtraFlags,
		WindowWidth:    b.WindowWidth,
		WindowHeight:   b.WindowHeight,
		ElementTimeout: b.ElementTimeout(),
		PageTimeout:    b.PageTimeout(),
	}
}

// BuildLauncher returns the session launcher for the configured engine. For
// the docker engine it also returns the container runtime, which the caller
// closes on shutdown.
func BuildLauncher(cfg *config.Config, profiles *browser.Profiles, m *metrics.Metrics, log *logger.Logger) (browser.Launcher, *docker.Runtime, error) {
	opts := BrowserOptions(cfg)

	switch cfg.Browser.Engine {
	case config.EngineLocal, "":
		log.Info("using local browser engine",
			logger.Field{Key: "profile_root", Value: opts.ProfileRoot()})
		return browser.NewLocalLauncher(opts, profiles, log), nil, nil

	case config.EngineDocker:
		client, err := docker.NewClient()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create docker client: %w", err)
		}

		d := cfg.Browser.Docker
		runtime := docker.NewRuntime(docker.RuntimeConfig{
			Container: docker.ContainerConfig{
				Image:       d.Image,
				PullPolicy:  d.PullPolicy,
				Entrypoint:  d.Entrypoint,
				Args:        browser.CommandLine(opts, browser.ContainerProfileDir),
				MemoryLimit: d.MemoryLimit,
				CPULimit:    d.CPULimit,
				PidsLimit:   d.PidsLimit,
				ShmSize:     d.ShmSize,
				SecurityOpt: d.SecurityOpt,
				Labels:      map[string]string{"app": "shuttlewatch"},
			},
			StartupTimeout:          time.Duration(d.StartupTimeoutSeconds) * time.Second,
			MaxStartsPerMinute:      d.MaxStartsPerMinute,
			CircuitBreakerThreshold: d.CircuitBreakerThreshold,
			CircuitBreakerTimeout:   time.Duration(d.CircuitBreakerTimeout) * time.Second,
		}, client, log)
		m.RegisterContainerMetrics(cfg.Metrics.Namespace, runtime.Metrics())

		log.Info("using docker browser engine",
			logger.Field{Key: "image", Value: d.Image},
			logger.Field{Key: "memory_limit", Value: d.MemoryLimit})
		return browser.NewDockerLauncher(opts, runtime, log), runtime, nil

	default:
		return nil, nil, fmt.Errorf("unsupported browser engine: %s", cfg.Browser.Engine)
	}
}
