package config

const (
	DefaultStoragePath   = "~/.shuttlewatch/jobs.json"
	DefaultBrowserImage  = "chromedp/headless-shell:latest"
	DefaultMetricsListen = "127.0.0.1:9464"
	DefaultTimezone      = "Asia/Kuala_Lumpur"
)

func DefaultDockerConfig() DockerConfig {
	return DockerConfig{
		Image:                   DefaultBrowserImage,
		PullPolicy:              "if-not-present",
		Entrypoint:              []string{"/headless-shell/headless-shell"},
		MemoryLimit:             "1g",
		CPULimit:                1,
		PidsLimit:               256,
		ShmSize:                 "256m",
		SecurityOpt:             []string{"no-new-privileges"},
		StartupTimeoutSeconds:   30,
		MaxStartsPerMinute:      30,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   60,
	}
}

// applyDefaults fills every unset field.
func applyDefaults(c *Config) {
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}

	if c.Browser.Engine == "" {
		c.Browser.Engine = EngineLocal
	}
	if c.Browser.WindowWidth == 0 {
		c.Browser.WindowWidth = 1024
	}
	if c.Browser.WindowHeight == 0 {
		c.Browser.WindowHeight = 768
	}
	if c.Browser.ElementTimeoutSeconds == 0 {
		c.Browser.ElementTimeoutSeconds = 10
	}
	if c.Browser.PageTimeoutSeconds == 0 {
		c.Browser.PageTimeoutSeconds = 60
	}

	d := &c.Browser.Docker
	def := DefaultDockerConfig()
	if d.Image == "" {
		d.Image = def.Image
	}
	if d.PullPolicy == "" {
		d.PullPolicy = def.PullPolicy
	}
	if len(d.Entrypoint) == 0 {
		d.Entrypoint = def.Entrypoint
	}
	if d.MemoryLimit == "" {
		d.MemoryLimit = def.MemoryLimit
	}
	if d.CPULimit == 0 {
		d.CPULimit = def.CPULimit
	}
	if d.PidsLimit == 0 {
		d.PidsLimit = def.PidsLimit
	}
	if d.ShmSize == "" {
		d.ShmSize = def.ShmSize
	}
	if d.SecurityOpt == nil {
		d.SecurityOpt = def.SecurityOpt
	}
	if d.StartupTimeoutSeconds == 0 {
		d.StartupTimeoutSeconds = def.StartupTimeoutSeconds
	}
	if d.MaxStartsPerMinute == 0 {
		d.MaxStartsPerMinute = def.MaxStartsPerMinute
	}
	if d.CircuitBreakerThreshold == 0 {
		d.CircuitBreakerThreshold = def.CircuitBreakerThreshold
	}
	if d.CircuitBreakerTimeout == 0 {
		d.CircuitBreakerTimeout = def.CircuitBreakerTimeout
	}

	if c.Poller.ResultsTimeoutSeconds == 0 {
		c.Poller.ResultsTimeoutSeconds = 10
	}
	if c.Poller.InterstitialTimeoutSeconds == 0 {
		c.Poller.InterstitialTimeoutSeconds = 3
	}
	if c.Poller.DismissDelayMillis == 0 {
		c.Poller.DismissDelayMillis = 1000
	}
	if c.Poller.RetryDelaySeconds == 0 {
		c.Poller.RetryDelaySeconds = 30
	}
	if c.Poller.CycleIntervalSeconds == 0 {
		c.Poller.CycleIntervalSeconds = 30
	}

	if c.Runner.BackoffSeconds == 0 {
		c.Runner.BackoffSeconds = 60
	}

	if c.Telegram.SendTimeoutSeconds == 0 {
		c.Telegram.SendTimeoutSeconds = 10
	}
	if c.Telegram.RetryAttempts == 0 {
		c.Telegram.RetryAttempts = 3
	}
	if c.Telegram.AnswerCallbackTimeoutSeconds == 0 {
		c.Telegram.AnswerCallbackTimeoutSeconds = 5
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = DefaultMetricsListen
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "shuttlewatch"
	}

	if c.Maintenance.Timezone == "" {
		c.Maintenance.Timezone = DefaultTimezone
	}
	if c.Maintenance.ExpireSchedule == "" {
		c.Maintenance.ExpireSchedule = "0 5 0 * * *"
	}
	if c.Maintenance.SweepSchedule == "" {
		c.Maintenance.SweepSchedule = "0 */30 * * * *"
	}
	if c.Maintenance.ProfileMaxAgeHours == 0 {
		c.Maintenance.ProfileMaxAgeHours = 6
	}

	if c.MessageBus.Capacity == 0 {
		c.MessageBus.Capacity = 1000
	}
}
