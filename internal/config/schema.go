// Package config loads and validates the watcher configuration.
// It reads a TOML file, expands environment variables, applies defaults and
// reports every problem at once from Validate.
//
// Configuration structure:
//   - [storage]: job file location
//   - [target]: booking page URL, selectors and route catalogue
//   - [browser]: browser engine and its launch options
//   - [browser.docker]: container settings for the docker engine
//   - [poller]: cycle timings
//   - [runner]: session replacement backoff
//   - [telegram]: bot token, whitelist and delivery retry
//   - [logging]: level, format and output
//   - [metrics]: Prometheus endpoint
//   - [maintenance]: job expiry and profile sweeping schedules
//   - [message_bus]: queue capacity
//
// Values may reference the environment with ${VAR} or ${VAR:default}.
package config

import (
	"path/filepath"
	"time"
	_ "time/tzdata"
)

// Config represents the main application configuration.
type Config struct {
	Storage     StorageConfig     `toml:"storage"`
	Target      TargetConfig      `toml:"target"`
	Browser     BrowserConfig     `toml:"browser"`
	Poller      PollerConfig      `toml:"poller"`
	Runner      RunnerConfig      `toml:"runner"`
	Telegram    TelegramConfig    `toml:"telegram"`
	Logging     LoggingConfig     `toml:"logging"`
	Metrics     MetricsConfig     `toml:"metrics"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	MessageBus  MessageBusConfig  `toml:"message_bus"`
}

type StorageConfig struct {
	Path string `toml:"path"`
}

// Dir is the directory holding the job file and the PID file.
func (c StorageConfig) Dir() string {
	return filepath.Dir(c.Path)
}

// TargetConfig overrides the booking page identifiers. Empty fields keep the
// built-in values.
type TargetConfig struct {
	SearchURL            string `toml:"search_url"`
	OriginField          string `toml:"origin_field"`
	DestinationField     string `toml:"destination_field"`
	OnwardDateField      string `toml:"onward_date_field"`
	ReturnDateField      string `toml:"return_date_field"`
	PassengerField       string `toml:"passenger_field"`
	SubmitSelector       string `toml:"submit_selector"`
	InterstitialSelector string `toml:"interstitial_selector"`
	DismissSelector      string `toml:"dismiss_selector"`
	ResultsSelector      string `toml:"results_selector"`
	RowSelector          string `toml:"row_selector"`
	SlotAttribute        string `toml:"slot_attribute"`
	SeatCell             int    `toml:"seat_cell"`
	Catalogue            string `toml:"catalogue"` // optional YAML route catalogue
}

const (
	EngineLocal  = "local"
	EngineDocker = "docker"
)

type BrowserConfig struct {
	Engine                string       `toml:"engine"`
	ExecPath              string       `toml:"exec_path"`
	ProfileDir            string       `toml:"profile_dir"`
	ShowWindow            bool         `toml:"show_window"`
	UserAgent             string       `toml:"user_agent"`
	ExtraFlags            []string     `toml:"extra_flags"`
	WindowWidth           int          `toml:"window_width"`
	WindowHeight          int          `toml:"window_height"`
	ElementTimeoutSeconds int          `toml:"element_timeout_seconds"`
	PageTimeoutSeconds    int          `toml:"page_timeout_seconds"`
	Docker                DockerConfig `toml:"docker"`
}

func (c BrowserConfig) ElementTimeout() time.Duration {
	return time.Duration(c.ElementTimeoutSeconds) * time.Second
}

func (c BrowserConfig) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSeconds) * time.Second
}

// DockerConfig runs each browser session in its own container.
type DockerConfig struct {
	Image                   string   `toml:"image"`
	PullPolicy              string   `toml:"pull_policy"`
	Entrypoint              []string `toml:"entrypoint"`
	MemoryLimit             string   `toml:"memory_limit"`
	CPULimit                float64  `toml:"cpu_limit"`
	PidsLimit               int64    `toml:"pids_limit"`
	ShmSize                 string   `toml:"shm_size"`
	SecurityOpt             []string `toml:"security_opt"`
	StartupTimeoutSeconds   int      `toml:"startup_timeout_seconds"`
	MaxStartsPerMinute      int      `toml:"max_starts_per_minute"`
	CircuitBreakerThreshold int      `toml:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   int      `toml:"circuit_breaker_timeout_seconds"`
}

type PollerConfig struct {
	ResultsTimeoutSeconds      int `toml:"results_timeout_seconds"`
	InterstitialTimeoutSeconds int `toml:"interstitial_timeout_seconds"`
	DismissDelayMillis         int `toml:"dismiss_delay_ms"`
	RetryDelaySeconds          int `toml:"retry_delay_seconds"`
	CycleIntervalSeconds       int `toml:"cycle_interval_seconds"`
}

type RunnerConfig struct {
	BackoffSeconds int `toml:"backoff_seconds"`
}

func (c RunnerConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds) * time.Second
}

type TelegramConfig struct {
	Enabled            bool     `toml:"enabled"`
	Token              string   `toml:"token"`
	AllowedUsers       []string `toml:"allowed_users"`
	AdminChat          string   `toml:"admin_chat"` // receives the startup message
	SendTimeoutSeconds int      `toml:"send_timeout_seconds"`
	RetryAttempts      int      `toml:"retry_attempts"`

	AnswerCallbackTimeoutSeconds int `toml:"answer_callback_timeout_seconds"`
}

// LoggingConfig mirrors logger.Config.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
	Namespace  string `toml:"namespace"`
}

type MaintenanceConfig struct {
	Enabled            bool   `toml:"enabled"`
	Timezone           string `toml:"timezone"`
	ExpireSchedule     string `toml:"expire_schedule"`
	SweepSchedule      string `toml:"sweep_schedule"`
	ProfileMaxAgeHours int    `toml:"profile_max_age_hours"`
}

// Location resolves Timezone, falling back to UTC.
func (c MaintenanceConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type MessageBusConfig struct {
	Capacity int `toml:"capacity"`
}
