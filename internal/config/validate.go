package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports every configuration problem.
func (c *Config) Validate() []error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if c.Storage.Path == "" {
		add(fmt.Errorf("storage.path is required"))
	} else {
		add(validatePath(c.Storage.Path, "storage.path"))
	}

	if c.Target.SearchURL != "" {
		if u, err := url.Parse(c.Target.SearchURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add(fmt.Errorf("target.search_url must be an absolute http(s) URL, got %q", c.Target.SearchURL))
		}
	}
	if c.Target.SeatCell < 0 {
		add(fmt.Errorf("target.seat_cell must be >= 1"))
	}

	switch c.Browser.Engine {
	case EngineLocal:
	case EngineDocker:
		errs = append(errs, c.Browser.Docker.Validate()...)
	default:
		add(fmt.Errorf("invalid browser.engine: %s (expected: %s, %s)", c.Browser.Engine, EngineLocal, EngineDocker))
	}
	if c.Browser.WindowWidth < 0 || c.Browser.WindowHeight < 0 {
		add(fmt.Errorf("browser window size must be positive"))
	}

	add(positive("poller.results_timeout_seconds", c.Poller.ResultsTimeoutSeconds))
	add(positive("poller.interstitial_timeout_seconds", c.Poller.InterstitialTimeoutSeconds))
	add(positive("poller.retry_delay_seconds", c.Poller.RetryDelaySeconds))
	add(positive("poller.cycle_interval_seconds", c.Poller.CycleIntervalSeconds))
	add(positive("runner.backoff_seconds", c.Runner.BackoffSeconds))
	if c.Poller.DismissDelayMillis < 0 {
		add(fmt.Errorf("poller.dismiss_delay_ms must be >= 0"))
	}

	if c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			add(fmt.Errorf("telegram.token is required when telegram is enabled"))
		} else {
			add(validateTelegramToken(c.Telegram.Token))
		}
		for _, u := range c.Telegram.AllowedUsers {
			if _, err := strconv.ParseInt(u, 10, 64); err != nil {
				add(fmt.Errorf("telegram.allowed_users entry %q is not a numeric user id", u))
			}
		}
		if c.Telegram.AdminChat != "" {
			if _, err := strconv.ParseInt(c.Telegram.AdminChat, 10, 64); err != nil {
				add(fmt.Errorf("telegram.admin_chat %q is not a numeric chat id", c.Telegram.AdminChat))
			}
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		add(fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		add(fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
	}

	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.ListenAddr); err != nil {
			add(fmt.Errorf("metrics.listen_addr %q is not host:port: %v", c.Metrics.ListenAddr, err))
		}
	}

	if c.Maintenance.Enabled {
		if _, err := time.LoadLocation(c.Maintenance.Timezone); err != nil {
			add(fmt.Errorf("maintenance.timezone %q is unknown", c.Maintenance.Timezone))
		}
		add(validateSchedule("maintenance.expire_schedule", c.Maintenance.ExpireSchedule))
		add(validateSchedule("maintenance.sweep_schedule", c.Maintenance.SweepSchedule))
		add(positive("maintenance.profile_max_age_hours", c.Maintenance.ProfileMaxAgeHours))
	}

	add(positive("message_bus.capacity", c.MessageBus.Capacity))
	return errs
}

// Validate checks the container settings used by the docker engine.
func (c *DockerConfig) Validate() []error {
	var errs []error
	if c.Image == "" {
		errs = append(errs, fmt.Errorf("browser.docker.image is required when browser.engine=docker"))
	}

	validPolicies := map[string]bool{
		"always":         true,
		"if-not-present": true,
		"never":          true,
	}
	if !validPolicies[c.PullPolicy] {
		errs = append(errs, fmt.Errorf("browser.docker.pull_policy must be one of: always, if-not-present, never"))
	}
	if c.MemoryLimit != "" && !isValidMemoryLimit(c.MemoryLimit) {
		errs = append(errs, fmt.Errorf("browser.docker.memory_limit format invalid (e.g., 512m, 1g)"))
	}
	if c.ShmSize != "" && !isValidMemoryLimit(c.ShmSize) {
		errs = append(errs, fmt.Errorf("browser.docker.shm_size format invalid (e.g., 256m)"))
	}
	if c.CPULimit <= 0 || c.CPULimit > 8 {
		errs = append(errs, fmt.Errorf("browser.docker.cpu_limit must be between 0 and 8"))
	}
	if c.MaxStartsPerMinute < 1 {
		errs = append(errs, fmt.Errorf("browser.docker.max_starts_per_minute must be >= 1"))
	}
	if c.CircuitBreakerTimeout < 5 || c.CircuitBreakerTimeout > 600 {
		errs = append(errs, fmt.Errorf("browser.docker.circuit_breaker_timeout_seconds must be between 5 and 600 (got %d)", c.CircuitBreakerTimeout))
	}
	return errs
}

func positive(field string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%s must be > 0 (got %d)", field, v)
	}
	return nil
}

func validateSchedule(field, spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := scheduleParser.Parse(spec); err != nil {
		return fmt.Errorf("%s %q is not a valid cron expression: %v", field, spec, err)
	}
	return nil
}

func validateTelegramToken(token string) error {
	botID, secret, ok := strings.Cut(token, ":")
	if !ok || strings.Contains(secret, ":") {
		return formatValidationError("telegram.token", "invalid format (expected <bot_id>:<token>)", token)
	}
	if len(botID) < 3 || len(botID) > 15 {
		return formatValidationError("telegram.token", fmt.Sprintf("invalid bot ID length (expected 3-15 digits, got %d)", len(botID)), token)
	}
	if _, err := strconv.ParseUint(botID, 10, 64); err != nil {
		return formatValidationError("telegram.token", "bot ID must contain digits only", token)
	}
	if len(secret) < 10 || len(secret) > 50 {
		return formatValidationError("telegram.token", fmt.Sprintf("invalid token length (expected 10-50 characters, got %d)", len(secret)), token)
	}
	return nil
}

func validatePath(path, fieldName string) error {
	if strings.HasPrefix(path, "~") {
		return nil
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("%s contains a path traversal sequence", fieldName)
	}
	return nil
}

func isValidMemoryLimit(s string) bool {
	s = strings.ToLower(s)
	for _, suffix := range []string{"k", "m", "g"} {
		if num, ok := strings.CutSuffix(s, suffix); ok {
			_, err := strconv.ParseUint(num, 10, 64)
			return err == nil
		}
	}
	return false
}
