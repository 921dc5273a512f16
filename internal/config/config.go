package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads a TOML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML data, expands the environment and applies defaults.
func Parse(data []byte) (*Config, error) {
	// Booleans that default to on are set before decoding so the file can
	// still turn them off.
	cfg := Config{Maintenance: MaintenanceConfig{Enabled: true}}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	expandEnvVars(&cfg)
	applyDefaults(&cfg)
	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	cfg.Browser.ProfileDir = expandHome(cfg.Browser.ProfileDir)
	cfg.Target.Catalogue = expandHome(cfg.Target.Catalogue)

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, _ := Parse(nil)
	return cfg
}

// LoadOrDefault loads path, or returns Default when path is empty.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// expandEnvVars resolves ${VAR} and ${VAR:default} references.
func expandEnvVars(c *Config) {
	c.Storage.Path = expandEnv(c.Storage.Path)
	c.Target.SearchURL = expandEnv(c.Target.SearchURL)
	c.Target.Catalogue = expandEnv(c.Target.Catalogue)
	c.Browser.Engine = expandEnv(c.Browser.Engine)
	c.Browser.ExecPath = expandEnv(c.Browser.ExecPath)
	c.Browser.ProfileDir = expandEnv(c.Browser.ProfileDir)
	c.Browser.Docker.Image = expandEnv(c.Browser.Docker.Image)
	c.Telegram.Token = expandEnv(c.Telegram.Token)
	c.Telegram.AdminChat = expandEnv(c.Telegram.AdminChat)
	for i, u := range c.Telegram.AllowedUsers {
		c.Telegram.AllowedUsers[i] = expandEnv(u)
	}
	c.Logging.Level = expandEnv(c.Logging.Level)
	c.Logging.Output = expandEnv(c.Logging.Output)
	c.Metrics.ListenAddr = expandEnv(c.Metrics.ListenAddr)
	c.Maintenance.Timezone = expandEnv(c.Maintenance.Timezone)
}

// expandEnv expands a value of the form ${VAR} or ${VAR:default}. Other
// values are returned unchanged.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	rest := s[end+1:]
	if key, defaultVal, ok := strings.Cut(content, ":"); ok {
		if val := os.Getenv(key); val != "" {
			return val + rest
		}
		return defaultVal + rest
	}
	return os.Getenv(content) + rest
}

// expandHome expands a leading ~/ to the user's home directory.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
