package config

import (
	"fmt"
	"log/slog"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	LLM       LLMConfig
	Overrides OverridesConfig
}

type ServerConfig struct {
	Port       int
	MCPEnabled bool
}

type StorageConfig struct {
	DataDir string
	// Debounce delays record writes so bursts of updates coalesce.
	Debounce time.Duration
}

type LogConfig struct {
	Level string
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OverridesConfig points at the remote override document. An empty URL
// disables remote sync; local edits still work.
type OverridesConfig struct {
	URL         string
	Timeout     time.Duration
	MinInterval time.Duration
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:       4000,
			MCPEnabled: true,
		},
		Storage: StorageConfig{
			DataDir:  defaultDataDir(),
			Debounce: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
		LLM: LLMConfig{
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "anthropic/claude-sonnet-4",
		},
		Overrides: OverridesConfig{
			Timeout:     10 * time.Second,
			MinInterval: time.Minute,
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/attune/config.json, then applies environment variables
// (ATTUNE_*), which take precedence. Secrets are read from the environment
// only.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("invalid config: storage.data_dir is empty")
	}
	if c.Storage.Debounce < 0 {
		return fmt.Errorf("invalid config: storage.debounce must not be negative")
	}
	if c.Overrides.Timeout <= 0 || c.Overrides.MinInterval <= 0 {
		return fmt.Errorf("invalid config: overrides.timeout and overrides.min_interval must be positive")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ParseLevel maps a log.level value (debug, info, warn, error) to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q: %w", s, err)
	}
	return l, nil
}
