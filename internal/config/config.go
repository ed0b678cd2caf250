// Package config loads fakenotifyd's TOML configuration and layers
// FAKENOTIFYD_* environment variables on top of it (defaults < file <
// env). CLI flags are applied afterwards by the command that calls Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/fakenotify/fakenotifyd/internal/proto"
)

// DaemonConfig is the [daemon] section.
type DaemonConfig struct {
	Socket       string `toml:"socket"`
	LogLevel     string `toml:"log_level"`
	MaxClients   int    `toml:"max_clients"`
	DebounceMs   int    `toml:"debounce_ms"`
}

// WatchConfig is one [[watch]] section: a watch the daemon registers for
// itself at startup, independent of anything a shim-connected application
// requests.
type WatchConfig struct {
	Path         string   `toml:"path"`
	PollInterval Duration `toml:"poll_interval"`
	Recursive    bool     `toml:"recursive"`
}

// Config is the full parsed configuration file.
type Config struct {
	Daemon DaemonConfig  `toml:"daemon"`
	Watch  []WatchConfig `toml:"watch"`
}

// rawWatchConfig mirrors WatchConfig for the initial decode pass, with
// PollInterval left as whatever scalar go-toml/v2 produced for it
// (int64 for a bare integer, string for a quoted value): go-toml/v2 only
// invokes encoding.TextUnmarshaler for TOML strings, so decoding
// straight into Duration would silently treat a bare-integer
// poll_interval as a raw nanosecond count instead of seconds.
type rawWatchConfig struct {
	Path         string      `toml:"path"`
	PollInterval interface{} `toml:"poll_interval"`
	Recursive    bool        `toml:"recursive"`
}

type rawConfig struct {
	Daemon DaemonConfig     `toml:"daemon"`
	Watch  []rawWatchConfig `toml:"watch"`
}

func defaultConfig() Config {
	return Config{
		Daemon: DaemonConfig{
			Socket:     proto.DefaultSocketPath,
			LogLevel:   "info",
			MaxClients: 100,
			DebounceMs: 500,
		},
	}
}

// Load reads path (if non-empty and it exists) over top of defaults, then
// applies FAKENOTIFYD_* environment overrides.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else {
			raw := rawConfig{Daemon: cfg.Daemon}
			if err := toml.Unmarshal(data, &raw); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
			cfg.Daemon = raw.Daemon
			cfg.Watch = make([]WatchConfig, len(raw.Watch))
			for i, w := range raw.Watch {
				interval, err := fromTOMLValue(w.PollInterval)
				if err != nil {
					return Config{}, fmt.Errorf("config: watch[%d]: %w", i, err)
				}
				cfg.Watch[i] = WatchConfig{Path: w.Path, PollInterval: interval, Recursive: w.Recursive}
			}
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FAKENOTIFYD_SOCKET"); v != "" {
		cfg.Daemon.Socket = v
	}
	if v := os.Getenv("FAKENOTIFYD_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("FAKENOTIFYD_MAX_CLIENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Daemon.MaxClients = n
		}
	}
	if v := os.Getenv("FAKENOTIFYD_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Daemon.DebounceMs = n
		}
	}
}

// DebounceWindow returns the configured debounce window as a
// time.Duration.
func (c Config) DebounceWindow() time.Duration {
	return time.Duration(c.Daemon.DebounceMs) * time.Millisecond
}
