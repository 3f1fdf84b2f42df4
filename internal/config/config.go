// Package config loads and validates the host configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level host configuration.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Events   EventsConfig  `yaml:"events"`
	Bridge   BridgeConfig  `yaml:"bridge"`
	Journal  JournalConfig `yaml:"journal"`
	Control  ControlConfig `yaml:"control"`

	// Runtime is passed verbatim (rendered to JSON) to the embedded runtime
	// at init. The host does not interpret it.
	Runtime map[string]any `yaml:"runtime"`
}

// EventsConfig tunes the in-process event hub.
type EventsConfig struct {
	Buffer int `yaml:"buffer"` // ring buffer capacity for late subscribers
}

// BridgeConfig tunes the runtime bridge.
type BridgeConfig struct {
	// EventQueue is the router queue capacity between the boundary callback
	// and the delivery goroutine.
	EventQueue int `yaml:"event_queue"`
	// SlowCommandWarning logs a warning when a boundary call blocks longer
	// than this. Zero disables it.
	SlowCommandWarning time.Duration `yaml:"slow_command_warning"`
}

// JournalConfig locates the sqlite journal. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// ControlConfig configures the local diagnostics API.
type ControlConfig struct {
	Listen string `yaml:"listen"`
	APIKey string `yaml:"api_key"`
}

// Default returns a usable configuration for a host with no config file.
func Default() *Config {
	return &Config{
		LogLevel: "INFO",
		Events:   EventsConfig{Buffer: 256},
		Bridge: BridgeConfig{
			EventQueue:         256,
			SlowCommandWarning: 10 * time.Second,
		},
		Control: ControlConfig{Listen: "127.0.0.1:7350"},
		Runtime: map[string]any{},
	}
}

// Load reads and parses configuration from a YAML file, applies defaults and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", path)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.LogLevel {
	case "", "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("log_level %q is not one of DEBUG, INFO, WARN, ERROR", cfg.LogLevel)
	}
	if cfg.Events.Buffer < 0 {
		return fmt.Errorf("events.buffer must not be negative")
	}
	if cfg.Bridge.EventQueue < 0 {
		return fmt.Errorf("bridge.event_queue must not be negative")
	}
	if cfg.Bridge.SlowCommandWarning < 0 {
		return fmt.Errorf("bridge.slow_command_warning must not be negative")
	}
	if cfg.Control.Listen == "" {
		return fmt.Errorf("control.listen must not be empty")
	}
	return nil
}

// RuntimeJSON renders the runtime section to the JSON document handed across
// the boundary at init. A missing section becomes "{}".
func (c *Config) RuntimeJSON() (string, error) {
	if c.Runtime == nil {
		return "{}", nil
	}
	data, err := json.Marshal(c.Runtime)
	if err != nil {
		return "", fmt.Errorf("failed to render runtime config: %w", err)
	}
	return string(data), nil
}
