package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Default values for optional settings.
const (
	DefaultMaxRecordsPerCycle  = 500
	DefaultPollIntervalSeconds = 30
	DefaultTTLDays             = 30
)

// Config represents the main configuration for usnwatch.
type Config struct {
	ProviderID          string         `toml:"provider_id"`
	BaseDir             string         `toml:"base_dir"`
	LogDir              string         `toml:"log_dir"`
	Volumes             []string       `toml:"volumes"`
	MaxRecordsPerCycle  int            `toml:"max_records_per_cycle"`
	PollIntervalSeconds int            `toml:"poll_interval_seconds"`
	Verbose             bool           `toml:"verbose"`
	State               StateConfig    `toml:"state"`
	Recorder            RecorderConfig `toml:"recorder"`
}

// StateConfig controls cursor persistence. Persistence is opt-in: when
// disabled, cursors live only in process memory and every start tails
// from the journal's current window.
type StateConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path,omitempty"`
}

// RecorderConfig represents configuration for the hot-tier recorder.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RecorderConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
	TTLDays int    `toml:"ttl_days"`           // activity retention; defaults to 30
}

// NewConfig creates a new Config with the provided values and defaults.
func NewConfig(providerID, baseDir string) *Config {
	return &Config{
		ProviderID:          providerID,
		BaseDir:             baseDir,
		LogDir:              filepath.Join(baseDir, "log"),
		Volumes:             []string{"C:"},
		MaxRecordsPerCycle:  DefaultMaxRecordsPerCycle,
		PollIntervalSeconds: DefaultPollIntervalSeconds,
		State: StateConfig{
			Enabled: true,
			Path:    filepath.Join(baseDir, "state.json"),
		},
		Recorder: RecorderConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
			TTLDays: DefaultTTLDays,
		},
	}
}

// applyDefaults fills zero values for settings that must be positive.
func (c *Config) applyDefaults() {
	if c.MaxRecordsPerCycle <= 0 {
		c.MaxRecordsPerCycle = DefaultMaxRecordsPerCycle
	}
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if c.Recorder.TTLDays <= 0 {
		c.Recorder.TTLDays = DefaultTTLDays
	}
}

// Validate checks that the config describes a runnable collector.
func (c *Config) Validate() error {
	if c.ProviderID == "" {
		return fmt.Errorf("provider_id is required")
	}
	if len(c.Volumes) == 0 {
		return fmt.Errorf("at least one volume must be configured")
	}
	if c.State.Enabled && c.State.Path == "" {
		return fmt.Errorf("state.path required when state persistence is enabled")
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader and applies defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
