// Package config handles pbgnomebackgrounder configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ppoilbarbe/pbgnomebackgrounder/internal/platform"
)

// DaemonConfig configures the polling loop and the single-instance guard.
type DaemonConfig struct {
	// Interval is the polling interval in seconds.
	Interval int `toml:"interval"`

	// LockFile is the path of the OS-level exclusive lock.
	LockFile string `toml:"lock-file"`

	// MarkerProperty is the root-window property naming the running instance.
	MarkerProperty string `toml:"marker-property"`
}

// RegistryConfig configures the persisted per-desktop registry.
type RegistryConfig struct {
	Path string `toml:"path"`
}

// SettingsConfig selects the background settings scheme.
type SettingsConfig struct {
	Schema string `toml:"schema"`
}

type Config struct {
	Daemon   DaemonConfig   `toml:"daemon"`
	Registry RegistryConfig `toml:"registry"`
	Settings SettingsConfig `toml:"settings"`

	configPath string
}

// DefaultInterval is the polling interval used when none is configured.
const DefaultInterval = 2

// DefaultMarkerProperty is the root-window property recording the daemon PID.
const DefaultMarkerProperty = "_PBGNOMEBACKGROUNDER_PID"

func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "pbgnomebackgrounder")
}

func DefaultConfig() *Config {
	configDir := DefaultConfigDir()
	home, _ := os.UserHomeDir()

	return &Config{
		Daemon: DaemonConfig{
			Interval:       DefaultInterval,
			LockFile:       filepath.Join(home, ".cache", "pbgnomebackgrounder", "daemon.lock"),
			MarkerProperty: DefaultMarkerProperty,
		},
		Registry: RegistryConfig{
			Path: filepath.Join(configDir, "backgrounds"),
		},
		Settings: SettingsConfig{
			Schema: platform.DefaultSchema,
		},
	}
}

// Load reads the configuration file, falling back to defaults when the file
// does not exist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(DefaultConfigDir(), "config.toml")
	}

	path = expandPath(path)

	cfg := DefaultConfig()
	cfg.configPath = path

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.postProcess()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) postProcess() {
	c.Daemon.LockFile = expandPath(c.Daemon.LockFile)
	c.Registry.Path = expandPath(c.Registry.Path)
}

func (c *Config) Validate() error {
	if c.Daemon.Interval < 1 {
		return fmt.Errorf("invalid interval: %d (must be at least 1 second)", c.Daemon.Interval)
	}
	if c.Daemon.MarkerProperty == "" {
		return fmt.Errorf("marker-property must not be empty")
	}
	if strings.ContainsAny(c.Daemon.MarkerProperty, " \t") {
		return fmt.Errorf("invalid marker-property: %q", c.Daemon.MarkerProperty)
	}
	if c.Registry.Path == "" {
		return fmt.Errorf("registry path must not be empty")
	}
	if c.Settings.Schema == "" {
		return fmt.Errorf("settings schema must not be empty")
	}
	return nil
}

func (c *Config) ConfigPath() string {
	return c.configPath
}

// Save writes the configuration as TOML.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.configPath
	}
	if path == "" {
		path = filepath.Join(DefaultConfigDir(), "config.toml")
	}

	path = expandPath(path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	c.configPath = path
	return nil
}

// EnsureDirectories creates the directories referenced by the configuration.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		filepath.Dir(c.Registry.Path),
		filepath.Dir(c.Daemon.LockFile),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func expandPath(path string) string {
	if path == "" {
		return ""
	}
	if len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
