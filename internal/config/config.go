package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all cadence configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Recur    RecurConfig    `yaml:"recurrence"`
	Notify   NotifyConfig   `yaml:"notifications"`
	Timezone string         `yaml:"timezone"` // IANA name; empty means the system zone
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"` // resolved at runtime via store.DefaultDBPath() when empty
}

type RecurConfig struct {
	// HorizonDays is how far ahead instances are materialized from templates.
	HorizonDays int `yaml:"horizon_days"`
	// Cron is a cron-style schedule for the background reconciliation pass
	// run by `cadence serve` (e.g. "0 * * * *").
	Cron string `yaml:"cron"`
}

type NotifyConfig struct {
	// LeadMinutes is how long before an entry's start time its reminder fires.
	LeadMinutes int `yaml:"lead_minutes"`
	// HorizonDays is the window within which reminders are kept scheduled.
	HorizonDays int `yaml:"horizon_days"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38484,
		},
		Recur: RecurConfig{
			HorizonDays: 90,
			Cron:        "0 * * * *",
		},
		Notify: NotifyConfig{
			LeadMinutes: 60,
			HorizonDays: 14,
		},
	}
}

// Normalize fills in missing/zero values so partially-filled configs
// from older versions still behave correctly.
func (c *Config) Normalize() {
	d := Default()
	if c.Server.Bind == "" {
		c.Server.Bind = d.Server.Bind
	}
	if c.Server.Port <= 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Recur.HorizonDays <= 0 {
		c.Recur.HorizonDays = d.Recur.HorizonDays
	}
	if c.Recur.Cron == "" {
		c.Recur.Cron = d.Recur.Cron
	}
	if c.Notify.LeadMinutes <= 0 {
		c.Notify.LeadMinutes = d.Notify.LeadMinutes
	}
	if c.Notify.HorizonDays <= 0 {
		c.Notify.HorizonDays = d.Notify.HorizonDays
	}
}

// Location resolves the configured timezone, falling back to the system zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// DefaultPath returns the default config path: ~/.cadence/config.yaml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".cadence", "config.yaml"), nil
}

// Load reads configuration from the given YAML path. On first run (file
// missing) it writes a default config and returns it.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Save writes the configuration atomically (temp file + rename, 0600).
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".cadence-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
