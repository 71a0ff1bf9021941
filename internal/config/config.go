// Package config loads the chatsync configuration file and its environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Duration is a time.Duration written as a string such as "30s" in TOML.
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// API configures the remote chat service.
type API struct {
	BaseURL      string   `toml:"base_url"`
	Timeout      Duration `toml:"timeout"`
	ImageTimeout Duration `toml:"image_timeout"`
}

// Sync configures polling periods and cache freshness.
type Sync struct {
	ChatListInterval   Duration `toml:"chat_list_interval"`
	ChatDetailInterval Duration `toml:"chat_detail_interval"`
	ChatListTTL        Duration `toml:"chat_list_ttl"`
	ChatDetailTTL      Duration `toml:"chat_detail_ttl"`
	UsersTTL           Duration `toml:"users_ttl"`
}

// Images configures the on-disk image cache.
type Images struct {
	TTL     Duration `toml:"ttl"`
	Workers int      `toml:"workers"`
	// Dir overrides the per-session image directory when set.
	Dir string `toml:"dir"`
}

// Session selects the default session and whether logins are remembered.
type Session struct {
	Name     string `toml:"name"`
	Remember bool   `toml:"remember"`
}

// Log configures the daemon log.
type Log struct {
	// Level is a zap level name: debug, info, warn or error.
	Level string `toml:"level"`
}

// Config represents ~/.chatsync/config.toml.
type Config struct {
	API     API     `toml:"api"`
	Sync    Sync    `toml:"sync"`
	Images  Images  `toml:"images"`
	Session Session `toml:"session"`
	Log     Log     `toml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		API: API{
			BaseURL:      "https://moviles-api-085771307784.herokuapp.com/",
			Timeout:      Duration{15 * time.Second},
			ImageTimeout: Duration{10 * time.Second},
		},
		Sync: Sync{
			ChatListInterval:   Duration{30 * time.Second},
			ChatDetailInterval: Duration{5 * time.Second},
			ChatListTTL:        Duration{5 * time.Minute},
			ChatDetailTTL:      Duration{5 * time.Minute},
			UsersTTL:           Duration{time.Hour},
		},
		Images: Images{
			TTL:     Duration{7 * 24 * time.Hour},
			Workers: 3,
		},
		Session: Session{Name: "main", Remember: true},
		Log:     Log{Level: "info"},
	}
}

// Load reads config from the given path on top of the defaults. Returns
// fs.ErrNotExist (wrapped) if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load that falls back to the defaults when the file does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Environment overrides.
const (
	EnvBaseURL  = "CHATSYNC_API_BASE_URL"
	EnvTimeout  = "CHATSYNC_API_TIMEOUT"
	EnvSession  = "CHATSYNC_SESSION"
	EnvLogLevel = "CHATSYNC_LOG_LEVEL"
)

// LoadEnv reads the given .env files into the process environment, skipping
// missing ones. Variables already set are not overwritten.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv applies the CHATSYNC_* overrides to cfg.
func (cfg *Config) ApplyEnv() error {
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		cfg.API.Timeout = Duration{d}
	}
	if v := os.Getenv(EnvSession); v != "" {
		cfg.Session.Name = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	return nil
}
