// Package config handles application configuration from an optional TOML
// file and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // Zone database for minimal containers.

	"github.com/BurntSushi/toml"
)

// CredentialPolicy decides what the notifier does without Telegram credentials.
type CredentialPolicy string

// Supported credential policies.
const (
	// CredentialsFail reports delivery failure, so cursors are not advanced.
	CredentialsFail CredentialPolicy = "fail"
	// CredentialsSkip silently reports success without sending anything.
	CredentialsSkip CredentialPolicy = "skip"
)

// ShortsMode selects how the shorts category is polled.
type ShortsMode string

// Supported shorts modes.
const (
	ShortsOff      ShortsMode = "off"
	ShortsPlaylist ShortsMode = "playlist"
	ShortsClassify ShortsMode = "classify"
)

// MaxDescriptionLimit keeps a notification under Telegram's 4096 character
// message limit.
const MaxDescriptionLimit = 3000

// Storage backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds the application configuration.
type Config struct {
	TelegramToken        string           `toml:"telegram_token"`
	TelegramChatID       string           `toml:"telegram_chat_id"`
	ChannelsFile         string           `toml:"channels_file"`
	StateFile            string           `toml:"state_file"`
	StateBackend         string           `toml:"state_backend"`
	DatabasePath         string           `toml:"database_path"`
	LogLevel             string           `toml:"log_level"`
	Timezone             string           `toml:"timezone"`
	DescriptionLimit     int              `toml:"description_limit"`
	OnMissingCredentials CredentialPolicy `toml:"on_missing_credentials"`
	HTTPTimeout          Duration         `toml:"http_timeout"`
	ShortsMode           ShortsMode       `toml:"shorts_mode"`
	ShortsThreshold      Duration         `toml:"shorts_threshold"`
	OrderingGuard        bool             `toml:"ordering_guard"`
	MetricsFile          string           `toml:"metrics_file"`
}

// Duration is a time.Duration that decodes from strings like "15s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ChannelsFile:         "channels.txt",
		StateFile:            "state.json",
		StateBackend:         BackendFile,
		DatabasePath:         "./data/state.db",
		LogLevel:             "info",
		Timezone:             "Asia/Shanghai",
		DescriptionLimit:     100,
		OnMissingCredentials: CredentialsFail,
		HTTPTimeout:          Duration{15 * time.Second},
		ShortsMode:           ShortsPlaylist,
		ShortsThreshold:      Duration{60 * time.Second},
		OrderingGuard:        true,
	}
}

// Load builds the configuration from defaults, the TOML file at path (if
// path is not empty) and environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.TelegramToken, "TELEGRAM_TOKEN")
	setString(&c.TelegramChatID, "TELEGRAM_CHAT_ID")
	setString(&c.ChannelsFile, "CHANNELS_FILE")
	setString(&c.StateFile, "STATE_FILE")
	setString(&c.StateBackend, "STATE_BACKEND")
	setString(&c.DatabasePath, "DATABASE_PATH")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Timezone, "TIMEZONE")
	setString(&c.MetricsFile, "METRICS_FILE")

	if raw := os.Getenv("ON_MISSING_CREDENTIALS"); raw != "" {
		c.OnMissingCredentials = CredentialPolicy(strings.ToLower(strings.TrimSpace(raw)))
	}
	if raw := os.Getenv("SHORTS_MODE"); raw != "" {
		c.ShortsMode = ShortsMode(strings.ToLower(strings.TrimSpace(raw)))
	}
	if raw := os.Getenv("DESCRIPTION_LIMIT"); raw != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid DESCRIPTION_LIMIT %q: %w", raw, err)
		}
		c.DescriptionLimit = n
	}
	if raw := os.Getenv("HTTP_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid HTTP_TIMEOUT %q: %w", raw, err)
		}
		c.HTTPTimeout.Duration = d
	}
	if raw := os.Getenv("SHORTS_THRESHOLD"); raw != "" {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid SHORTS_THRESHOLD %q: %w", raw, err)
		}
		c.ShortsThreshold.Duration = d
	}
	if raw := os.Getenv("ORDERING_GUARD"); raw != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid ORDERING_GUARD %q: %w", raw, err)
		}
		c.OrderingGuard = v
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate checks that all settings hold supported values.
// Missing Telegram credentials are not an error.
func (c *Config) Validate() error {
	switch c.OnMissingCredentials {
	case CredentialsFail, CredentialsSkip:
	default:
		return fmt.Errorf("invalid on_missing_credentials %q, use: fail, skip", c.OnMissingCredentials)
	}
	switch c.ShortsMode {
	case ShortsOff, ShortsPlaylist, ShortsClassify:
	default:
		return fmt.Errorf("invalid shorts_mode %q, use: off, playlist, classify", c.ShortsMode)
	}
	switch c.StateBackend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("invalid state_backend %q, use: file, sqlite", c.StateBackend)
	}
	if c.DescriptionLimit < 1 {
		return fmt.Errorf("description_limit must be positive, got %d", c.DescriptionLimit)
	}
	if c.DescriptionLimit > MaxDescriptionLimit {
		return fmt.Errorf("description_limit must be at most %d, got %d", MaxDescriptionLimit, c.DescriptionLimit)
	}
	if c.HTTPTimeout.Duration <= 0 {
		return fmt.Errorf("http_timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.ShortsThreshold.Duration <= 0 {
		return fmt.Errorf("shorts_threshold must be positive, got %s", c.ShortsThreshold)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// HasCredentials reports whether both Telegram secrets are configured.
func (c *Config) HasCredentials() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}

// Location returns the time zone used to render publish times.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
