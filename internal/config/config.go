// Package config provides configuration management for the ipa download
// pipeline. It handles YAML-based settings covering the ipatool binary,
// output locations, retry and supervision tunables, and catalog lookups.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for configuration validation
var (
	ErrDownloadDirRequired = errors.New("download_dir is required")
	ErrNegativeMaxRetries  = errors.New("max_retries cannot be negative")
	ErrInvalidProgressStep = errors.New("progress_step must be a positive byte count")
	ErrInvalidCountry      = errors.New("country must be a two-letter storefront code")
)

// Defaults applied for absent or malformed values.
const (
	DefaultIpatoolPath   = "ipatool"
	DefaultDownloadDir   = "downloads"
	DefaultDatabaseFile  = "ipagrab.db"
	DefaultCountry       = "us"
	DefaultMaxRetries    = 3
	DefaultProgressStep  = 512 << 10
	DefaultRetryDelay    = 2 * time.Second
	DefaultStallWindow   = 90 * time.Second
	DefaultPollInterval  = 250 * time.Millisecond
	DefaultLookupTTL     = 5 * time.Minute
	DefaultNetworkCap    = 10 * time.Second
	DefaultThrottleFloor = 5 * time.Second
	DefaultThrottleCap   = 30 * time.Second
)

// Config represents the top-level configuration structure.
type Config struct {
	Ipatool  IpatoolConfig  `yaml:"ipatool"`
	Download DownloadConfig `yaml:"download"`
	Storage  StorageConfig  `yaml:"storage"`
	Lookup   LookupConfig   `yaml:"lookup"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// IpatoolConfig locates and drives the external ipatool binary.
type IpatoolConfig struct {
	Path string `yaml:"path"`

	// CheckUpdates looks up the latest ipatool release when the doctor
	// command runs. Advisory only.
	CheckUpdates bool `yaml:"check_updates"`
}

// GetPath returns the configured binary path or the bare command name.
func (i *IpatoolConfig) GetPath() string {
	if i.Path == "" {
		return DefaultIpatoolPath
	}
	return i.Path
}

// DownloadConfig represents download orchestration settings. Duration
// fields are duration strings ("90s", "2m"); malformed values fall back to
// the defaults.
type DownloadConfig struct {
	Dir string `yaml:"dir"`

	MaxRetries     *int   `yaml:"max_retries"`
	RetryDelay     string `yaml:"retry_delay"`
	NetworkCap     string `yaml:"network_delay_cap"`
	ThrottleFloor  string `yaml:"throttle_delay_floor"`
	ThrottleCap    string `yaml:"throttle_delay_cap"`
	StallWindow    string `yaml:"stall_window"`
	PollInterval   string `yaml:"poll_interval"`
	OverallTimeout string `yaml:"overall_timeout"`

	// ProgressStep is the minimum file growth in bytes between progress
	// reports.
	ProgressStep int64 `yaml:"progress_step"`
}

// GetMaxRetries returns the retry ceiling, defaulting when unset.
func (d *DownloadConfig) GetMaxRetries() int {
	if d.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *d.MaxRetries
}

// GetRetryDelay parses and returns the initial retry delay
func (d *DownloadConfig) GetRetryDelay() time.Duration {
	return parseDuration(d.RetryDelay, DefaultRetryDelay)
}

// GetNetworkCap parses and returns the network backoff ceiling
func (d *DownloadConfig) GetNetworkCap() time.Duration {
	return parseDuration(d.NetworkCap, DefaultNetworkCap)
}

// GetThrottleFloor parses and returns the rate-limit backoff floor
func (d *DownloadConfig) GetThrottleFloor() time.Duration {
	return parseDuration(d.ThrottleFloor, DefaultThrottleFloor)
}

// GetThrottleCap parses and returns the rate-limit backoff ceiling
func (d *DownloadConfig) GetThrottleCap() time.Duration {
	return parseDuration(d.ThrottleCap, DefaultThrottleCap)
}

// GetStallWindow parses and returns the no-progress abort window
func (d *DownloadConfig) GetStallWindow() time.Duration {
	return parseDuration(d.StallWindow, DefaultStallWindow)
}

// GetPollInterval parses and returns the file-growth poll interval
func (d *DownloadConfig) GetPollInterval() time.Duration {
	return parseDuration(d.PollInterval, DefaultPollInterval)
}

// GetOverallTimeout parses and returns the per-attempt timeout. Zero means
// no overall bound.
func (d *DownloadConfig) GetOverallTimeout() time.Duration {
	return parseDuration(d.OverallTimeout, 0)
}

// GetProgressStep returns the progress report threshold in bytes.
func (d *DownloadConfig) GetProgressStep() int64 {
	if d.ProgressStep == 0 {
		return DefaultProgressStep
	}
	return d.ProgressStep
}

// GetDir returns the download directory.
func (d *DownloadConfig) GetDir() string {
	if d.Dir == "" {
		return DefaultDownloadDir
	}
	return d.Dir
}

// StorageConfig represents storage configuration for download tracking.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	LogLevel     string `yaml:"log_level"`
}

// GetDatabasePath returns the sqlite database path.
func (s *StorageConfig) GetDatabasePath() string {
	if s.DatabasePath == "" {
		return DefaultDatabaseFile
	}
	return s.DatabasePath
}

// LookupConfig represents iTunes catalog lookup settings.
type LookupConfig struct {
	Country  string `yaml:"country"`
	CacheTTL string `yaml:"cache_ttl"`
}

// GetCountry returns the storefront country code.
func (l *LookupConfig) GetCountry() string {
	if l.Country == "" {
		return DefaultCountry
	}
	return l.Country
}

// GetCacheTTL parses and returns the lookup cache lifetime
func (l *LookupConfig) GetCacheTTL() time.Duration {
	return parseDuration(l.CacheTTL, DefaultLookupTTL)
}

// LoggingConfig represents log output settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

// DefaultConfig returns a configuration with every field on its default.
func DefaultConfig() *Config {
	return &Config{
		Download: DownloadConfig{Dir: DefaultDownloadDir},
	}
}

// LoadConfig loads and parses configuration from a YAML file. A missing
// file is not an error; the defaults apply.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}
	if config.Download.Dir == "" {
		config.Download.Dir = DefaultDownloadDir
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Validate validates the configuration structure and required fields.
func (c *Config) Validate() error {
	if c.Download.Dir == "" {
		return ErrDownloadDirRequired
	}
	if c.Download.MaxRetries != nil && *c.Download.MaxRetries < 0 {
		return ErrNegativeMaxRetries
	}
	if c.Download.ProgressStep < 0 {
		return ErrInvalidProgressStep
	}
	if c.Lookup.Country != "" && len(c.Lookup.Country) != 2 {
		return ErrInvalidCountry
	}
	return nil
}

// DefaultPath returns the conventional config file location under the user
// config directory, falling back to the working directory.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "ipagrab.yaml"
	}
	return filepath.Join(base, "ipagrab", "config.yaml")
}
