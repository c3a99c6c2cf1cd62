package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name        string
		configData  string
		expectError error
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid config",
			configData: `
ipatool:
  path: "/usr/local/bin/ipatool"
  check_updates: true
download:
  dir: "/tmp/ipas"
  max_retries: 5
  retry_delay: "1s"
  stall_window: "2m"
  poll_interval: "500ms"
  progress_step: 1048576
storage:
  database_path: "/tmp/ipagrab.db"
lookup:
  country: "de"
  cache_ttl: "10m"
logging:
  level: "debug"
  format: "json"
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Ipatool.GetPath() != "/usr/local/bin/ipatool" {
					t.Errorf("ipatool path = %q", cfg.Ipatool.GetPath())
				}
				if cfg.Download.GetMaxRetries() != 5 {
					t.Errorf("max retries = %d, want 5", cfg.Download.GetMaxRetries())
				}
				if cfg.Download.GetRetryDelay() != time.Second {
					t.Errorf("retry delay = %v", cfg.Download.GetRetryDelay())
				}
				if cfg.Download.GetStallWindow() != 2*time.Minute {
					t.Errorf("stall window = %v", cfg.Download.GetStallWindow())
				}
				if cfg.Download.GetProgressStep() != 1048576 {
					t.Errorf("progress step = %d", cfg.Download.GetProgressStep())
				}
				if cfg.Lookup.GetCountry() != "de" {
					t.Errorf("country = %q", cfg.Lookup.GetCountry())
				}
				if cfg.Lookup.GetCacheTTL() != 10*time.Minute {
					t.Errorf("cache ttl = %v", cfg.Lookup.GetCacheTTL())
				}
			},
		},
		{
			name:       "empty file gets defaults",
			configData: "",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Download.GetDir() != DefaultDownloadDir {
					t.Errorf("dir = %q, want default", cfg.Download.GetDir())
				}
				if cfg.Download.GetMaxRetries() != DefaultMaxRetries {
					t.Errorf("max retries = %d, want default", cfg.Download.GetMaxRetries())
				}
				if cfg.Ipatool.GetPath() != DefaultIpatoolPath {
					t.Errorf("ipatool path = %q, want default", cfg.Ipatool.GetPath())
				}
			},
		},
		{
			name: "malformed durations fall back to defaults",
			configData: `
download:
  dir: "out"
  retry_delay: "soon"
  stall_window: "a while"
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Download.GetRetryDelay() != DefaultRetryDelay {
					t.Errorf("retry delay = %v, want default", cfg.Download.GetRetryDelay())
				}
				if cfg.Download.GetStallWindow() != DefaultStallWindow {
					t.Errorf("stall window = %v, want default", cfg.Download.GetStallWindow())
				}
			},
		},
		{
			name: "zero max_retries is preserved",
			configData: `
download:
  dir: "out"
  max_retries: 0
`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Download.GetMaxRetries() != 0 {
					t.Errorf("max retries = %d, want explicit 0", cfg.Download.GetMaxRetries())
				}
			},
		},
		{
			name: "negative max_retries rejected",
			configData: `
download:
  dir: "out"
  max_retries: -1
`,
			expectError: ErrNegativeMaxRetries,
		},
		{
			name: "bad country rejected",
			configData: `
download:
  dir: "out"
lookup:
  country: "germany"
`,
			expectError: ErrInvalidCountry,
		},
		{
			name: "negative progress_step rejected",
			configData: `
download:
  dir: "out"
  progress_step: -5
`,
			expectError: ErrInvalidProgressStep,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.configData)
			cfg, err := LoadConfig(path)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Fatalf("got error %v, want %v", err, tt.expectError)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if cfg.Download.GetDir() != DefaultDownloadDir {
		t.Errorf("dir = %q, want default", cfg.Download.GetDir())
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "download: [not a mapping")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestDurationDefaults(t *testing.T) {
	var d DownloadConfig
	if d.GetOverallTimeout() != 0 {
		t.Errorf("overall timeout default = %v, want 0", d.GetOverallTimeout())
	}
	if d.GetPollInterval() != DefaultPollInterval {
		t.Errorf("poll interval default = %v", d.GetPollInterval())
	}
	if d.GetNetworkCap() != DefaultNetworkCap {
		t.Errorf("network cap default = %v", d.GetNetworkCap())
	}
	if d.GetThrottleFloor() != DefaultThrottleFloor {
		t.Errorf("throttle floor default = %v", d.GetThrottleFloor())
	}
	if d.GetThrottleCap() != DefaultThrottleCap {
		t.Errorf("throttle cap default = %v", d.GetThrottleCap())
	}
}
