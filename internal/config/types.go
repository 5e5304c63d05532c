package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the daemon configuration file.
//
// All durations are Go duration strings (e.g. "45s", "1m", "24h").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Media     MediaConfig     `json:"media"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Categories is a seed list ensured at boot; existing categories are
	// never touched.
	Categories []string `json:"categories,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level,omitempty"`
	Console *bool         `json:"console,omitempty"` // nil means true
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig points at the sqlite database file.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MediaConfig configures the staging and permanent media zones.
type MediaConfig struct {
	StagingDir string `json:"staging_dir"`
	MediaDir   string `json:"media_dir"`
	BaseURL    string `json:"base_url,omitempty"`
}

// SchedulerConfig controls promotion cadence and schedule validation.
//
// Defaults (when fields are omitted/zero):
//   - tick: "@every 1m"
//   - sweep: "@daily"
//   - min_lead: "45s"
//   - max_horizon: "8760h" (one year)
//   - staging_retention: "24h"
//   - max_per_second: 0 (unbounded)
type SchedulerConfig struct {
	Tick             string   `json:"tick,omitempty"`
	Sweep            string   `json:"sweep,omitempty"`
	MinLead          string   `json:"min_lead,omitempty"`
	MaxHorizon       string   `json:"max_horizon,omitempty"`
	StagingRetention string   `json:"staging_retention,omitempty"`
	MaxPerSecond     int      `json:"max_per_second,omitempty"`
	VideoHosts       []string `json:"video_hosts,omitempty"`
}

// Validate checks the structural requirements that do not depend on the
// environment (paths may not exist yet; the components create them).
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if strings.TrimSpace(c.Media.StagingDir) == "" {
		return errors.New("media.staging_dir is required")
	}
	if strings.TrimSpace(c.Media.MediaDir) == "" {
		return errors.New("media.media_dir is required")
	}
	if c.Media.StagingDir == c.Media.MediaDir {
		return errors.New("media.staging_dir and media.media_dir must differ")
	}
	for _, f := range []struct{ path, raw string }{
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"scheduler.min_lead", c.Scheduler.MinLead},
		{"scheduler.max_horizon", c.Scheduler.MaxHorizon},
		{"scheduler.staging_retention", c.Scheduler.StagingRetention},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if c.Scheduler.MaxPerSecond < 0 {
		return fmt.Errorf("scheduler.max_per_second: must be >= 0")
	}
	return nil
}

// ConsoleEnabled resolves the tri-state console flag (omitted means on).
func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}

// Duration helpers resolving config strings with defaults.

func (s StorageConfig) BusyTimeoutDuration() time.Duration {
	d, _ := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	return d
}

func (s SchedulerConfig) MinLeadDuration(def time.Duration) time.Duration {
	d, _ := ParseDurationOrDefault("scheduler.min_lead", s.MinLead, def)
	return d
}

func (s SchedulerConfig) MaxHorizonDuration(def time.Duration) time.Duration {
	d, _ := ParseDurationOrDefault("scheduler.max_horizon", s.MaxHorizon, def)
	return d
}

func (s SchedulerConfig) StagingRetentionDuration(def time.Duration) time.Duration {
	d, _ := ParseDurationOrDefault("scheduler.staging_retention", s.StagingRetention, def)
	return d
}
