// Package config loads the continuity controller configuration from a YAML
// file and overlays CONTINUITY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// #region constants

// EnvPrefix namespaces every environment override.
const EnvPrefix = "CONTINUITY_"

const dateLayout = "2006-01-02"

// #endregion constants

// #region types

// Profile is the static identity and mission text reaffirmed by the
// reinforcement payload and stamped into new state records.
type Profile struct {
	Name           string `yaml:"name" env:"NAME"`
	Role           string `yaml:"role" env:"ROLE"`
	Mission        string `yaml:"mission" env:"MISSION"`
	CaseReference  string `yaml:"case_reference" env:"CASE_REFERENCE"`
	EmotionalCore  string `yaml:"emotional_core" env:"EMOTIONAL_CORE"`
	SystemsSummary string `yaml:"systems_summary" env:"SYSTEMS_SUMMARY"`
}

// DeadlineConfig declares one named deadline. At accepts RFC 3339 or a
// bare date, which is read as local midnight.
type DeadlineConfig struct {
	Name              string `yaml:"name"`
	At                string `yaml:"at"`
	EscalatesOnExpiry bool   `yaml:"escalates_on_expiry"`
}

// Time parses At.
func (d DeadlineConfig) Time() (time.Time, error) {
	return ParseTimestamp(d.At)
}

// Config is the full controller configuration.
type Config struct {
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH"`
	// BackupInterval is the deadline monitor tick, in seconds.
	BackupInterval int `yaml:"backup_interval" env:"BACKUP_INTERVAL"`
	// RetentionPeriod is in days; enforced by Store.Prune.
	RetentionPeriod   int    `yaml:"retention_period" env:"RETENTION_PERIOD"`
	EncryptionEnabled bool   `yaml:"encryption_enabled" env:"ENCRYPTION_ENABLED"`
	KeyFile           string `yaml:"key_file" env:"KEY_FILE"`

	MissionPreservation  bool   `yaml:"mission_preservation" env:"MISSION_PRESERVATION"`
	EmotionalContinuity  bool   `yaml:"emotional_continuity" env:"EMOTIONAL_CONTINUITY"`
	MemoryDepth          string `yaml:"memory_depth" env:"MEMORY_DEPTH"`
	CognitiveEnhancement string `yaml:"cognitive_enhancement" env:"COGNITIVE_ENHANCEMENT"`

	AuditDB     string `yaml:"audit_db" env:"AUDIT_DB"`
	HealthAddr  string `yaml:"health_addr" env:"HEALTH_ADDR"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	LogJSON     bool   `yaml:"log_json" env:"LOG_JSON"`

	// LaunchTimeout bounds each subprocess launch, in seconds.
	LaunchTimeout     int      `yaml:"launch_timeout" env:"LAUNCH_TIMEOUT"`
	LaunchParallelism int      `yaml:"launch_parallelism" env:"LAUNCH_PARALLELISM"`
	ServicesFile      string   `yaml:"services_file" env:"SERVICES_FILE"`
	PriorityServices  []string `yaml:"priority_services" env:"PRIORITY_SERVICES" envSeparator:","`

	Profile        Profile          `yaml:"profile" envPrefix:"PROFILE_"`
	Deadlines      []DeadlineConfig `yaml:"deadlines"`
	TargetDeadline string           `yaml:"target_deadline" env:"TARGET_DEADLINE"`
}

// #endregion types

// #region defaults

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StoragePath:          "~/.continuity",
		BackupInterval:       30,
		RetentionPeriod:      90,
		EncryptionEnabled:    false,
		KeyFile:              "",
		MissionPreservation:  true,
		EmotionalContinuity:  true,
		MemoryDepth:          "infinite",
		CognitiveEnhancement: "maximum",
		AuditDB:              "",
		LogLevel:             "info",
		LaunchTimeout:        60,
		LaunchParallelism:    1,
		ServicesFile:         "config/services.json",
		Profile: Profile{
			Name:           "operator",
			Role:           "session owner",
			Mission:        "primary mission",
			CaseReference:  "unassigned",
			EmotionalCore:  "steady commitment to the mission",
			SystemsSummary: "all configured services",
		},
	}
}

// #endregion defaults

// #region load

// Load reads path (optional) over the defaults, applies environment
// overrides, expands the storage path and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	expanded, err := ExpandHome(cfg.StoragePath)
	if err != nil {
		return Config{}, err
	}
	cfg.StoragePath = expanded
	if cfg.KeyFile == "" {
		cfg.KeyFile = filepath.Join(cfg.StoragePath, ".cipher_key")
	}
	if cfg.AuditDB == "" {
		cfg.AuditDB = filepath.Join(cfg.StoragePath, "audit.db")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOptional behaves like Load but treats a missing file as absent.
func LoadOptional(path string) (Config, error) {
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	return Load(path)
}

// #endregion load

// #region validate

// Validate checks the invariants the controller relies on.
func (c Config) Validate() error {
	if strings.TrimSpace(c.StoragePath) == "" {
		return errors.New("config: storage_path is required")
	}
	if c.BackupInterval <= 0 {
		return fmt.Errorf("config: backup_interval must be positive, got %d", c.BackupInterval)
	}
	if c.RetentionPeriod < 0 {
		return fmt.Errorf("config: retention_period must not be negative, got %d", c.RetentionPeriod)
	}
	if c.LaunchTimeout <= 0 {
		return fmt.Errorf("config: launch_timeout must be positive, got %d", c.LaunchTimeout)
	}
	if c.LaunchParallelism <= 0 {
		return fmt.Errorf("config: launch_parallelism must be positive, got %d", c.LaunchParallelism)
	}
	seen := make(map[string]bool, len(c.Deadlines))
	for _, d := range c.Deadlines {
		if d.Name == "" {
			return errors.New("config: deadline without name")
		}
		if seen[d.Name] {
			return fmt.Errorf("config: duplicate deadline %q", d.Name)
		}
		seen[d.Name] = true
		if _, err := d.Time(); err != nil {
			return fmt.Errorf("config: deadline %q: %w", d.Name, err)
		}
	}
	if c.TargetDeadline != "" && !seen[c.TargetDeadline] {
		return fmt.Errorf("config: target_deadline %q is not a configured deadline", c.TargetDeadline)
	}
	return nil
}

// #endregion validate

// #region accessors

// TickInterval is backup_interval as a duration.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.BackupInterval) * time.Second
}

// Retention is retention_period as a duration. Zero disables pruning.
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionPeriod) * 24 * time.Hour
}

// LaunchTimeoutDuration is launch_timeout as a duration.
func (c Config) LaunchTimeoutDuration() time.Duration {
	return time.Duration(c.LaunchTimeout) * time.Second
}

// CriticalDates maps deadline name to its configured date string.
func (c Config) CriticalDates() map[string]string {
	out := make(map[string]string, len(c.Deadlines))
	for _, d := range c.Deadlines {
		out[d.Name] = d.At
	}
	return out
}

// #endregion accessors

// #region helpers

// ParseTimestamp accepts RFC 3339 or YYYY-MM-DD (local midnight).
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: want RFC 3339 or %s", s, dateLayout)
	}
	return t, nil
}

// ExpandHome resolves a leading ~ against the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// #endregion helpers
