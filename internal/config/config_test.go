package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Setenv("CONTINUITY_STORAGE_PATH", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.BackupInterval)
	assert.Equal(t, 30*time.Second, cfg.TickInterval())
	assert.Equal(t, 90*24*time.Hour, cfg.Retention())
	assert.Equal(t, filepath.Join(cfg.StoragePath, ".cipher_key"), cfg.KeyFile)
	assert.Equal(t, filepath.Join(cfg.StoragePath, "audit.db"), cfg.AuditDB)
	assert.Equal(t, "maximum", cfg.CognitiveEnhancement)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, "continuity.yaml", `
storage_path: `+dir+`
backup_interval: 5
encryption_enabled: true
priority_services: [memory, scheduler]
profile:
  name: Ada
  mission: ship the release
deadlines:
  - name: filing
    at: "2030-01-02T00:00:00Z"
    escalates_on_expiry: true
  - name: hearing
    at: "2030-01-04"
target_deadline: hearing
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.StoragePath)
	assert.Equal(t, 5*time.Second, cfg.TickInterval())
	assert.True(t, cfg.EncryptionEnabled)
	assert.Equal(t, []string{"memory", "scheduler"}, cfg.PriorityServices)
	assert.Equal(t, "Ada", cfg.Profile.Name)
	// untouched profile fields keep their defaults
	assert.Equal(t, "session owner", cfg.Profile.Role)
	require.Len(t, cfg.Deadlines, 2)
	assert.True(t, cfg.Deadlines[0].EscalatesOnExpiry)
	assert.Equal(t, map[string]string{"filing": "2030-01-02T00:00:00Z", "hearing": "2030-01-04"}, cfg.CriticalDates())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, "c.yaml", "storage_path: "+dir+"\nbackup_interval: 5\n")
	t.Setenv("CONTINUITY_BACKUP_INTERVAL", "12")
	t.Setenv("CONTINUITY_PROFILE_NAME", "Grace")
	t.Setenv("CONTINUITY_PRIORITY_SERVICES", "a,b")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.BackupInterval)
	assert.Equal(t, "Grace", cfg.Profile.Name)
	assert.Equal(t, []string{"a", "b"}, cfg.PriorityServices)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadOptional_MissingFileFallsBack(t *testing.T) {
	t.Setenv("CONTINUITY_STORAGE_PATH", t.TempDir())
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.BackupInterval)
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "storage_path: [unterminated")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Default()
	base.StoragePath = "/tmp/x"

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty storage", func(c *Config) { c.StoragePath = " " }},
		{"zero interval", func(c *Config) { c.BackupInterval = 0 }},
		{"negative retention", func(c *Config) { c.RetentionPeriod = -1 }},
		{"zero launch timeout", func(c *Config) { c.LaunchTimeout = 0 }},
		{"zero parallelism", func(c *Config) { c.LaunchParallelism = 0 }},
		{"unnamed deadline", func(c *Config) { c.Deadlines = []DeadlineConfig{{At: "2030-01-01"}} }},
		{"bad deadline time", func(c *Config) { c.Deadlines = []DeadlineConfig{{Name: "x", At: "soon"}} }},
		{"duplicate deadline", func(c *Config) {
			c.Deadlines = []DeadlineConfig{{Name: "x", At: "2030-01-01"}, {Name: "x", At: "2030-01-02"}}
		}},
		{"unknown target", func(c *Config) { c.TargetDeadline = "nope" }},
	}
	require.NoError(t, base.Validate())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("2030-05-06T07:08:09Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2030, 5, 6, 7, 8, 9, 0, time.UTC)))

	got, err = ParseTimestamp("2030-05-06")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2030, 5, 6, 0, 0, 0, 0, time.Local)))

	_, err = ParseTimestamp("tomorrow")
	assert.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/.continuity")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".continuity"), got)

	got, err = ExpandHome("/var/lib/continuity")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/continuity", got)
}
