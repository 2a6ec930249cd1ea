package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/timing-notes-sync/internal/section"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), cfg)
	assert.Equal(t, 5*time.Minute, cfg.RefreshInterval())
	assert.Equal(t, time.Hour, cfg.CacheTTL())
	assert.True(t, cfg.Use24HourTime)
	assert.False(t, cfg.AllowSyntheticFallback)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
vault_path: /tmp/vault
section_title: Time
placement: "after:Tasks"
week_starts_on: Sunday
use_24h_time: false
show_timeline: false
refresh_interval_minutes: 15
timezone: UTC
log_level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/vault", cfg.VaultPath)
	assert.Equal(t, "Time", cfg.SectionTitle)
	assert.False(t, cfg.Use24HourTime)
	assert.False(t, cfg.ShowTimeline)
	assert.Equal(t, 15*time.Minute, cfg.RefreshInterval())
	// Untouched keys keep their defaults.
	assert.Equal(t, "Reflection", cfg.ReflectionTitle)
	assert.Equal(t, ":3040", cfg.ListenAddr)

	p, err := cfg.PlacementPolicy()
	require.NoError(t, err)
	assert.Equal(t, section.AfterHeader("Tasks"), p)

	ws, err := cfg.WeekStart()
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, ws)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	assert.Equal(t, time.UTC, cfg.GetTimezone())
}

func TestLoad_BlankValuesFallBackToDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
section_title: ""
placement: ""
cache_capacity: 0
fetch_attempts: -1
`))
	require.NoError(t, err)
	assert.Equal(t, "Timing Tracking", cfg.SectionTitle)
	assert.Equal(t, "bottom", cfg.Placement)
	assert.Equal(t, 200, cfg.CacheCapacity)
	assert.Equal(t, 3, cfg.FetchAttempts)
}

func TestLoad_ClampsRefreshInterval(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"0", MinRefreshMinutes},
		{"-5", MinRefreshMinutes},
		{"1", 1},
		{"60", 60},
		{"240", MaxRefreshMinutes},
	}
	for _, tt := range tests {
		cfg, err := Load(writeConfig(t, "refresh_interval_minutes: "+tt.value+"\n"))
		require.NoError(t, err, tt.value)
		assert.Equal(t, tt.want, cfg.RefreshIntervalMinutes, tt.value)
	}
}

func TestLoad_Invalid(t *testing.T) {
	for _, content := range []string{
		"placement: sideways\n",
		"placement: \"after:\"\n",
		"week_starts_on: friday\n",
		"log_level: loud\n",
		"refresh_interval_minutes: [1\n",
	} {
		_, err := Load(writeConfig(t, content))
		assert.Error(t, err, content)
	}
}

func TestPlacementPolicy(t *testing.T) {
	tests := map[string]section.Placement{
		"top":           section.Top(),
		"TOP":           section.Top(),
		"bottom":        section.Bottom(),
		"after: Tasks ": section.AfterHeader("Tasks"),
	}
	for raw, want := range tests {
		cfg := &Config{Placement: raw}
		got, err := cfg.PlacementPolicy()
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestGetTimezone_UnknownFallsBackToLocal(t *testing.T) {
	cfg := &Config{Timezone: "Mars/Olympus"}
	assert.Equal(t, time.Local, cfg.GetTimezone())
}
