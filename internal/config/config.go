package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/charlie0129/timing-notes-sync/internal/section"
)

const (
	MinRefreshMinutes = 1
	MaxRefreshMinutes = 60
)

type Config struct {
	ListenAddr   string `yaml:"listen_addr"`
	DatabasePath string `yaml:"database_path"`
	Timezone     string `yaml:"timezone"`
	LogLevel     string `yaml:"log_level"`
	APIToken     string `yaml:"api_token"`

	VaultPath         string `yaml:"vault_path"`
	DailyNoteFolder   string `yaml:"daily_note_folder"`
	DailyNoteFormat   string `yaml:"daily_note_format"` // Go time layout
	DailyNoteTemplate string `yaml:"daily_note_template"`
	WeeklyNoteFolder  string `yaml:"weekly_note_folder"`

	SectionTitle       string `yaml:"section_title"`
	WeeklySectionTitle string `yaml:"weekly_section_title"`
	ReflectionTitle    string `yaml:"reflection_title"`
	Placement          string `yaml:"placement"` // top, bottom or after:<header>

	RefreshIntervalMinutes int    `yaml:"refresh_interval_minutes"`
	WeeklySyncSchedule     string `yaml:"weekly_sync_schedule"` // cron expression
	WeekStartsOn           string `yaml:"week_starts_on"`

	Use24HourTime   bool `yaml:"use_24h_time"`
	ShowTimeline    bool `yaml:"show_timeline"`
	TopApplications int  `yaml:"top_applications"`

	CacheCapacity   int `yaml:"cache_capacity"`
	CacheTTLMinutes int `yaml:"cache_ttl_minutes"`

	TimingAppName          string `yaml:"timing_app_name"`
	ExportDir              string `yaml:"export_dir"`
	AllowSyntheticFallback bool   `yaml:"allow_synthetic_fallback"`
	FetchAttempts          int    `yaml:"fetch_attempts"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}

	// Booleans default to true, so start from the defaults and let the file override them.
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ListenAddr:             ":3040",
		DatabasePath:           "timing.db",
		Timezone:               "Local",
		LogLevel:               "info",
		VaultPath:              "notes",
		DailyNoteFolder:        "Daily",
		DailyNoteFormat:        "2006-01-02",
		DailyNoteTemplate:      "# {{date}}\n",
		WeeklyNoteFolder:       "Weekly",
		SectionTitle:           "Timing Tracking",
		WeeklySectionTitle:     "Weekly Timing Summary",
		ReflectionTitle:        "Reflection",
		Placement:              "bottom",
		RefreshIntervalMinutes: 5,
		WeeklySyncSchedule:     "0 21 * * 0", // Sunday 9 PM
		WeekStartsOn:           "monday",
		Use24HourTime:          true,
		ShowTimeline:           true,
		TopApplications:        10,
		CacheCapacity:          200,
		CacheTTLMinutes:        60,
		TimingAppName:          "Timing",
		FetchAttempts:          3,
	}
}

// applyDefaults fills values that were explicitly blanked in the file.
func (c *Config) applyDefaults() {
	d := defaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.DatabasePath == "" {
		c.DatabasePath = d.DatabasePath
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.VaultPath == "" {
		c.VaultPath = d.VaultPath
	}
	if c.DailyNoteFormat == "" {
		c.DailyNoteFormat = d.DailyNoteFormat
	}
	if c.SectionTitle == "" {
		c.SectionTitle = d.SectionTitle
	}
	if c.WeeklySectionTitle == "" {
		c.WeeklySectionTitle = d.WeeklySectionTitle
	}
	if c.ReflectionTitle == "" {
		c.ReflectionTitle = d.ReflectionTitle
	}
	if c.Placement == "" {
		c.Placement = d.Placement
	}
	if c.WeekStartsOn == "" {
		c.WeekStartsOn = d.WeekStartsOn
	}
	if c.TopApplications <= 0 {
		c.TopApplications = d.TopApplications
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = d.CacheCapacity
	}
	if c.CacheTTLMinutes <= 0 {
		c.CacheTTLMinutes = d.CacheTTLMinutes
	}
	if c.TimingAppName == "" {
		c.TimingAppName = d.TimingAppName
	}
	if c.FetchAttempts <= 0 {
		c.FetchAttempts = d.FetchAttempts
	}

	if c.RefreshIntervalMinutes < MinRefreshMinutes || c.RefreshIntervalMinutes > MaxRefreshMinutes {
		clamped := min(max(c.RefreshIntervalMinutes, MinRefreshMinutes), MaxRefreshMinutes)
		slog.Warn("refresh interval out of range, clamping",
			"configured", c.RefreshIntervalMinutes, "used", clamped)
		c.RefreshIntervalMinutes = clamped
	}
}

// Validate rejects values that cannot be interpreted.
func (c *Config) Validate() error {
	if _, err := c.PlacementPolicy(); err != nil {
		return err
	}
	if _, err := c.WeekStart(); err != nil {
		return err
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (c *Config) GetTimezone() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMinutes) * time.Minute
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// WeekStart returns the first weekday of a reporting week.
func (c *Config) WeekStart() (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(c.WeekStartsOn)) {
	case "monday", "mon", "":
		return time.Monday, nil
	case "sunday", "sun":
		return time.Sunday, nil
	default:
		return time.Monday, fmt.Errorf("invalid week_starts_on %q, use monday or sunday", c.WeekStartsOn)
	}
}

// PlacementPolicy parses the placement setting: "top", "bottom" or "after:<header>".
func (c *Config) PlacementPolicy() (section.Placement, error) {
	raw := strings.TrimSpace(c.Placement)
	switch strings.ToLower(raw) {
	case "top":
		return section.Top(), nil
	case "bottom", "":
		return section.Bottom(), nil
	}
	if name, ok := strings.CutPrefix(raw, "after:"); ok && strings.TrimSpace(name) != "" {
		return section.AfterHeader(strings.TrimSpace(name)), nil
	}
	return section.Bottom(), fmt.Errorf("invalid placement %q, use top, bottom or after:<header>", c.Placement)
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
