// Package config loads consigliere configuration from a YAML file with
// environment-variable overrides layered on top of built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all consigliere configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Telegram TelegramConfig `yaml:"telegram"`
	Narrator NarratorConfig `yaml:"narrator"`
	Game     GameConfig     `yaml:"game"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Storage  StorageConfig  `yaml:"storage"`
	Themes   ThemesConfig   `yaml:"themes"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TelegramConfig configures the Bot API transport.
type TelegramConfig struct {
	Token       string `yaml:"token"`
	BaseURL     string `yaml:"base_url"`
	PollTimeout string `yaml:"poll_timeout"`
}

// NarratorConfig configures the text-generation backend.
type NarratorConfig struct {
	Provider string `yaml:"provider"` // deepseek, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// GameConfig configures the lifecycle pacing.
type GameConfig struct {
	ResponseWindow string  `yaml:"response_window"`
	ResponseQuota  int     `yaml:"response_quota"`
	GraceDelay     string  `yaml:"grace_delay"`
	VoteWindow     string  `yaml:"vote_window"`
	HistoryContext int     `yaml:"history_context"`
	DialogContext  int     `yaml:"dialog_context"`
	SidelineChance float64 `yaml:"sideline_chance"`
	SidelineDays   int     `yaml:"sideline_days"`
}

// ScheduleConfig configures the recurring triggers and the deadline sweep.
type ScheduleConfig struct {
	Timezone      string `yaml:"timezone"`
	MorningHour   int    `yaml:"morning_hour"`
	EveningHour   int    `yaml:"evening_hour"`
	TriggerJitter string `yaml:"trigger_jitter"`
	SweepInterval string `yaml:"sweep_interval"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ThemesConfig configures the theme catalog.
type ThemesConfig struct {
	Dir       string `yaml:"dir"`
	HotReload bool   `yaml:"hot_reload"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration. Pacing defaults mirror
// the original game: morning beat at 10:00, evening beat at 23:00, quota of
// three responses, a 30-minute theme vote.
func DefaultConfig() *Config {
	return &Config{
		Name:    "consigliere",
		Version: "1.0.0",

		Telegram: TelegramConfig{
			BaseURL:     "https://api.telegram.org",
			PollTimeout: "50s",
		},
		Narrator: NarratorConfig{
			Provider: "deepseek",
			Model:    "deepseek-chat",
			BaseURL:  "https://api.deepseek.com/v1",
			Timeout:  "45s",
		},
		Game: GameConfig{
			ResponseWindow: "90m",
			ResponseQuota:  3,
			GraceDelay:     "2m",
			VoteWindow:     "30m",
			HistoryContext: 5,
			DialogContext:  8,
			SidelineChance: 0.4,
			SidelineDays:   2,
		},
		Schedule: ScheduleConfig{
			Timezone:      "UTC",
			MorningHour:   10,
			EveningHour:   23,
			TriggerJitter: "15m",
			SweepInterval: "3m",
		},
		Storage: StorageConfig{
			DatabasePath: "data/consigliere.db",
		},
		Themes: ThemesConfig{
			Dir:       "themes",
			HotReload: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file is not an
// error; defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		c.Telegram.Token = token
	}

	// Narrator API key in priority order; a key also selects the provider
	// unless one is configured explicitly.
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
		c.Narrator.APIKey = key
		if c.Narrator.Provider == "" {
			c.Narrator.Provider = "deepseek"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Narrator.APIKey = key
		c.Narrator.Provider = "gemini"
	}

	if path := os.Getenv("CONSIGLIERE_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		c.Schedule.Timezone = tz
	}
	if hour := os.Getenv("CONSIGLIERE_MORNING_HOUR"); hour != "" {
		if h, err := strconv.Atoi(hour); err == nil && h >= 0 && h < 24 {
			c.Schedule.MorningHour = h
		}
	}
	if hour := os.Getenv("CONSIGLIERE_EVENING_HOUR"); hour != "" {
		if h, err := strconv.Atoi(hour); err == nil && h >= 0 && h < 24 {
			c.Schedule.EveningHour = h
		}
	}
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// return the duration fields with safe fallbacks

func (c *Config) NarratorTimeout() time.Duration { return parseDuration(c.Narrator.Timeout, 45*time.Second) }
func (c *Config) PollTimeout() time.Duration     { return parseDuration(c.Telegram.PollTimeout, 50*time.Second) }
func (c *Config) ResponseWindow() time.Duration  { return parseDuration(c.Game.ResponseWindow, 90*time.Minute) }
func (c *Config) GraceDelay() time.Duration      { return parseDuration(c.Game.GraceDelay, 2*time.Minute) }
func (c *Config) VoteWindow() time.Duration      { return parseDuration(c.Game.VoteWindow, 30*time.Minute) }
func (c *Config) TriggerJitter() time.Duration   { return parseDuration(c.Schedule.TriggerJitter, 15*time.Minute) }
func (c *Config) SweepInterval() time.Duration   { return parseDuration(c.Schedule.SweepInterval, 3*time.Minute) }
