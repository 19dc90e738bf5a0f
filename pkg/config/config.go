package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig                 `yaml:"app"`
	Providers     map[string]ProviderConfig `yaml:"providers"`
	Pipeline      PipelineConfig            `yaml:"pipeline"`
	Sessions      SessionsConfig            `yaml:"sessions"`
	Database      DatabaseConfig            `yaml:"database"`
	Server        ServerConfig              `yaml:"server"`
	Notifications NotificationsConfig       `yaml:"notifications"`
	ContentPolicy ContentPolicyConfig       `yaml:"content_policy"`
	Research      ResearchConfig            `yaml:"research"`
	Telemetry     TelemetryConfig           `yaml:"telemetry"`
}

type AppConfig struct {
	Name       string `yaml:"name"`
	PromptsDir string `yaml:"prompts_dir"`
	LogDir     string `yaml:"log_dir"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	Enabled bool   `yaml:"enabled"`
}

type PipelineConfig struct {
	StepTimeout       time.Duration `yaml:"step_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
	AcceptableQuality float64       `yaml:"acceptable_quality"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

type SessionsConfig struct {
	MaxAge        time.Duration `yaml:"max_age"`
	MaxPerUser    int           `yaml:"max_per_user"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type NotificationsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
}

type TelegramConfig struct {
	Token   string `yaml:"token"`
	ChatID  int64  `yaml:"chat_id"`
	Enabled bool   `yaml:"enabled"`
}

type DiscordConfig struct {
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
	Enabled   bool   `yaml:"enabled"`
}

type ContentPolicyConfig struct {
	DeniedTerms    []string `yaml:"denied_terms"`
	DeniedPatterns []string `yaml:"denied_patterns"`
}

type ResearchConfig struct {
	SearchEnabled  bool `yaml:"search_enabled"`
	MaxResults     int  `yaml:"max_results"`
	WebsiteEnabled bool `yaml:"website_enabled"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the configuration used when no file overrides a field.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:       "contentcal",
			PromptsDir: "./prompts",
			LogDir:     "logs",
		},
		Providers: map[string]ProviderConfig{},
		Pipeline: PipelineConfig{
			StepTimeout:       90 * time.Second,
			MaxRetries:        3,
			BackoffInitial:    500 * time.Millisecond,
			BackoffMax:        8 * time.Second,
			AcceptableQuality: 0.7,
			RequestsPerMinute: 60,
		},
		Sessions: SessionsConfig{
			MaxAge:        24 * time.Hour,
			MaxPerUser:    10,
			StaleAfter:    10 * time.Minute,
			SweepInterval: time.Minute,
		},
		Database: DatabaseConfig{Path: "contentcal.db"},
		Server:   ServerConfig{Addr: ":8080"},
		Research: ResearchConfig{MaxResults: 5},
		Telemetry: TelemetryConfig{
			ServiceName: "contentcal",
		},
	}
}

// Load reads a YAML file over the defaults. A missing file yields the
// defaults. Provider API keys may come from CONTENTCAL_<PROVIDER>_API_KEY.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	for name, p := range c.Providers {
		key := "CONTENTCAL_" + strings.ToUpper(name) + "_API_KEY"
		if v := os.Getenv(key); v != "" {
			p.APIKey = v
			c.Providers[name] = p
		}
	}
	if v := os.Getenv("CONTENTCAL_TELEGRAM_TOKEN"); v != "" {
		c.Notifications.Telegram.Token = v
	}
	if v := os.Getenv("CONTENTCAL_DISCORD_TOKEN"); v != "" {
		c.Notifications.Discord.Token = v
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Pipeline.MaxRetries < 0 {
		return fmt.Errorf("pipeline.max_retries must not be negative")
	}
	if c.Pipeline.AcceptableQuality < 0 || c.Pipeline.AcceptableQuality > 1 {
		return fmt.Errorf("pipeline.acceptable_quality must be within [0,1], got %v", c.Pipeline.AcceptableQuality)
	}
	if c.Sessions.MaxPerUser < 0 {
		return fmt.Errorf("sessions.max_per_user must not be negative")
	}
	return nil
}

// GetDefaultProvider returns the first enabled provider in name order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (TelegramConfig, bool) {
	tg := c.Notifications.Telegram
	if tg.Enabled && tg.Token != "" && tg.ChatID != 0 {
		return tg, true
	}
	return TelegramConfig{}, false
}

// GetDiscordConfig returns discord config if enabled
func (c *Config) GetDiscordConfig() (DiscordConfig, bool) {
	dc := c.Notifications.Discord
	if dc.Enabled && dc.Token != "" && dc.ChannelID != "" {
		return dc, true
	}
	return DiscordConfig{}, false
}
