package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/sajagshrestha/autofin-BE/internal/common"
)

// Config is the full application configuration, loaded from the config
// file, AUTOFIN_* environment variables, and flags, in ascending priority.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Google   GoogleConfig   `mapstructure:"google"`
	Discord  DiscordConfig  `mapstructure:"discord"`
	Resync   ResyncConfig   `mapstructure:"resync"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LLMConfig holds the extraction model settings.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// GoogleConfig holds the OAuth application credentials and the Pub/Sub
// topic Gmail watches publish to.
type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	PubSubTopic  string `mapstructure:"pubsub_topic"`
}

// DiscordConfig holds the optional notification webhook.
type DiscordConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// ResyncConfig holds the catch-up sweep settings.
type ResyncConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	WatchRenewalPeriod time.Duration `mapstructure:"watch_renewal_period"`
}

// SetDefaults registers defaults on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("database.path", "~/.local/share/autofin/autofin.db")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 600)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("resync.interval", 6*time.Hour)
	v.SetDefault("resync.watch_renewal_period", 12*time.Hour)
}

// Load unmarshals and validates the configuration from viper.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required: %w", common.ErrMissingConfig)
	}
	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		return fmt.Errorf("google.client_id and google.client_secret are required: %w", common.ErrMissingConfig)
	}
	if c.Google.PubSubTopic == "" {
		return fmt.Errorf("google.pubsub_topic is required: %w", common.ErrMissingConfig)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path cannot be empty: %w", common.ErrInvalidConfig)
	}
	return nil
}
