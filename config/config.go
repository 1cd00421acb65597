package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Slack     SlackConfig
	OpenAI    OpenAIConfig
	Database  DatabaseConfig
	Session   SessionConfig
	Scraper   ScraperConfig
	Scheduler SchedulerConfig
	Bridge    BridgeConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// SlackConfig holds Slack app credentials and routing
type SlackConfig struct {
	BotToken        string `mapstructure:"bot_token"`
	SigningSecret   string `mapstructure:"signing_secret"`
	TargetChannelID string `mapstructure:"target_channel_id"`
}

// OpenAIConfig holds model API configuration
type OpenAIConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	AgentModel  string `mapstructure:"agent_model"`
	SearchModel string `mapstructure:"search_model"`
}

// DatabaseConfig holds the sqlite location
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SessionConfig holds conversation state storage configuration
type SessionConfig struct {
	Type          string `mapstructure:"type"` // "memory" or "redis"
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// ScraperConfig holds product page scraping configuration
type ScraperConfig struct {
	RegionZip string `mapstructure:"region_zip"`
}

// SchedulerConfig holds the weekly reminder schedule
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Spec     string `mapstructure:"spec"`
	Timezone string `mapstructure:"timezone"`
}

// BridgeConfig holds order automation hand-off configuration
type BridgeConfig struct {
	ExportDir      string `mapstructure:"export_dir"`
	AutomationPath string `mapstructure:"automation_path"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env for local development before viper reads the environment
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/shopagent/")

	// Environment variable settings
	v.SetEnvPrefix("SHOPAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")

	// Slack defaults
	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.signing_secret", "")
	v.SetDefault("slack.target_channel_id", "")

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.agent_model", "gpt-4-turbo")
	v.SetDefault("openai.search_model", "gpt-4o-search-preview")

	// Database defaults
	v.SetDefault("database.path", "./shopping_list.db")

	// Session defaults
	v.SetDefault("session.type", "memory")
	v.SetDefault("session.redis_addr", "")
	v.SetDefault("session.redis_password", "")
	v.SetDefault("session.redis_db", 0)

	// Scraper defaults
	v.SetDefault("scraper.region_zip", "10001")

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.spec", "0 17 * * 5")
	v.SetDefault("scheduler.timezone", "UTC")

	// Bridge defaults
	v.SetDefault("bridge.export_dir", "./exports")
	v.SetDefault("bridge.automation_path", "")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 60)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Slack.BotToken == "" {
		return fmt.Errorf("Slack bot token is required (set SHOPAGENT_SLACK_BOT_TOKEN)")
	}
	if config.Slack.SigningSecret == "" {
		return fmt.Errorf("Slack signing secret is required (set SHOPAGENT_SLACK_SIGNING_SECRET)")
	}
	if config.OpenAI.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required (set SHOPAGENT_OPENAI_API_KEY)")
	}

	if config.Session.Type != "memory" && config.Session.Type != "redis" {
		return fmt.Errorf("session type must be 'memory' or 'redis', got: %s", config.Session.Type)
	}
	if config.Session.Type == "redis" && config.Session.RedisAddr == "" {
		return fmt.Errorf("Redis address is required when session type is 'redis'")
	}

	return nil
}

// loadEnvFile reads KEY=VALUE pairs from a local .env file into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func loadEnvFile() error {
	f, err := os.Open(".env")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return scanner.Err()
}
