package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrWebhookURLNotSet means no Slack webhook endpoint was configured. It is
// checked before any AWS call so misconfiguration fails fast.
var ErrWebhookURLNotSet = errors.New("slack webhook URL not set (SLACK_WEBHOOK_URL or slack.webhook_url)")

// Config holds all runtime settings for ec2notify.
type Config struct {
	Slack    SlackConfig    `mapstructure:"slack"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
}

// SlackConfig configures message delivery and layout.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Mode       string `mapstructure:"mode"` // detailed or compact
}

// ResolverConfig configures the CloudTrail actor scan.
type ResolverConfig struct {
	LookbackDays int `mapstructure:"lookback_days"`
}

// ServerConfig configures the HTTP intake (serve mode only).
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from an optional YAML file, the environment
// (EC2NOTIFY_ prefix), and a .env file if present. The bare
// SLACK_WEBHOOK_URL variable is honored for compatibility with the Lambda
// deployment.
func Load(configFile string) (*Config, error) {
	// Best effort; absence of a .env file is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ec2notify")
	}

	v.SetEnvPrefix("EC2NOTIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if url := os.Getenv("SLACK_WEBHOOK_URL"); url != "" {
		v.Set("slack.webhook_url", url)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Registering the key lets EC2NOTIFY_SLACK_WEBHOOK_URL flow through
	// Unmarshal even without a config file.
	v.SetDefault("slack.webhook_url", "")
	v.SetDefault("slack.mode", "detailed")
	v.SetDefault("resolver.lookback_days", 7)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
}

// Validate checks the settings every entry mode needs before doing work.
func (c *Config) Validate() error {
	if c.Slack.WebhookURL == "" {
		return ErrWebhookURLNotSet
	}
	if c.Slack.Mode != "detailed" && c.Slack.Mode != "compact" {
		return fmt.Errorf("invalid slack.mode %q: must be detailed or compact", c.Slack.Mode)
	}
	if c.Resolver.LookbackDays <= 0 {
		return fmt.Errorf("resolver.lookback_days must be positive, got %d", c.Resolver.LookbackDays)
	}
	return nil
}
