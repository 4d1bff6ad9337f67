package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Workers  WorkersConfig  `mapstructure:"workers"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	BusyTimeout    time.Duration `mapstructure:"busy_timeout"`
}

type JWTConfig struct {
	Secret          string        `mapstructure:"secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

// BillingConfig tunes subscription evaluation and metering.
type BillingConfig struct {
	TrialDays        int           `mapstructure:"trial_days"`
	TrialPlan        string        `mapstructure:"trial_plan"`
	Currency         string        `mapstructure:"currency"`
	StatusCacheTTL   time.Duration `mapstructure:"status_cache_ttl"`
	StatusCacheSize  int           `mapstructure:"status_cache_size"`
	GatewayTimeout   time.Duration `mapstructure:"gateway_timeout"`
	WebhookDedupTTL  time.Duration `mapstructure:"webhook_dedup_ttl"`
	WebhookDedupSize int           `mapstructure:"webhook_dedup_size"`
}

type StripeConfig struct {
	APIKey        string                 `mapstructure:"api_key"`
	WebhookSecret string                 `mapstructure:"webhook_secret"`
	Prices        map[string]PriceConfig `mapstructure:"prices"`
}

// PriceConfig holds the gateway price identifiers of one catalog plan.
type PriceConfig struct {
	Monthly string `mapstructure:"monthly"`
	Yearly  string `mapstructure:"yearly"`
}

type WorkersConfig struct {
	ExpirySchedule     string `mapstructure:"expiry_schedule"`
	UsageResetSchedule string `mapstructure:"usage_reset_schedule"`
}

// Default returns the configuration used when a key is absent from the file
// and the environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			URL:            "file:./data/praxis.db",
			MaxConnections: 10,
			BusyTimeout:    5 * time.Second,
		},
		JWT: JWTConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Billing: BillingConfig{
			TrialDays:        14,
			TrialPlan:        "basic",
			Currency:         "usd",
			StatusCacheTTL:   30 * time.Second,
			StatusCacheSize:  10000,
			GatewayTimeout:   10 * time.Second,
			WebhookDedupTTL:  24 * time.Hour,
			WebhookDedupSize: 50000,
		},
		Workers: WorkersConfig{
			ExpirySchedule:     "*/15 * * * *",
			UsageResetSchedule: "5 0 1 * *",
		},
	}
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)
	v.SetDefault("database.busy_timeout", d.Database.BusyTimeout)
	v.SetDefault("jwt.access_token_ttl", d.JWT.AccessTokenTTL)
	v.SetDefault("jwt.refresh_token_ttl", d.JWT.RefreshTokenTTL)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("billing.trial_days", d.Billing.TrialDays)
	v.SetDefault("billing.trial_plan", d.Billing.TrialPlan)
	v.SetDefault("billing.currency", d.Billing.Currency)
	v.SetDefault("billing.status_cache_ttl", d.Billing.StatusCacheTTL)
	v.SetDefault("billing.status_cache_size", d.Billing.StatusCacheSize)
	v.SetDefault("billing.gateway_timeout", d.Billing.GatewayTimeout)
	v.SetDefault("billing.webhook_dedup_ttl", d.Billing.WebhookDedupTTL)
	v.SetDefault("billing.webhook_dedup_size", d.Billing.WebhookDedupSize)
	v.SetDefault("workers.expiry_schedule", d.Workers.ExpirySchedule)
	v.SetDefault("workers.usage_reset_schedule", d.Workers.UsageResetSchedule)
}

// Validate rejects settings the billing engine cannot run with.
func (c *Config) Validate() error {
	if c.Billing.TrialDays <= 0 {
		return errors.New("billing.trial_days must be positive")
	}
	if c.Billing.GatewayTimeout <= 0 {
		return errors.New("billing.gateway_timeout must be positive")
	}
	if c.Billing.StatusCacheSize <= 0 {
		return errors.New("billing.status_cache_size must be positive")
	}
	if c.Billing.WebhookDedupSize <= 0 {
		return errors.New("billing.webhook_dedup_size must be positive")
	}
	return nil
}
