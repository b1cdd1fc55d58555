package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Telegram  TelegramSettings  `mapstructure:"telegram"`
	Auth      AuthSettings      `mapstructure:"auth"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	DB            int    `mapstructure:"db"`
	Password      string `mapstructure:"password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	RequestPrefix string `mapstructure:"request_prefix"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// TelegramSettings configures the bot transport.
type TelegramSettings struct {
	BotToken string `mapstructure:"bot_token"`
	// WebhookSecret is compared against X-Telegram-Bot-Api-Secret-Token
	// on incoming webhook calls; empty disables the check.
	WebhookSecret string `mapstructure:"webhook_secret"`
	// WebhookURL, when set, is registered with the Bot API on startup.
	WebhookURL string        `mapstructure:"webhook_url"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// AuthSettings bounds the approval request lifecycle and guards the
// operator-facing API.
type AuthSettings struct {
	APIKey             string        `mapstructure:"api_key"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	MaxPendingRequests int           `mapstructure:"max_pending_requests"`
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
}

type TelemetrySettings struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("APPROVAL")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.request_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"telegram.bot_token",
		"telegram.webhook_secret",
		"telegram.webhook_url",
		"telegram.api_timeout",
		"auth.api_key",
		"auth.request_timeout",
		"auth.max_pending_requests",
		"auth.sweep_interval",
		"telemetry.metrics_enabled",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "approval-gate")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "approval")
	v.SetDefault("postgres.password", "approval_password")
	v.SetDefault("postgres.database", "approval")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.request_prefix", "auth_request")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "approval")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.api_timeout", "10s")

	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.request_timeout", "300s")
	v.SetDefault("auth.max_pending_requests", 5)
	v.SetDefault("auth.sweep_interval", "1m")

	v.SetDefault("telemetry.metrics_enabled", true)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "APPROVAL_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
