// Package config loads and validates bot config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"trial-access-bot/internal/db"
)

// Preference locales offered by the selection prompt. Kept here so config can
// validate DEFAULT_LOCALE without importing the i18n catalogs.
var supportedLocales = []string{"pt", "en"}

// Config holds application configuration loaded from the environment.
type Config struct {
	// BotToken is the Telegram Bot API token. Mandatory.
	BotToken string `mapstructure:"BOT_TOKEN"`
	// ChatID is the protected destination (group/channel) invite links are created for.
	ChatID string `mapstructure:"CHAT_ID"`
	// ExpirationMinutes is how long an issued invite grants access (default 35).
	ExpirationMinutes int `mapstructure:"EXPIRATION_MINUTES"`
	// SweepIntervalSeconds is the expiry sweep period (default 60).
	SweepIntervalSeconds int `mapstructure:"SWEEP_INTERVAL_SECONDS"`
	// SweepConcurrency bounds how many expired principals one sweep processes in parallel.
	SweepConcurrency int `mapstructure:"SWEEP_CONCURRENCY"`
	// RemarkingIntervalSeconds is the promotional broadcast period (default 1200).
	RemarkingIntervalSeconds int `mapstructure:"REMARKING_INTERVAL_SECONDS"`
	// RemarkingChatIDs is a comma-separated list of broadcast destinations.
	RemarkingChatIDs string `mapstructure:"REMARKING_CHAT_IDS"`
	// TestBotUsername is the bot the broadcast button points at (t.me/<name>).
	TestBotUsername string `mapstructure:"TEST_BOT_USERNAME"`
	// DefaultLocale is the preference assumed for principals that never picked one.
	DefaultLocale string `mapstructure:"DEFAULT_LOCALE"`

	// DatabaseURL is the Postgres DSN. When empty the bot falls back to SQLite at DatabasePath.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DatabasePath is the SQLite file used when DatabaseURL is empty.
	DatabasePath string `mapstructure:"DATABASE_PATH"`
	// AutoMigrate runs embedded migrations when the bot starts.
	AutoMigrate bool `mapstructure:"AUTO_MIGRATE"`

	// TelegramAPIURL is the Bot API base URL; overridable for tests and local proxies.
	TelegramAPIURL string `mapstructure:"TELEGRAM_API_URL"`
	// TelegramTimeout is the per-call timeout (e.g. "10s").
	TelegramTimeout string `mapstructure:"TELEGRAM_TIMEOUT"`
	// TelegramPollTimeout is the getUpdates long-poll timeout (e.g. "30s").
	TelegramPollTimeout string `mapstructure:"TELEGRAM_POLL_TIMEOUT"`
	// TelegramRatePerSecond caps outbound Bot API calls.
	TelegramRatePerSecond float64 `mapstructure:"TELEGRAM_RATE_PER_SECOND"`

	// AccessPolicyFile optionally points at a Rego module replacing the built-in access policy.
	AccessPolicyFile string `mapstructure:"ACCESS_POLICY_FILE"`
	// HealthAddr is the gRPC health endpoint address; empty disables it.
	HealthAddr string `mapstructure:"HEALTH_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty means no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext gRPC to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Lifecycle event stream (optional). When brokers are set, lifecycle events are also written to Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// LifecycleKafkaTopic is the topic lifecycle events are written to.
	LifecycleKafkaTopic string `mapstructure:"LIFECYCLE_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group for cmd/worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is where cmd/worker pushes lifecycle events.
	LokiURL string `mapstructure:"LOKI_URL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("BOT_TOKEN", "")
	v.SetDefault("CHAT_ID", "")
	v.SetDefault("EXPIRATION_MINUTES", 35)
	v.SetDefault("SWEEP_INTERVAL_SECONDS", 60)
	v.SetDefault("SWEEP_CONCURRENCY", 4)
	v.SetDefault("REMARKING_INTERVAL_SECONDS", 1200)
	v.SetDefault("REMARKING_CHAT_IDS", "")
	v.SetDefault("TEST_BOT_USERNAME", "")
	v.SetDefault("DEFAULT_LOCALE", "pt")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATABASE_PATH", "database.db")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("TELEGRAM_API_URL", "https://api.telegram.org")
	v.SetDefault("TELEGRAM_TIMEOUT", "10s")
	v.SetDefault("TELEGRAM_POLL_TIMEOUT", "30s")
	v.SetDefault("TELEGRAM_RATE_PER_SECOND", 25)
	v.SetDefault("ACCESS_POLICY_FILE", "")
	v.SetDefault("HEALTH_ADDR", ":8081")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("LIFECYCLE_KAFKA_TOPIC", "trial-lifecycle")
	v.SetDefault("KAFKA_GROUP_ID", "trial-lifecycle-worker")
	v.SetDefault("LOKI_URL", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("config: BOT_TOKEN must be set")
	}
	if cfg.ExpirationMinutes == 0 {
		cfg.ExpirationMinutes = 35
	}
	if cfg.ExpirationMinutes < 0 {
		return nil, errors.New("config: EXPIRATION_MINUTES must be positive")
	}
	if cfg.SweepIntervalSeconds == 0 {
		cfg.SweepIntervalSeconds = 60
	}
	if cfg.SweepIntervalSeconds < 0 {
		return nil, errors.New("config: SWEEP_INTERVAL_SECONDS must be positive")
	}
	if cfg.RemarkingIntervalSeconds == 0 {
		cfg.RemarkingIntervalSeconds = 1200
	}
	if cfg.RemarkingIntervalSeconds < 0 {
		return nil, errors.New("config: REMARKING_INTERVAL_SECONDS must be positive")
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = 4
	}
	cfg.DefaultLocale = strings.ToLower(strings.TrimSpace(cfg.DefaultLocale))
	if !isSupportedLocale(cfg.DefaultLocale) {
		return nil, fmt.Errorf("config: DEFAULT_LOCALE %q is not supported", cfg.DefaultLocale)
	}

	return &cfg, nil
}

// CredentialTTL is how long an issued invite grants access.
func (c *Config) CredentialTTL() time.Duration {
	return time.Duration(c.ExpirationMinutes) * time.Minute
}

// SweepInterval is the expiry sweep period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// RemarkingInterval is the broadcast period.
func (c *Config) RemarkingInterval() time.Duration {
	return time.Duration(c.RemarkingIntervalSeconds) * time.Second
}

// TransportTimeout parses TelegramTimeout. Returns 10s if unset or invalid.
func (c *Config) TransportTimeout() time.Duration {
	d, err := time.ParseDuration(c.TelegramTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// PollTimeout parses TelegramPollTimeout. Returns 30s if unset or invalid.
func (c *Config) PollTimeout() time.Duration {
	d, err := time.ParseDuration(c.TelegramPollTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// RemarkingChatIDList returns the broadcast destinations from the comma-separated config.
func (c *Config) RemarkingChatIDList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.RemarkingChatIDs)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means the lifecycle event stream is disabled.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// UsesPostgres reports whether DATABASE_URL selects Postgres over SQLite.
func (c *Config) UsesPostgres() bool {
	return c != nil && strings.TrimSpace(c.DatabaseURL) != ""
}

// Database returns the dialect and DSN selected by the config: Postgres when DATABASE_URL
// is set, otherwise the SQLite file at DATABASE_PATH.
func (c *Config) Database() (db.Dialect, string) {
	if c.UsesPostgres() {
		return db.Postgres, strings.TrimSpace(c.DatabaseURL)
	}
	return db.SQLite, c.DatabasePath
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isSupportedLocale(locale string) bool {
	for _, l := range supportedLocales {
		if l == locale {
			return true
		}
	}
	return false
}
