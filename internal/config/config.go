package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AWS       AWSConfig       `yaml:"aws"`
	Log       LogConfig       `yaml:"log"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Cooldown  CooldownConfig  `yaml:"cooldown"`
	Templates TemplatesConfig `yaml:"templates"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                   int      `yaml:"port"`
	Host                   string   `yaml:"host"`
	AllowedOrigins         []string `yaml:"allowed_origins"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// DatabaseConfig holds Postgres settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AWSConfig holds the shared AWS client settings.
type AWSConfig struct {
	Region    string `yaml:"region"`
	Profile   string `yaml:"profile"` // Empty string uses default credential chain (IAM role on ECS)
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"` // localstack and friends
}

// GetProfile returns the AWS profile, with environment variable override
func (c AWSConfig) GetProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.Profile
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. Defaults to true.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// CatalogConfig controls rule loading.
type CatalogConfig struct {
	Source                 string `yaml:"source"` // "postgres" or "file"
	FilePath               string `yaml:"file_path"`
	RefreshIntervalSeconds int    `yaml:"refresh_interval_seconds"`
	MaxStalenessSeconds    int    `yaml:"max_staleness_seconds"`
}

// Interval returns the refresh interval as a duration
func (c CatalogConfig) Interval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// MaxStaleness returns how old a snapshot may get before selection refuses it.
func (c CatalogConfig) MaxStaleness() time.Duration {
	return time.Duration(c.MaxStalenessSeconds) * time.Second
}

// CooldownConfig selects the cooldown backend.
type CooldownConfig struct {
	Backend       string `yaml:"backend"`   // "redis", "postgres" or "dynamodb"
	KeyScope      string `yaml:"key_scope"` // "rule" or "rule_agent_type"
	KeyPrefix     string `yaml:"key_prefix"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	RetentionDays int    `yaml:"retention_days"`
}

// Retention is how long a fire record is kept for audit after its window.
func (c CooldownConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// TemplatesConfig controls template lookup and compilation caching.
type TemplatesConfig struct {
	Source          string `yaml:"source"` // "postgres" or "file"
	DefaultLocale   string `yaml:"default_locale"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// CacheTTL returns the compiled template cache TTL.
func (c TemplatesConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// ChannelsConfig holds per-channel adapter settings.
type ChannelsConfig struct {
	SendTimeoutSeconds int         `yaml:"send_timeout_seconds"`
	Email              EmailConfig `yaml:"email"`
	Push               PushConfig  `yaml:"push"`
	SMS                SMSConfig   `yaml:"sms"`
	InApp              InAppConfig `yaml:"inapp"`
}

// Timeout returns the per-send timeout.
func (c ChannelsConfig) Timeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// EmailConfig configures the email adapter.
type EmailConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Provider         string `yaml:"provider"` // "ses" or "resend"
	From             string `yaml:"from"`
	APIKey           string `yaml:"api_key"`
	ConfigurationSet string `yaml:"configuration_set"`
	AddressPath      string `yaml:"address_path"`
}

// PushConfig configures the HTTP push gateway adapter.
type PushConfig struct {
	Enabled     bool   `yaml:"enabled"`
	GatewayURL  string `yaml:"gateway_url"`
	AccessToken string `yaml:"access_token"`
	MaxRetries  int    `yaml:"max_retries"`
	AddressPath string `yaml:"address_path"`
}

// SMSConfig configures the SMS gateway adapter.
type SMSConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BaseURL     string `yaml:"base_url"`
	AccountSID  string `yaml:"account_sid"`
	AuthToken   string `yaml:"auth_token"`
	From        string `yaml:"from"`
	MaxRetries  int    `yaml:"max_retries"`
	AddressPath string `yaml:"address_path"`
}

// InAppConfig configures the Redis-backed inbox.
type InAppConfig struct {
	Enabled     bool   `yaml:"enabled"`
	KeyPrefix   string `yaml:"key_prefix"`
	MaxItems    int    `yaml:"max_items"`
	Channel     string `yaml:"pubsub_channel"`
	AddressPath string `yaml:"address_path"`
}

// TrackingConfig configures delivery callbacks.
type TrackingConfig struct {
	BaseURL           string `yaml:"base_url"`
	SigningKey        string `yaml:"signing_key"`
	SQSQueueURL       string `yaml:"sqs_queue_url"`
	SESEventsQueueURL string `yaml:"ses_events_queue_url"`
	PollWaitSeconds   int    `yaml:"poll_wait_seconds"`
	MaxCASRetries     int    `yaml:"max_cas_retries"`
}

// IngestConfig holds event source settings.
type IngestConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig configures the lifecycle event consumer.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// AnalyticsConfig configures the daily S3 export.
type AnalyticsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Prefix   string `yaml:"s3_prefix"`
	ExportCron string `yaml:"export_cron"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 15
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-west-2"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Catalog.Source == "" {
		cfg.Catalog.Source = "postgres"
	}
	if cfg.Catalog.RefreshIntervalSeconds == 0 {
		cfg.Catalog.RefreshIntervalSeconds = 60
	}
	if cfg.Catalog.MaxStalenessSeconds == 0 {
		cfg.Catalog.MaxStalenessSeconds = 15 * 60
	}
	if cfg.Cooldown.Backend == "" {
		cfg.Cooldown.Backend = "redis"
	}
	if cfg.Cooldown.KeyScope == "" {
		cfg.Cooldown.KeyScope = "rule"
	}
	if cfg.Cooldown.KeyPrefix == "" {
		cfg.Cooldown.KeyPrefix = "cooldown"
	}
	if cfg.Cooldown.DynamoDBTable == "" {
		cfg.Cooldown.DynamoDBTable = "agent-cooldowns"
	}
	if cfg.Cooldown.RetentionDays == 0 {
		cfg.Cooldown.RetentionDays = 30
	}
	if cfg.Templates.Source == "" {
		cfg.Templates.Source = cfg.Catalog.Source
	}
	if cfg.Templates.DefaultLocale == "" {
		cfg.Templates.DefaultLocale = "en"
	}
	if cfg.Templates.CacheTTLSeconds == 0 {
		cfg.Templates.CacheTTLSeconds = 300
	}
	if cfg.Channels.SendTimeoutSeconds == 0 {
		cfg.Channels.SendTimeoutSeconds = 10
	}
	if cfg.Channels.Email.Provider == "" {
		cfg.Channels.Email.Provider = "ses"
	}
	if cfg.Channels.Email.AddressPath == "" {
		cfg.Channels.Email.AddressPath = "user.email"
	}
	if cfg.Channels.Push.AddressPath == "" {
		cfg.Channels.Push.AddressPath = "device.pushToken"
	}
	if cfg.Channels.Push.MaxRetries == 0 {
		cfg.Channels.Push.MaxRetries = 2
	}
	if cfg.Channels.SMS.MaxRetries == 0 {
		cfg.Channels.SMS.MaxRetries = 2
	}
	if cfg.Channels.SMS.AddressPath == "" {
		cfg.Channels.SMS.AddressPath = "user.phone"
	}
	if cfg.Channels.InApp.KeyPrefix == "" {
		cfg.Channels.InApp.KeyPrefix = "inbox"
	}
	if cfg.Channels.InApp.MaxItems == 0 {
		cfg.Channels.InApp.MaxItems = 100
	}
	if cfg.Channels.InApp.Channel == "" {
		cfg.Channels.InApp.Channel = "inbox-events"
	}
	if cfg.Tracking.PollWaitSeconds == 0 {
		cfg.Tracking.PollWaitSeconds = 20
	}
	if cfg.Tracking.MaxCASRetries == 0 {
		cfg.Tracking.MaxCASRetries = 3
	}
	if cfg.Ingest.Kafka.GroupID == "" {
		cfg.Ingest.Kafka.GroupID = "notification-agent"
	}
	if cfg.Analytics.S3Prefix == "" {
		cfg.Analytics.S3Prefix = "analytics"
	}
	if cfg.Analytics.ExportCron == "" {
		cfg.Analytics.ExportCron = "15 0 * * *"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerations and the export schedule.
func (c *Config) Validate() error {
	switch c.Catalog.Source {
	case "postgres", "file":
	default:
		return fmt.Errorf("config: unknown catalog.source %q", c.Catalog.Source)
	}
	if c.Catalog.Source == "file" && c.Catalog.FilePath == "" {
		return fmt.Errorf("config: catalog.file_path is required for the file source")
	}
	switch c.Cooldown.Backend {
	case "redis", "postgres", "dynamodb":
	default:
		return fmt.Errorf("config: unknown cooldown.backend %q", c.Cooldown.Backend)
	}
	switch c.Cooldown.KeyScope {
	case "rule", "rule_agent_type":
	default:
		return fmt.Errorf("config: unknown cooldown.key_scope %q", c.Cooldown.KeyScope)
	}
	switch c.Channels.Email.Provider {
	case "ses", "resend":
	default:
		return fmt.Errorf("config: unknown channels.email.provider %q", c.Channels.Email.Provider)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(c.Analytics.ExportCron); err != nil {
		return fmt.Errorf("config: analytics.export_cron: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.AWS.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.AWS.SecretKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		cfg.Channels.Email.APIKey = v
	}
	if v := os.Getenv("PUSH_ACCESS_TOKEN"); v != "" {
		cfg.Channels.Push.AccessToken = v
	}
	if v := os.Getenv("SMS_ACCOUNT_SID"); v != "" {
		cfg.Channels.SMS.AccountSID = v
	}
	if v := os.Getenv("SMS_AUTH_TOKEN"); v != "" {
		cfg.Channels.SMS.AuthToken = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Ingest.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TRACKING_SQS_QUEUE_URL"); v != "" {
		cfg.Tracking.SQSQueueURL = v
	}
	if v := os.Getenv("TRACKING_SIGNING_KEY"); v != "" {
		cfg.Tracking.SigningKey = v
	}
	if v := os.Getenv("ANALYTICS_S3_BUCKET"); v != "" {
		cfg.Analytics.S3Bucket = v
	}

	return cfg, cfg.Validate()
}
