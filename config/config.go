package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service, read from the environment
type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"bellflower"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"8080"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"60"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	ShutdownTimeoutSeconds        int      `env:"HTTP_SERVER_SHUTDOWN_TIMEOUT_SECONDS" env-default:"15"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	DefaultTimezone               string   `env:"DEFAULT_TIMEZONE" env-default:"UTC"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:"localhost"`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"bellflower"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`
	DatabaseMigrateOnStart        bool          `env:"DB_MIGRATE_ON_START" env-default:"true"`

	// Redis (rate limiting and the scheduler lease)
	RedisEnabled      bool          `env:"REDIS_ENABLED" env-default:"true"`
	RedisHost         string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort         int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB           int           `env:"REDIS_DB" env-default:"0"`
	RateLimitEnabled  bool          `env:"RATE_LIMIT_ENABLED" env-default:"true"`
	RateLimitRequests int64         `env:"RATE_LIMIT_REQUESTS" env-default:"300"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" env-default:"1m"`

	// Signal service
	SignalURL                string        `env:"SIGNAL_URL" env-default:"http://localhost:8000"`
	SignalUsername           string        `env:"SIGNAL_USERNAME" env-default:""`
	SignalPassword           string        `env:"SIGNAL_PASSWORD" env-default:""`
	SignalTimeout            time.Duration `env:"SIGNAL_TIMEOUT" env-default:"10s"`
	SignalInsecureSkipVerify bool          `env:"SIGNAL_INSECURE_SKIP_VERIFY" env-default:"true"`
	SignalIdentifiersEnabled bool          `env:"SIGNAL_IDENTIFIERS_ENABLED" env-default:"false"`
	SignalIdentifierSource   string        `env:"SIGNAL_IDENTIFIER_SOURCE" env-default:"bellflower"`
	SignalIdentifierTarget   string        `env:"SIGNAL_IDENTIFIER_TARGET" env-default:"notification"`
	NotifyDeliveryTimeout    time.Duration `env:"NOTIFY_DELIVERY_TIMEOUT" env-default:"10s"`
	NotifyEmailSubject       string        `env:"NOTIFY_EMAIL_SUBJECT" env-default:"Notification"`

	// Auth
	AuthEnabled   bool   `env:"AUTH_ENABLED" env-default:"false"`
	AuthMode      string `env:"AUTH_MODE" env-default:"oidc"`
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	AuthClientID  string `env:"AUTH_CLIENT_ID" env-default:""`
	AuthJWTSecret string `env:"AUTH_JWT_SECRET" env-default:""`

	// Kafka producer
	KafkaEnabled           bool          `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers           []string      `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaNotificationTopic string        `env:"KAFKA_NOTIFICATION_TOPIC" env-default:"bellflower-events"`
	KafkaWriteTimeout      time.Duration `env:"KAFKA_WRITE_TIMEOUT" env-default:"5s"`

	// Tracing
	OTLPEnabled  bool          `env:"OTLP_ENABLED" env-default:"false"`
	OTLPEndpoint string        `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol string        `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure bool          `env:"OTLP_INSECURE" env-default:"true"`
	OTLPTimeout  time.Duration `env:"OTLP_TIMEOUT" env-default:"10s"`

	// Importance scheduler
	SchedulerEnabled      bool          `env:"SCHEDULER_ENABLED" env-default:"true"`
	SchedulerPollInterval time.Duration `env:"SCHEDULER_POLL_INTERVAL" env-default:"60s"`
	SchedulerLockTTL      time.Duration `env:"SCHEDULER_LOCK_TTL" env-default:"30s"`

	// Chat
	ChatSubscriberBuffer int           `env:"CHAT_SUBSCRIBER_BUFFER" env-default:"64"`
	ChatSendWindow       time.Duration `env:"CHAT_SEND_WINDOW" env-default:"1s"`
	ChatIdleTimeout      time.Duration `env:"CHAT_IDLE_TIMEOUT" env-default:"300s"`
	ChatWriteTimeout     time.Duration `env:"CHAT_WRITE_TIMEOUT" env-default:"10s"`
	ChatMaxFrameBytes    int64         `env:"CHAT_MAX_FRAME_BYTES" env-default:"16384"`
}

// Load reads an optional .env file, then the environment, over the env-default values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v, reflect.TypeOf(Config{}))

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "env"
	}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.AllowOrigins = splitList(cfg.AllowOrigins)
	cfg.AllowMethods = splitList(cfg.AllowMethods)
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every env key with its env-default so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("env")
		if key == "" {
			continue
		}
		v.SetDefault(key, field.Tag.Get("env-default"))
	}
}

// splitList flattens entries that still hold comma-separated values and trims blanks.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks settings that have no safe default
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.AuthEnabled {
		switch c.AuthMode {
		case "oidc":
			if c.AuthIssuerURL == "" || c.AuthClientID == "" {
				errs = append(errs, errors.New("AUTH_ISSUER_URL and AUTH_CLIENT_ID are required when AUTH_MODE=oidc"))
			}
		case "jwt":
			if c.AuthJWTSecret == "" {
				errs = append(errs, errors.New("AUTH_JWT_SECRET is required when AUTH_MODE=jwt"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode))
		}
	}
	if c.OTLPProtocol != "grpc" && c.OTLPProtocol != "http" {
		errs = append(errs, fmt.Errorf("unknown OTLP_PROTOCOL %q", c.OTLPProtocol))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED=true"))
	}
	return errors.Join(errs...)
}
