package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the runtime configuration of the procura service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	DynamoDB    DynamoDBConfig    `mapstructure:"dynamodb"`
	Effects     EffectsConfig     `mapstructure:"effects"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	OTel        OTelConfig        `mapstructure:"otel"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Backend names a document store implementation.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendDynamoDB Backend = "dynamodb"
	BackendMemory   Backend = "memory"
)

type DatabaseConfig struct {
	Backend Backend `mapstructure:"backend"`
	// Path is the SQLite file. The effect queue lives there whatever the backend.
	Path string `mapstructure:"path"`
}

type DynamoDBConfig struct {
	Table           string `mapstructure:"table"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	CreateTable     bool   `mapstructure:"create_table"`
}

// EffectsMode selects how side effects of persisted transitions run.
type EffectsMode string

const (
	EffectsQueue  EffectsMode = "queue"
	EffectsInline EffectsMode = "inline"
)

type EffectsConfig struct {
	Mode        EffectsMode `mapstructure:"mode"`
	MaxAttempts int         `mapstructure:"max_attempts"`
}

type IdempotencyConfig struct {
	PendingTTL time.Duration `mapstructure:"pending_ttl"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type OTelConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`
	Exporter       string `mapstructure:"exporter"`
}

// Insecure reports whether OTLP should use plain HTTP.
func (c OTelConfig) Insecure() bool {
	return c.Environment == "development"
}

// Load reads the YAML file named by PROCURA_CONFIG, if any, then applies
// environment overrides on top of the defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path := os.Getenv("PROCURA_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.backend", string(BackendSQLite))
	v.SetDefault("database.path", "procura.db")

	v.SetDefault("dynamodb.table", "procura")
	v.SetDefault("dynamodb.region", "us-east-1")
	v.SetDefault("dynamodb.create_table", false)

	v.SetDefault("effects.mode", string(EffectsQueue))
	v.SetDefault("effects.max_attempts", 5)

	v.SetDefault("idempotency.pending_ttl", 2*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("otel.service_name", "procura")
	v.SetDefault("otel.service_version", "0.1.0")
	v.SetDefault("otel.environment", "development")
	v.SetDefault("otel.exporter", "stdout")
}

var envBindings = map[string]string{
	"server.port":                "PORT",
	"database.backend":           "DATABASE_BACKEND",
	"database.path":              "DATABASE_PATH",
	"dynamodb.table":             "DYNAMODB_TABLE",
	"dynamodb.region":            "AWS_REGION",
	"dynamodb.endpoint":          "DYNAMODB_ENDPOINT",
	"dynamodb.access_key_id":     "AWS_ACCESS_KEY_ID",
	"dynamodb.secret_access_key": "AWS_SECRET_ACCESS_KEY",
	"dynamodb.create_table":      "DYNAMODB_CREATE_TABLE",
	"effects.mode":               "EFFECTS_MODE",
	"effects.max_attempts":       "EFFECTS_MAX_ATTEMPTS",
	"idempotency.pending_ttl":    "IDEMPOTENCY_PENDING_TTL",
	"logger.level":               "LOG_LEVEL",
	"logger.format":              "LOG_FORMAT",
	"otel.service_name":          "OTEL_SERVICE_NAME",
	"otel.service_version":       "OTEL_SERVICE_VERSION",
	"otel.environment":           "OTEL_ENVIRONMENT",
	"otel.exporter":              "OTEL_EXPORTER",
}

func bindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("binding %s to %s: %w", key, env, err)
		}
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Database.Backend {
	case BackendSQLite, BackendMemory:
	case BackendDynamoDB:
		if c.DynamoDB.Table == "" {
			errs = append(errs, errors.New("dynamodb.table is required for the dynamodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database.backend %q", c.Database.Backend))
	}
	if c.Database.Path == "" && (c.Database.Backend == BackendSQLite || c.Effects.Mode == EffectsQueue) {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch c.Effects.Mode {
	case EffectsQueue, EffectsInline:
	default:
		errs = append(errs, fmt.Errorf("unknown effects.mode %q", c.Effects.Mode))
	}
	if c.Effects.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("effects.max_attempts must be at least 1, got %d", c.Effects.MaxAttempts))
	}
	if c.Idempotency.PendingTTL <= 0 {
		errs = append(errs, fmt.Errorf("idempotency.pending_ttl must be positive, got %s", c.Idempotency.PendingTTL))
	}
	return errors.Join(errs...)
}
