package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Env       string `env:"APP_ENV,default=development"`
	Port      string `env:"PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	StorageDriver    string `env:"STORAGE_DRIVER,default=redis"`
	RedisURL         string `env:"REDIS_URL,default=localhost:6379"`
	RedisPass        string `env:"REDIS_PASSWORD"`
	RedisDB          int    `env:"REDIS_DB,default=0"`
	PostgresDSN      string `env:"POSTGRES_DSN"`
	PostgresPoolSize int    `env:"POSTGRES_POOL_SIZE,default=10"`
	MongoURI         string `env:"MONGO_URI"`
	MongoDatabase    string `env:"MONGO_DATABASE,default=infobot"`

	JWTSecret     string        `env:"JWT_SECRET"`
	TokenTTL      time.Duration `env:"TOKEN_TTL,default=24h"`
	AdapterAPIKey string        `env:"ADAPTER_API_KEY"`
	AdminAPIKey   string        `env:"ADMIN_API_KEY"`

	LookupBaseURL       string        `env:"LOOKUP_BASE_URL"`
	LookupAPIKey        string        `env:"LOOKUP_API_KEY"`
	LookupTimeout       time.Duration `env:"LOOKUP_TIMEOUT,default=30s"`
	LookupRatePerSecond float64       `env:"LOOKUP_RATE_PER_SECOND,default=5"`

	BonusTimezone       string        `env:"BONUS_TIMEZONE,default=Local"`
	ReferralGrace       time.Duration `env:"REFERRAL_GRACE,default=5m"`
	ReferralSweepSpec   string        `env:"REFERRAL_SWEEP_SPEC,default=@every 10m"`
	SettingsRefreshSpec string        `env:"SETTINGS_REFRESH_SPEC,default=@every 1m"`
	AdminTaskTTL        time.Duration `env:"ADMIN_TASK_TTL,default=5m"`
	SearchRatePerMinute int           `env:"SEARCH_RATE_PER_MINUTE,default=30"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves BonusTimezone; "Local" and "UTC" are accepted as well
// as any IANA name.
func (c *Config) Location() (*time.Location, error) {
	switch c.BonusTimezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	return time.LoadLocation(c.BonusTimezone)
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory, DriverRedis:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres driver")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}

	if c.JWTSecret == "" && c.Env != "development" {
		return errors.New("JWT_SECRET is required outside development")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid BONUS_TIMEZONE: %w", err)
	}
	if c.LookupRatePerSecond <= 0 {
		return errors.New("LOOKUP_RATE_PER_SECOND must be positive")
	}
	return nil
}
