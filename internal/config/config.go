package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0:8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"debug"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	Environment   string `env:"APP_ENV" envDefault:"production"`
	PostgresConfig
	TokenConfig
	HTTPConfig
	LedgerConfig
	StorageConfig
	NotifyConfig
}

func NewConfig() (*Config, error) {
	config := &Config{}

	err := env.Parse(config)
	if err != nil {
		return config, fmt.Errorf("config.NewConfig: %w", err)
	}

	err = config.TokenConfig.check(config.Development())
	if err != nil {
		return config, fmt.Errorf("config.NewConfig: %w", err)
	}
	return config, nil
}

func (c *Config) Development() bool {
	return c.Environment == "development"
}

type PostgresConfig struct {
	Conn            string `env:"POSTGRES_CONN" envDefault:"postgres://test:test@db:5432/test?sslmode=disable"`
	AutoMigrateUp   string `env:"AUTO_MIGRATE_UP" envDefault:"true"`
	AutoMigrateDown string `env:"AUTO_MIGRATE_DOWN" envDefault:"false"`
	// empty means the migrations embedded in the binary
	MigrationsURL string `env:"MIGRATIONS_URL"`
}

func NewPostgresConfig() (*PostgresConfig, error) {
	config := &PostgresConfig{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewPostgresConfig: %w", err)
	}
	return config, err
}

type TokenConfig struct {
	AccessSecret  string        `env:"ACCESS_TOKEN_SECRET"`
	AccessExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshSecret string        `env:"REFRESH_TOKEN_SECRET"`
	RefreshExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"240h"`
	CookieSecure  bool          `env:"COOKIE_SECURE" envDefault:"true"`
}

const (
	devAccessSecret  = "dev-access-secret"
	devRefreshSecret = "dev-refresh-secret"
)

func (c *TokenConfig) check(development bool) error {
	if development {
		if c.AccessSecret == "" {
			c.AccessSecret = devAccessSecret
		}
		if c.RefreshSecret == "" {
			c.RefreshSecret = devRefreshSecret
		}
	}

	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must be set")
	}
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.AccessExpiry <= 0 || c.RefreshExpiry <= 0 {
		return errors.New("token expiries must be positive")
	}
	return nil
}

type HTTPConfig struct {
	CORSOrigin     string        `env:"CORS_ORIGIN" envDefault:"http://localhost:3000"`
	AuthRateLimit  string        `env:"AUTH_RATE_LIMIT" envDefault:"30-M"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	Metrics        bool          `env:"METRICS_ENABLED" envDefault:"true"`
	TrustProxy     bool          `env:"TRUST_PROXY" envDefault:"false"`
}

type LedgerConfig struct {
	// empty RPC URL selects the noop ledger
	RPCURL          string        `env:"LEDGER_RPC_URL"`
	SigningKey      string        `env:"LEDGER_SIGNING_KEY"`
	ContractAddress string        `env:"LEDGER_CONTRACT_ADDRESS"`
	Timeout         time.Duration `env:"LEDGER_TIMEOUT" envDefault:"30s"`
}

type StorageConfig struct {
	Driver     string `env:"STORAGE_DRIVER" envDefault:"local"`
	LocalDir   string `env:"STORAGE_LOCAL_DIR" envDefault:"./data/objects"`
	PublicURL  string `env:"STORAGE_PUBLIC_URL" envDefault:"http://localhost:8080/objects"`
	APIURL     string `env:"STORAGE_API_URL" envDefault:"http://localhost:5001"`
	GatewayURL string `env:"STORAGE_GATEWAY_URL" envDefault:"https://ipfs.io"`
	APIKey     string `env:"STORAGE_API_KEY"`
	APISecret  string `env:"STORAGE_API_SECRET"`
}

type NotifyConfig struct {
	// empty Redis address disables the queue, the worker and the shared rate limit store
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	WebhookURL    string `env:"NOTIFY_WEBHOOK_URL"`
	Concurrency   int    `env:"NOTIFY_CONCURRENCY" envDefault:"2"`
}
