// Package config loads process configuration from defaults, an optional
// config file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	StoreDriver      string `mapstructure:"STORE_DRIVER"`
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     string `mapstructure:"POSTGRES_PORT"`
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`
	PostgresSSLMode  string `mapstructure:"POSTGRES_SSLMODE"`

	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	IdempotencyTTL time.Duration `mapstructure:"IDEMPOTENCY_TTL"`

	PaymentGatewayAddr string        `mapstructure:"PAYMENT_GATEWAY_ADDR"`
	PaymentTimeout     time.Duration `mapstructure:"PAYMENT_TIMEOUT"`

	CheckoutLogPath string `mapstructure:"CHECKOUT_LOG_PATH"`
	KafkaBrokers    string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic      string `mapstructure:"KAFKA_TOPIC"`
	PhotoDir        string `mapstructure:"PHOTO_DIR"`
	SlugMaxAttempts int    `mapstructure:"SLUG_MAX_ATTEMPTS"`

	LogLevel        string `mapstructure:"LOG_LEVEL"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	OTLPEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	PaymentSandboxAddr        string `mapstructure:"PAYMENT_SANDBOX_ADDR"`
	PaymentSandboxDeclineAbove string `mapstructure:"PAYMENT_SANDBOX_DECLINE_ABOVE"`

	// BootstrapAdminID, when set, is registered as an admin at startup.
	BootstrapAdminID string `mapstructure:"BOOTSTRAP_ADMIN_ID"`
}

var defaults = map[string]any{
	"HTTP_ADDR":                     ":8080",
	"STORE_DRIVER":                  StorePostgres,
	"DATABASE_URL":                  "",
	"POSTGRES_HOST":                 "localhost",
	"POSTGRES_PORT":                 "5432",
	"POSTGRES_USER":                 "storefront",
	"POSTGRES_PASSWORD":             "",
	"POSTGRES_DB":                   "storefront",
	"POSTGRES_SSLMODE":              "disable",
	"REDIS_ADDR":                    "",
	"IDEMPOTENCY_TTL":               "24h",
	"PAYMENT_GATEWAY_ADDR":          "localhost:9091",
	"PAYMENT_TIMEOUT":               "10s",
	"CHECKOUT_LOG_PATH":             "./data/checkout.db",
	"KAFKA_BROKERS":                 "",
	"KAFKA_TOPIC":                   "storefront.orders",
	"PHOTO_DIR":                     "./data/photos",
	"SLUG_MAX_ATTEMPTS":             1000,
	"LOG_LEVEL":                     "info",
	"OTEL_SERVICE_NAME":             "storefront-api",
	"OTEL_EXPORTER_OTLP_ENDPOINT":   "",
	"PAYMENT_SANDBOX_ADDR":          ":9091",
	"PAYMENT_SANDBOX_DECLINE_ABOVE": "500.00",
	"BOOTSTRAP_ADMIN_ID":            "",
}

// Load reads configuration. configFile may be empty; when set it must exist.
// Environment variables always win over the file.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.PaymentTimeout <= 0 {
		errs = append(errs, errors.New("PAYMENT_TIMEOUT must be positive"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("IDEMPOTENCY_TTL must be positive"))
	}
	if c.SlugMaxAttempts <= 0 {
		errs = append(errs, errors.New("SLUG_MAX_ATTEMPTS must be positive"))
	}
	if c.StoreDriver != StoreMemory && c.StoreDriver != StorePostgres {
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q", StoreMemory, StorePostgres))
	}
	if _, err := c.DeclineAbove(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// PostgresDSN prefers DATABASE_URL and otherwise assembles a key/value DSN.
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSLMode)
}

// Brokers splits KAFKA_BROKERS on commas. Empty means event publishing is off.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (c *Config) DeclineAbove() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.PaymentSandboxDeclineAbove)
	if err != nil {
		return decimal.Zero, fmt.Errorf("PAYMENT_SANDBOX_DECLINE_ABOVE: %w", err)
	}
	return d, nil
}
