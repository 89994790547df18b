package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Price    PriceConfig
	Refresh  RefreshConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

// RedisConfig holds the refresh queue's Redis settings. An empty Addr selects
// the in-process queue.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	QueueKey  string
	StatusTTL time.Duration
}

// KafkaConfig holds Kafka configuration. No brokers disables event publishing.
type KafkaConfig struct {
	Brokers    []string
	Topic      string
	TradeTopic string
	GroupID    string
}

// PriceConfig holds market price source configuration
type PriceConfig struct {
	AlphaVantageURL string
	AlphaVantageKey string
	Exchange        string
	QuoteCurrency   string
	CryptoSymbols   []string
	CryptoProvider  string // "alphavantage" or "binance"
	BinanceURL      string
	BinanceQuote    string
	Timeout         time.Duration
}

// RefreshConfig tunes the asynchronous refresh worker
type RefreshConfig struct {
	Workers     int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables, after loading an
// optional .env file
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []string
	intVar := func(key string, def int) int {
		v, err := getEnvAsInt(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	durVar := func(key string, def time.Duration) time.Duration {
		v, err := getEnvAsDuration(key, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: durVar("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "portfolio"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    intVar("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    intVar("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: durVar("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			MigrationsPath:  getEnv("DB_MIGRATIONS_PATH", "db/migrations"),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        intVar("REDIS_DB", 0),
			QueueKey:  getEnv("REDIS_QUEUE_KEY", "ledger:refresh:queue"),
			StatusTTL: durVar("REDIS_STATUS_TTL", 24*time.Hour),
		},
		Kafka: KafkaConfig{
			Brokers:    getEnvAsList("KAFKA_BROKERS", nil),
			Topic:      getEnv("KAFKA_TOPIC", "ledger-events"),
			TradeTopic: getEnv("KAFKA_TRADE_TOPIC", "trade-requests"),
			GroupID:    getEnv("KAFKA_GROUP_ID", "portfolio-ledger"),
		},
		Price: PriceConfig{
			AlphaVantageURL: getEnv("ALPHA_VANTAGE_URL", "https://www.alphavantage.co/query"),
			AlphaVantageKey: getEnv("ALPHA_VANTAGE_KEY", ""),
			Exchange:        getEnv("PRICE_EXCHANGE", "BSE"),
			QuoteCurrency:   getEnv("PRICE_QUOTE_CURRENCY", "INR"),
			CryptoSymbols:   getEnvAsList("PRICE_CRYPTO_SYMBOLS", []string{"BTC", "ETH", "LTC", "XRP", "DOGE"}),
			CryptoProvider:  strings.ToLower(getEnv("PRICE_CRYPTO_PROVIDER", "alphavantage")),
			BinanceURL:      getEnv("BINANCE_URL", ""),
			BinanceQuote:    getEnv("BINANCE_QUOTE_ASSET", "USDT"),
			Timeout:         durVar("PRICE_TIMEOUT", 10*time.Second),
		},
		Refresh: RefreshConfig{
			Workers:     intVar("REFRESH_WORKERS", 4),
			MaxAttempts: intVar("REFRESH_MAX_ATTEMPTS", 3),
			BaseDelay:   durVar("REFRESH_BASE_DELAY", 10*time.Second),
			MaxDelay:    durVar("REFRESH_MAX_DELAY", 10*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func (c *Config) validate() []string {
	var errs []string
	if c.Price.Timeout <= 0 {
		errs = append(errs, "PRICE_TIMEOUT must be positive")
	}
	if c.Price.CryptoProvider != "alphavantage" && c.Price.CryptoProvider != "binance" {
		errs = append(errs, fmt.Sprintf("PRICE_CRYPTO_PROVIDER must be alphavantage or binance, got %q", c.Price.CryptoProvider))
	}
	if c.Refresh.MaxAttempts < 1 {
		errs = append(errs, "REFRESH_MAX_ATTEMPTS must be at least 1")
	}
	if c.Refresh.Workers < 1 {
		errs = append(errs, "REFRESH_WORKERS must be at least 1")
	}
	if c.Refresh.BaseDelay <= 0 {
		errs = append(errs, "REFRESH_BASE_DELAY must be positive")
	}
	if c.Refresh.MaxDelay < c.Refresh.BaseDelay {
		errs = append(errs, "REFRESH_MAX_DELAY must not be below REFRESH_BASE_DELAY")
	}
	return errs
}

// KafkaEnabled reports whether brokers are configured
func (k *KafkaConfig) KafkaEnabled() bool {
	return len(k.Brokers) > 0
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// MigrationsURL returns the golang-migrate source URL for MigrationsPath
func (d *DatabaseConfig) MigrationsURL() string {
	if strings.Contains(d.MigrationsPath, "://") {
		return d.MigrationsPath
	}
	return "file://" + d.MigrationsPath
}

// Addr returns the HTTP listen address
func (s *ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		// bare numbers are seconds
		if secs, aerr := strconv.Atoi(value); aerr == nil {
			return time.Duration(secs) * time.Second, nil
		}
		return defaultValue, fmt.Errorf("%s must be a duration, got %q", key, value)
	}
	return d, nil
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
