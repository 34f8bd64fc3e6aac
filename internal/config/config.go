package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"ResourceAPI/internal/store"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Database содержит параметры подключения к PostgreSQL
type Database struct {
	Host           string        `env:"DB_HOST" envDefault:"localhost"`
	Port           int           `env:"DB_PORT" envDefault:"5432"`
	Name           string        `env:"DB_NAME" envDefault:"resources_db"`
	User           string        `env:"DB_USER" envDefault:"postgres"`
	Password       string        `env:"DB_PASSWORD" envDefault:"postgres"`
	SSLMode        string        `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns       int           `env:"DB_MAX_CONNS" envDefault:"20"`
	MaxIdleConns   int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	IdleTimeout    time.Duration `env:"DB_IDLE_TIMEOUT" envDefault:"30s"`
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"2s"`
	QueryTimeout   time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"5s"`
}

// Options переводит настройки в параметры store
func (d Database) Options() store.Options {
	return store.Options{
		Host:            d.Host,
		Port:            d.Port,
		Name:            d.Name,
		User:            d.User,
		Password:        d.Password,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxIdleTime: d.IdleTimeout,
		ConnectTimeout:  d.ConnectTimeout,
		QueryTimeout:    d.QueryTimeout,
	}
}

// Redis настраивает кеш; пустой адрес отключает кеширование
type Redis struct {
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL      time.Duration `env:"REDIS_TTL" envDefault:"1m"`
}

// NATS настраивает брокер событий; пустой URL отключает публикацию
type NATS struct {
	URL     string `env:"NATS_URL"`
	Subject string `env:"NATS_SUBJECT" envDefault:"resources.events"`
}

type RateLimit struct {
	Enabled      bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Interval     time.Duration `env:"RATE_LIMIT_INTERVAL" envDefault:"100ms"`
	Burst        int           `env:"RATE_LIMIT_BURST" envDefault:"50"`
	TrustHeaders bool          `env:"RATE_LIMIT_TRUST_HEADERS" envDefault:"false"`
}

// Config содержит настройки HTTP-сервиса
type Config struct {
	Port                int      `env:"PORT" envDefault:"3000"`
	Env                 string   `env:"APP_ENV" envDefault:"development"`
	LogLevel            string   `env:"LOG_LEVEL" envDefault:"info"`
	APIKey              string   `env:"API_KEY"`
	AllowInsecureNoAuth bool     `env:"ALLOW_INSECURE_NO_AUTH" envDefault:"false"`
	CORSAllowedOrigins  []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	Database  Database
	Redis     Redis
	NATS      NATS
	RateLimit RateLimit
}

// Consumer содержит настройки сервиса, пишущего события в ClickHouse
type Consumer struct {
	Port          int           `env:"CONSUMER_PORT" envDefault:"8081"`
	Env           string        `env:"APP_ENV" envDefault:"development"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	ClickHouseDSN string        `env:"CLICKHOUSE_DSN" envDefault:"tcp://localhost:9000?database=default"`
	BatchSize     int           `env:"BATCH_SIZE" envDefault:"10"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"5s"`

	NATS NATS
}

// Load читает .env (если он есть) и переменные окружения
func Load() (*Config, error) {
	loadDotEnv()
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConsumer читает настройки consumer-а
func LoadConsumer() (*Consumer, error) {
	loadDotEnv()
	cfg, err := env.ParseAs[Consumer]()
	if err != nil {
		return nil, errors.Wrap(err, "parse consumer config")
	}
	if err := validatePort("CONSUMER_PORT", cfg.Port); err != nil {
		return nil, err
	}
	if err := validateEnv(cfg.Env); err != nil {
		return nil, err
	}
	if cfg.NATS.URL == "" {
		return nil, errors.New("NATS_URL is required for the consumer")
	}
	if cfg.BatchSize < 1 {
		return nil, errors.Errorf("BATCH_SIZE must be positive, got %d", cfg.BatchSize)
	}
	if cfg.FlushInterval <= 0 {
		return nil, errors.Errorf("FLUSH_INTERVAL must be positive, got %s", cfg.FlushInterval)
	}
	return &cfg, nil
}

// LoadDatabase читает только настройки PostgreSQL (для утилиты миграций)
func LoadDatabase() (*Database, error) {
	loadDotEnv()
	db, err := env.ParseAs[Database]()
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}
	return &db, nil
}

// отсутствие .env не ошибка: в контейнере всё приходит из окружения
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	if err := validatePort("PORT", c.Port); err != nil {
		return err
	}
	if err := validateEnv(c.Env); err != nil {
		return err
	}
	if c.Production() && c.APIKey == "" && !c.AllowInsecureNoAuth {
		return errors.New("API_KEY must be set in production (set ALLOW_INSECURE_NO_AUTH=true to run without authentication)")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return errors.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return errors.Errorf("DB_MAX_CONNS must be positive, got %d", c.Database.MaxConns)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Interval <= 0 || c.RateLimit.Burst < 1) {
		return errors.New("RATE_LIMIT_INTERVAL and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// Production сообщает, запущен ли сервис в production-окружении
func (c *Config) Production() bool {
	return c.Env == EnvProduction
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return errors.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

func validateEnv(e string) error {
	switch e {
	case EnvDevelopment, EnvProduction, EnvTest:
		return nil
	}
	return errors.Errorf("APP_ENV must be one of development, production, test; got %q", e)
}
