package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("APP_ENV", "development")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("CORS_ALLOWED_ORIGINS", "*")
	t.Setenv("RATE_LIMIT_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3000, cfg.Port)
	require.False(t, cfg.Production())
	require.Equal(t, "resources_db", cfg.Database.Name)
	require.Equal(t, 20, cfg.Database.MaxConns)
	require.Equal(t, 5*time.Second, cfg.Database.QueryTimeout)
	require.Equal(t, time.Minute, cfg.Redis.TTL)
	require.Equal(t, "resources.events", cfg.NATS.Subject)
	require.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	require.True(t, cfg.RateLimit.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("APP_ENV", "production")
	t.Setenv("API_KEY", "secret")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_QUERY_TIMEOUT", "250ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("RATE_LIMIT_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.True(t, cfg.Production())
	require.Equal(t, "secret", cfg.APIKey)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	require.False(t, cfg.RateLimit.Enabled)

	opts := cfg.Database.Options()
	require.Equal(t, "db", opts.Host)
	require.Equal(t, 6543, opts.Port)
	require.Equal(t, 250*time.Millisecond, opts.QueryTimeout)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:      3000,
			Env:       EnvDevelopment,
			Database:  Database{Port: 5432, MaxConns: 20},
			RateLimit: RateLimit{Enabled: true, Interval: time.Millisecond, Burst: 1},
		}
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"port zero":           func(c *Config) { c.Port = 0 },
		"port too big":        func(c *Config) { c.Port = 70000 },
		"unknown env":         func(c *Config) { c.Env = "staging" },
		"no key in prod":      func(c *Config) { c.Env = EnvProduction },
		"bad db port":         func(c *Config) { c.Database.Port = 0 },
		"no pool":             func(c *Config) { c.Database.MaxConns = 0 },
		"rate limit no burst": func(c *Config) { c.RateLimit.Burst = 0 },
	}
	for name, mutate := range cases {
		c := valid()
		mutate(c)
		require.Error(t, c.Validate(), name)
	}

	c := valid()
	c.Env = EnvProduction
	c.AllowInsecureNoAuth = true
	require.NoError(t, c.Validate(), "явный небезопасный режим разрешён")

	c = valid()
	c.Env = EnvProduction
	c.APIKey = "k"
	require.NoError(t, c.Validate())
}

func TestLoadConsumer(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("CONSUMER_PORT", "8081")
	t.Setenv("NATS_URL", "")
	_, err := LoadConsumer()
	require.Error(t, err, "consumer без NATS_URL не запускается")

	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("BATCH_SIZE", "3")
	t.Setenv("FLUSH_INTERVAL", "1s")
	cfg, err := LoadConsumer()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.BatchSize)
	require.Equal(t, time.Second, cfg.FlushInterval)
	require.Equal(t, "resources.events", cfg.NATS.Subject)

	t.Setenv("BATCH_SIZE", "0")
	_, err = LoadConsumer()
	require.Error(t, err)
}

func TestLoadDatabase(t *testing.T) {
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_NAME", "other")
	db, err := LoadDatabase()
	require.NoError(t, err)
	require.Equal(t, "pg", db.Host)
	require.Equal(t, "other", db.Options().Name)
}
