package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	nats "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"ResourceAPI/internal/config"
	"ResourceAPI/internal/metrics"
	"ResourceAPI/internal/repository"
	"ResourceAPI/internal/service"
	"ResourceAPI/internal/store"
	externalHttp "ResourceAPI/internal/transport/http"
	"ResourceAPI/pkg/cache"
	"ResourceAPI/pkg/events"
	"ResourceAPI/pkg/logging"
)

func main() {
	// читаем конфигурацию: .env + переменные окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.Production())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	dbOpts := cfg.Database.Options()

	// Применяем миграции до открытия пула: без схемы сервис не стартует
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := store.InitializeSchema(initCtx, dbOpts.DSN(), logging.NewMigrateLogger(log, false)); err != nil {
		cancel()
		log.Fatalf("failed to initialize schema: %+v", err)
	}
	cancel()

	// подключаем Postgres
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := store.Open(openCtx, dbOpts)
	cancel()
	if err != nil {
		log.Fatalf("failed to connect to Postgres: %+v", err)
	}
	if err := metrics.RegisterDBStats(db.Raw(), dbOpts.Name); err != nil {
		log.WithError(err).Warn("failed to register pool metrics")
	}
	log.WithFields(logrus.Fields{"host": dbOpts.Host, "database": dbOpts.Name}).Info("connected to Postgres")

	// подключаем Redis, если он настроен
	var (
		resourceCache service.Cache = cache.Nop{}
		redisClient   *cache.RedisClient
	)
	if cfg.Redis.Addr != "" {
		redisClient = cache.NewRedisClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(pingCtx); err != nil {
			log.WithError(err).Warn("Redis is not reachable yet, cache errors will be ignored")
		}
		cancel()
		resourceCache = redisClient
	} else {
		log.Info("REDIS_ADDR is empty, caching disabled")
	}

	// подключаем NATS, если он настроен
	var (
		publisher service.Publisher = events.Nop{}
		nc        *nats.Conn
	)
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name("resource-api"), nats.MaxReconnects(-1))
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		publisher = events.NewPublisher(nc, cfg.NATS.Subject)
	} else {
		log.Info("NATS_URL is empty, event publishing disabled")
	}

	// создаем репозиторий и сервис
	repo := repository.NewResourceRepository(db)
	srv := service.NewResourceService(repo, resourceCache, publisher, log).WithCacheTTL(cfg.Redis.TTL)

	if cfg.APIKey == "" && cfg.Production() {
		log.Warn("running in production without API key: ALLOW_INSECURE_NO_AUTH is set")
	}
	opts := externalHttp.RouterOptions{
		APIKey:      cfg.APIKey,
		Production:  cfg.Production(),
		CORSOrigins: cfg.CORSAllowedOrigins,
	}
	if cfg.RateLimit.Enabled {
		opts.RateLimit = &externalHttp.RateLimitOptions{
			TrustHeaders: cfg.RateLimit.TrustHeaders,
			Interval:     cfg.RateLimit.Interval,
			Burst:        cfg.RateLimit.Burst,
		}
	}
	handler := externalHttp.NewRouter(srv, db, log, opts)

	// запускаем HTTP сервер с поддержкой graceful shutdown
	addr := fmt.Sprintf(":%d", cfg.Port)
	srvHttp := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("starting server")
		if err := srvHttp.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	// ожидаем сигнал для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srvHttp.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown failed")
	}
	// закрываем Redis-клиент
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.WithError(err).Warn("failed to close Redis client")
		}
	}
	// дренируем NATS, чтобы не потерять уже отправленные события
	if nc != nil {
		if err := nc.Drain(); err != nil {
			log.WithError(err).Warn("failed to drain NATS connection")
		}
	}
	// закрываем пул соединений
	if err := db.Close(); err != nil {
		log.WithError(err).Warn("failed to close Postgres pool")
	}
	log.Info("server exited properly")
}
