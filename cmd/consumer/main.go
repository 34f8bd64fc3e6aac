package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/ClickHouse/clickhouse-go"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/clickhouse"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"ResourceAPI/internal/config"
	"ResourceAPI/internal/consumer"
	"ResourceAPI/internal/repository"
	chmigrations "ResourceAPI/migrations/clickhouse"
	"ResourceAPI/pkg/logging"
)

func main() {
	cfg, err := config.LoadConsumer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.Env == config.EnvProduction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// Подключаемся к ClickHouse
	db, err := sql.Open("clickhouse", cfg.ClickHouseDSN)
	if err != nil {
		log.Fatalf("failed to connect to ClickHouse: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrateClickHouse(db, log); err != nil {
		log.Fatalf("failed to apply ClickHouse migrations: %+v", err)
	}

	// Подключаемся к NATS; drained закрывается, когда соединение закрыто после дренажа
	drained := make(chan struct{})
	var closeOnce sync.Once
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name("resource-events-consumer"),
		nats.MaxReconnects(-1),
		nats.DrainTimeout(10*time.Second),
		nats.ClosedHandler(func(*nats.Conn) { closeOnce.Do(func() { close(drained) }) }),
	)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	repo := repository.NewEventRepo(db, log)
	cons := consumer.NewConsumer(repo, cfg.BatchSize, log)

	runCtx, stopRun := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		cons.Run(runCtx, cfg.FlushInterval)
		close(runDone)
	}()

	// HTTP-сервер для healthz и readyz
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if !nc.IsConnected() {
			writeStatus(w, http.StatusServiceUnavailable, "nats disconnected")
			return
		}
		if err := db.PingContext(pingCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "clickhouse unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	healthSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.WithField("addr", healthSrv.Addr).Info("starting health server")
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("health server failed: %v", err)
		}
	}()

	// Подписываемся на тему NATS. Колбэки получают свой контекст: они работают
	// и во время дренажа, когда Run ещё не остановлен
	_, err = nc.Subscribe(cfg.NATS.Subject, func(msg *nats.Msg) {
		msgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := cons.HandleMessage(msgCtx, msg.Data); err != nil {
			log.WithError(err).WithField("subject", msg.Subject).Error("failed to handle message")
		}
	})
	if err != nil {
		log.Fatalf("failed to subscribe to subject %s: %v", cfg.NATS.Subject, err)
	}
	log.WithFields(logrus.Fields{"subject": cfg.NATS.Subject, "batch_size": cfg.BatchSize}).Info("consumer started")

	// Ждём сигнала завершения
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down consumer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("health server shutdown failed")
	}
	// Дренируем соединение и ждём его закрытия, затем останавливаем Run: он сбросит остаток буфера
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelDrain()
	if err := consumer.Shutdown(drainCtx, nc.Drain, drained, stopRun, runDone); err != nil {
		log.WithError(err).Warn("consumer shutdown was not clean")
	}
	log.Info("consumer exited properly")
}

// migrateClickHouse применяет встроенные миграции схемы аудита
func migrateClickHouse(db *sql.DB, log logrus.FieldLogger) error {
	src, err := iofs.New(chmigrations.FS, ".")
	if err != nil {
		return errors.Wrap(err, "failed to open embedded migrations")
	}
	driver, err := clickhouse.WithInstance(db, &clickhouse.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to create ClickHouse migrate driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "clickhouse", driver)
	if err != nil {
		return errors.Wrap(err, "failed to create ClickHouse migrate instance")
	}
	m.Log = logging.NewMigrateLogger(log, false)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "up")
	}
	return nil
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
