package store

import (
	"context"
	"database/sql"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"

	pgmigrations "ResourceAPI/migrations/postgres"
)

// NewMigrator создаёт экземпляр golang-migrate поверх встроенных миграций.
// Используется отдельное соединение: m.Close() закрывает и его, пул приложения не затрагивается
func NewMigrator(ctx context.Context, dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(pgmigrations.FS, ".")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open embedded migrations")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open migration connection")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classify(ctx, err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create migrate driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return nil, errors.Wrap(err, "failed to create migrate instance")
	}
	return m, nil
}

// InitializeSchema применяет все up-миграции. Отсутствие изменений не является ошибкой
func InitializeSchema(ctx context.Context, dsn string, log migrate.Logger) error {
	m, err := NewMigrator(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	m.Log = log
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "failed to apply migrations")
	}
	return nil
}
