// Пакет postgres_test содержит интеграционные тесты для проверки корректного выполнения SQL миграций PostgreSQL
package postgres_test

import (
	"database/sql"
	"os"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	pgmigrations "ResourceAPI/migrations/postgres"
)

// TestEmbeddedFiles проверяет, что каждая up-миграция имеет парную down-миграцию
func TestEmbeddedFiles(t *testing.T) {
	src, err := iofs.New(pgmigrations.FS, ".")
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	version, err := src.First()
	require.NoError(t, err)
	count := 0
	for {
		_, _, err := src.ReadUp(version)
		require.NoError(t, err, "нет up-миграции для версии %d", version)
		_, _, err = src.ReadDown(version)
		require.NoError(t, err, "нет down-миграции для версии %d", version)
		count++
		next, err := src.Next(version)
		if err != nil {
			break
		}
		version = next
	}
	require.Equal(t, 2, count)
}

// TestPostgresMigrations проверяет, что все миграции выполняются корректно и оставляют базу в ожидаемом состоянии
func TestPostgresMigrations(t *testing.T) {
	dsn := os.Getenv("MIGRATION_TEST_DSN")
	if dsn == "" {
		t.Skip("MIGRATION_TEST_DSN env var not set; skipping Postgres migration tests")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err, "ошибка при открытии соединения с базой данных")
	defer func() {
		require.NoError(t, db.Close(), "ошибка при закрытии соединения с базой данных")
	}()

	src, err := iofs.New(pgmigrations.FS, ".")
	require.NoError(t, err)
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	require.NoError(t, err, "failed to create migrate driver")
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	require.NoError(t, err, "failed to create migrate instance")

	// Откат предыдущих миграций, чтобы обеспечить чистое состояние
	if err := m.Down(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("failed to rollback migrations: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	// ------------------------- Проверки структуры -------------------------

	var exists bool
	err = db.QueryRow(
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name='resources')`,
	).Scan(&exists)
	require.NoError(t, err)
	require.True(t, exists, "таблица resources должна существовать после миграций")

	for _, idx := range []string{"idx_resources_status", "idx_resources_name", "idx_resources_created_at"} {
		err = db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_indexes WHERE tablename='resources' AND indexname=$1)`, idx,
		).Scan(&exists)
		require.NoError(t, err)
		require.True(t, exists, "индекс %s должен существовать", idx)
	}

	var colDefault, dataType, isNullable string
	err = db.QueryRow(
		`SELECT column_default, data_type, is_nullable FROM information_schema.columns WHERE table_name='resources' AND column_name='created_at'`,
	).Scan(&colDefault, &dataType, &isNullable)
	require.NoError(t, err)
	require.Contains(t, colDefault, "now()")
	require.Equal(t, "timestamp with time zone", dataType)
	require.Equal(t, "NO", isNullable)

	// ------------------------- Проверка ограничений -------------------------

	var status string
	err = db.QueryRow(`INSERT INTO resources (name, description) VALUES ('n', 'd') RETURNING status`).Scan(&status)
	require.NoError(t, err)
	require.Equal(t, "active", status, "статус по умолчанию должен быть active")

	_, err = db.Exec(`INSERT INTO resources (name, description, status) VALUES ('n', 'd', 'archived')`)
	require.Error(t, err, "CHECK должен отклонять неизвестный статус")

	// ------------------------- Проверка отката -------------------------
	if err := m.Steps(-2); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("failed to rollback all migrations: %v", err)
	}
	err = db.QueryRow(
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name='resources')`,
	).Scan(&exists)
	require.NoError(t, err)
	require.False(t, exists, "таблица resources должна быть удалена после отката")
}
