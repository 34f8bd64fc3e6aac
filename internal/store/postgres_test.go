package store

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestOptionsDSN(t *testing.T) {
	opts := Options{
		Host:           "db",
		Port:           5432,
		Name:           "resources_db",
		User:           "postgres",
		Password:       "p@ss word",
		ConnectTimeout: 1500 * time.Millisecond,
		QueryTimeout:   5 * time.Second,
	}
	dsn := opts.DSN()
	require.Contains(t, dsn, "host=db")
	require.Contains(t, dsn, "port=5432")
	require.Contains(t, dsn, "dbname=resources_db")
	// дробные секунды округляются вверх
	require.Contains(t, dsn, "connect_timeout=2")
	require.Contains(t, dsn, "statement_timeout=5000")
	// sslmode по умолчанию отключён
	require.Contains(t, dsn, "sslmode=disable")
	// значение с пробелом берётся в кавычки
	require.Contains(t, dsn, "password='p@ss word'")
}

func TestQuoteDSNValue(t *testing.T) {
	require.Equal(t, "plain", quoteDSNValue("plain"))
	require.Equal(t, "''", quoteDSNValue(""))
	require.Equal(t, `'it\'s'`, quoteDSNValue("it's"))
	require.Equal(t, `'a\\b'`, quoteDSNValue(`a\b`))
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	// нет строк: значение возвращается как есть
	require.Equal(t, sql.ErrNoRows, classify(ctx, sql.ErrNoRows))

	// исчерпание соединений на сервере и обрыв соединения считаются недоступностью
	for _, code := range []string{"53300", "57P03", "08006", "08001"} {
		err := classify(ctx, &pq.Error{Code: pq.ErrorCode(code)})
		require.True(t, IsRetryable(err), "code %s must be retryable", code)
	}

	// нарушение ограничения — обычная ошибка
	err := classify(ctx, &pq.Error{Code: "23514"})
	require.False(t, IsRetryable(err))
	var pqErr *pq.Error
	require.True(t, errors.As(err, &pqErr))

	require.True(t, IsRetryable(classify(ctx, context.DeadlineExceeded)))

	plain := errors.New("syntax error")
	err = classify(ctx, plain)
	require.False(t, IsRetryable(err))
	require.True(t, errors.Is(err, plain))
}

func TestUnavailableErrorMessage(t *testing.T) {
	err := &UnavailableError{Cause: errors.New("dial tcp: refused")}
	require.True(t, strings.HasPrefix(err.Error(), "database unavailable"))
	require.Contains(t, err.Error(), "refused")
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestExecContext_TimeoutIsUnavailable(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := New(sqlDB, Options{QueryTimeout: 20 * time.Millisecond})

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM resources")).
		WillDelayFor(500 * time.Millisecond).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err = db.ExecContext(context.Background(), "DELETE FROM resources WHERE id = $1", 1)
	require.Error(t, err)
	require.True(t, IsRetryable(err))
}

func TestExecContext_Success(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := New(sqlDB, Options{QueryTimeout: time.Second})

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM resources WHERE id = $1")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := db.ExecContext(context.Background(), "DELETE FROM resources WHERE id = $1", int64(7))
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRowContext_NoRows(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := New(sqlDB, Options{QueryTimeout: time.Second})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM resources WHERE id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	var id int64
	err = db.QueryRowContext(context.Background(), "SELECT id FROM resources WHERE id = $1", int64(1)).Scan(&id)
	require.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryContext_ErrorIsClassified(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := New(sqlDB, Options{})

	mock.ExpectQuery("SELECT").WillReturnError(&pq.Error{Code: "53300"})

	rows, err := db.QueryContext(context.Background(), "SELECT id FROM resources")
	require.Nil(t, rows)
	require.True(t, IsRetryable(err))
}

func TestQueryContext_RowsIteration(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := New(sqlDB, Options{QueryTimeout: time.Second})

	mock.ExpectQuery("SELECT id FROM resources").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))

	rows, err := db.QueryContext(context.Background(), "SELECT id FROM resources")
	require.NoError(t, err)
	var ids []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	require.Equal(t, []int64{1, 2}, ids)
}

func TestPing_Unavailable(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()
	db := New(sqlDB, Options{QueryTimeout: time.Second})

	mock.ExpectPing().WillReturnError(&pq.Error{Code: "57P03"})
	require.True(t, IsRetryable(db.Ping(context.Background())))

	mock.ExpectPing()
	require.NoError(t, db.Ping(context.Background()))
}
