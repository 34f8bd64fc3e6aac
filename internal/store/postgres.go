// Пакет store — адаптер к PostgreSQL: пул соединений, параметризованные запросы,
// классификация инфраструктурных ошибок и инициализация схемы
package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// ErrUnavailable означает, что база недоступна или пул исчерпан. Ошибка инфраструктурная и повторяемая,
// доменной она не является
var ErrUnavailable = errors.New("database unavailable")

// UnavailableError сохраняет исходную ошибку драйвера и при этом сопоставляется с ErrUnavailable
type UnavailableError struct {
	Cause error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", ErrUnavailable, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// IsRetryable сообщает, можно ли повторить операцию позже
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Options содержит параметры подключения и пула
type Options struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	// ConnectTimeout ограничивает установку нового соединения (connect_timeout в DSN)
	ConnectTimeout time.Duration
	// QueryTimeout ограничивает ожидание свободного соединения вместе с выполнением запроса
	QueryTimeout time.Duration
}

// DSN собирает строку подключения lib/pq в формате key=value
func (o Options) DSN() string {
	params := map[string]string{
		"host":     o.Host,
		"port":     fmt.Sprint(o.Port),
		"dbname":   o.Name,
		"user":     o.User,
		"password": o.Password,
		"sslmode":  o.SSLMode,
	}
	if params["sslmode"] == "" {
		params["sslmode"] = "disable"
	}
	if o.ConnectTimeout > 0 {
		params["connect_timeout"] = fmt.Sprint(ceilSeconds(o.ConnectTimeout))
	}
	if o.QueryTimeout > 0 {
		// неизвестные драйверу ключи lib/pq передаёт серверу как runtime-параметры
		params["statement_timeout"] = fmt.Sprint(o.QueryTimeout.Milliseconds())
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quoteDSNValue(params[k]))
	}
	return strings.Join(parts, " ")
}

// DB оборачивает *sql.DB. Все запросы получают таймаут и проходят через classify
type DB struct {
	db   *sql.DB
	opts Options
}

// Open открывает пул, настраивает его границы и проверяет соединение
func Open(ctx context.Context, opts Options) (*DB, error) {
	sqlDB, err := sql.Open("postgres", opts.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open postgres")
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
	d := New(sqlDB, opts)
	if err := d.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}
	return d, nil
}

// New оборачивает уже открытый *sql.DB (используется в тестах со sqlmock)
func New(db *sql.DB, opts Options) *DB {
	return &DB{db: db, opts: opts}
}

// Raw возвращает исходный *sql.DB
func (d *DB) Raw() *sql.DB { return d.db }

// Stats возвращает статистику пула
func (d *DB) Stats() sql.DBStats { return d.db.Stats() }

// Close закрывает все соединения пула
func (d *DB) Close() error { return d.db.Close() }

// Ping проверяет доступность базы
func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	return classify(ctx, d.db.PingContext(ctx))
}

// ExecContext выполняет запрос без возвращаемых строк
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return res, nil
}

// QueryRowContext выполняет запрос, возвращающий не более одной строки.
// Таймаут освобождается после Scan
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *Row {
	ctx, cancel := d.withTimeout(ctx)
	return &Row{row: d.db.QueryRowContext(ctx, query, args...), ctx: ctx, cancel: cancel}
}

// QueryContext выполняет запрос, возвращающий строки. Вызывающий обязан закрыть Rows
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*Rows, error) {
	ctx, cancel := d.withTimeout(ctx)
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		cancel()
		return nil, classify(ctx, err)
	}
	return &Rows{Rows: rows, ctx: ctx, cancel: cancel}, nil
}

func (d *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.opts.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d.opts.QueryTimeout)
}

// Row возвращается из QueryRowContext
type Row struct {
	row    *sql.Row
	ctx    context.Context
	cancel context.CancelFunc
}

// Scan копирует колонки в dest. sql.ErrNoRows возвращается без изменений
func (r *Row) Scan(dest ...any) error {
	defer r.cancel()
	return classify(r.ctx, r.row.Scan(dest...))
}

// Rows возвращается из QueryContext
type Rows struct {
	*sql.Rows
	ctx    context.Context
	cancel context.CancelFunc
}

// Close закрывает курсор и освобождает таймаут запроса
func (r *Rows) Close() error {
	err := r.Rows.Close()
	r.cancel()
	return err
}

// Err возвращает ошибку итерации, классифицированную так же, как ошибки запроса
func (r *Rows) Err() error {
	return classify(r.ctx, r.Rows.Err())
}

// classify отделяет инфраструктурные сбои (таймаут, обрыв соединения, исчерпание пула)
// от остальных ошибок. Остальные ошибки только получают стек
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.WithStack(&UnavailableError{Cause: err})
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return errors.WithStack(&UnavailableError{Cause: err})
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if unavailableCode(string(pqErr.Code)) {
			return errors.WithStack(&UnavailableError{Cause: err})
		}
		return errors.WithStack(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.WithStack(&UnavailableError{Cause: err})
	}
	return errors.WithStack(err)
}

// unavailableCode распознаёт SQLSTATE класса 08 (connection exception), too_many_connections, cannot_connect_now
func unavailableCode(code string) bool {
	return strings.HasPrefix(code, "08") || code == "53300" || code == "57P03"
}

func ceilSeconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}

// quoteDSNValue экранирует значение по правилам libpq: пустые значения и значения с пробелами
// берутся в одинарные кавычки, обратный слэш и кавычка экранируются
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
