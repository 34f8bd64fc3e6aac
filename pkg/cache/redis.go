// Пакет cache предоставляет обёртку над Redis для read-through кеширования
package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// ErrCacheMiss возвращается, когда ключ отсутствует в кеше.
// Отличает промах от остальных ошибок Redis
var ErrCacheMiss = errors.New("cache miss")

// RedisClient оборачивает *redis.Client с методами Set, Get, Incr и Invalidate
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient создаёт RedisClient с заданными опциями подключения
func NewRedisClient(opts *redis.Options) *RedisClient {
	return &RedisClient{client: redis.NewClient(opts)}
}

// Set сохраняет value под ключом key на время expiration
func (r *RedisClient) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

// Get возвращает значение ключа или ErrCacheMiss, если ключа нет
func (r *RedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Incr атомарно увеличивает счётчик и возвращает новое значение
func (r *RedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

// Invalidate удаляет ключи из кеша
func (r *RedisClient) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Ping проверяет соединение с Redis
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает клиент
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Nop используется без Redis: всегда промах, запись игнорируется
type Nop struct{}

func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (Nop) Get(context.Context, string) ([]byte, error) { return nil, ErrCacheMiss }

func (Nop) Incr(context.Context, string) (int64, error) { return 0, nil }

func (Nop) Invalidate(context.Context, ...string) error { return nil }
