// Пакет cache содержит unit-тесты RedisClient: Set, Get, Incr и Invalidate
package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	redismock "github.com/go-redis/redismock/v8"
)

// TestSetGetInvalidate проверяет Set, Get (hit и miss) и Invalidate
func TestSetGetInvalidate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &RedisClient{client: db}
	ctx := context.Background()
	key := "resource:1"
	val := []byte(`{"id":1}`)
	exp := time.Minute

	mock.ExpectSet(key, val, exp).SetVal("OK")
	if err := client.Set(ctx, key, val, exp); err != nil {
		t.Errorf("Set error: %v", err)
	}

	mock.ExpectGet(key).SetVal(string(val))
	got, err := client.Get(ctx, key)
	if err != nil {
		t.Errorf("Get error: %v", err)
	}
	if string(got) != string(val) {
		t.Errorf("Get expected %s, got %s", val, got)
	}

	mock.ExpectGet("resource:404").RedisNil()
	_, err = client.Get(ctx, "resource:404")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}

	// несколько ключей удаляются одной командой
	mock.ExpectDel(key, "resources:list:gen").SetVal(2)
	if err := client.Invalidate(ctx, key, "resources:list:gen"); err != nil {
		t.Errorf("Invalidate error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestIncr(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &RedisClient{client: db}

	mock.ExpectIncr("resources:list:gen").SetVal(4)
	n, err := client.Incr(context.Background(), "resources:list:gen")
	if err != nil || n != 4 {
		t.Errorf("Incr = %d, %v; want 4, nil", n, err)
	}
}

func TestInvalidate_NoKeys(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &RedisClient{client: db}
	if err := client.Invalidate(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// TestSet_Error проверяет возвращение ошибки при неудаче Set
func TestSet_Error(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &RedisClient{client: db}
	mock.ExpectSet("key", []byte("value"), time.Minute).SetErr(errors.New("set failed"))
	err := client.Set(context.Background(), "key", []byte("value"), time.Minute)
	if err == nil || !strings.Contains(err.Error(), "set failed") {
		t.Errorf("expected set error, got %v", err)
	}
}

// TestGet_OtherError: ошибка Redis, не связанная с промахом, не маскируется под ErrCacheMiss
func TestGet_OtherError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := &RedisClient{client: db}
	mock.ExpectGet("key").SetErr(errors.New("get failed"))
	_, err := client.Get(context.Background(), "key")
	if err == nil || errors.Is(err, ErrCacheMiss) || !strings.Contains(err.Error(), "get failed") {
		t.Errorf("expected get error, got %v", err)
	}
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var c Nop
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
	if err := c.Invalidate(ctx, "k"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
