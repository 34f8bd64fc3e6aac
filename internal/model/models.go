package model

import (
	"math"
	"time"
)

// Status задаёт допустимое состояние ресурса (столбец status)
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid сообщает, является ли значение одним из двух допустимых статусов
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Resource представляет сущность ресурса (таблица resources)
type Resource struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Status      Status    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// ResourceInput содержит входные данные создания/обновления в том виде, в каком они пришли от клиента.
// nil означает, что поле не передано; это отличается от пустой строки
type ResourceInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

// CreateParams содержит уже провалидированные поля для вставки.
// Пустой Status заменяется репозиторием на StatusActive
type CreateParams struct {
	Name        string
	Description string
	Status      Status
}

// UpdateFields описывает частичное обновление: меняются только не-nil поля
type UpdateFields struct {
	Name        *string
	Description *string
	Status      *Status
}

// Empty сообщает, что не передано ни одного поля
func (u UpdateFields) Empty() bool {
	return u.Name == nil && u.Description == nil && u.Status == nil
}

// ListFilters задаёт параметры выборки списка
// Status == "" — без фильтра по статусу, Search == "" — без поиска
type ListFilters struct {
	Status Status
	Search string
	Page   int
	Limit  int
}

// Offset возвращает количество пропускаемых строк для текущей страницы.
// При переполнении int возвращает math.MaxInt: такая страница заведомо пуста
func (f ListFilters) Offset() int {
	if f.Page < 1 || f.Limit < 1 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.Limit {
		return math.MaxInt
	}
	return (f.Page - 1) * f.Limit
}

// Pagination содержит метаданные страницы в ответе списка
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination считает totalPages = ceil(total / limit)
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

// EventAction определяет тип изменения ресурса, публикуемого в брокер
type EventAction string

const (
	ActionCreated EventAction = "created"
	ActionUpdated EventAction = "updated"
	ActionDeleted EventAction = "deleted"
)

// ResourceEvent описывает событие изменения ресурса (NATS -> ClickHouse)
type ResourceEvent struct {
	Action     EventAction `json:"action"`
	Resource   Resource    `json:"resource"`
	OccurredAt time.Time   `json:"occurredAt"`
}
