package service

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind задаёт категорию доменной ошибки
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	// KindConflict зарезервирован: ни одна операция сейчас его не возвращает
	KindConflict Kind = "conflict"
)

// Error описывает доменную ошибку с сообщением для клиента и HTTP-статусом
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, status int, msg string) *Error {
	return &Error{Kind: kind, Message: msg, StatusCode: status}
}

func ValidationError(msg string) *Error {
	return newError(KindValidation, http.StatusBadRequest, msg)
}

func NotFoundError(msg string) *Error {
	return newError(KindNotFound, http.StatusNotFound, msg)
}

func UnauthorizedError(msg string) *Error {
	return newError(KindUnauthorized, http.StatusUnauthorized, msg)
}

func ConflictError(msg string) *Error {
	return newError(KindConflict, http.StatusConflict, msg)
}

// resourceNotFound формирует единое сообщение об отсутствии ресурса
func resourceNotFound(id int64) *Error {
	return NotFoundError(fmt.Sprintf("Resource with id %d not found", id))
}

// AsError извлекает доменную ошибку из цепочки
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind проверяет категорию доменной ошибки
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}
