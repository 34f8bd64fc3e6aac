package http

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"ResourceAPI/internal/service"
	"ResourceAPI/internal/store"
)

const internalErrorMessage = "Internal server error"

// errorBody и errorEnvelope задают формат ответа с ошибкой
type errorBody struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

// ErrorWriter превращает ошибки в HTTP-ответы
type ErrorWriter struct {
	log        logrus.FieldLogger
	production bool
}

// NewErrorWriter создаёт транслятор ошибок. В production текст неклассифицированных ошибок скрывается
func NewErrorWriter(log logrus.FieldLogger, production bool) *ErrorWriter {
	return &ErrorWriter{log: log, production: production}
}

// Write отправляет доменную ошибку с её статусом, остальные ошибки — как 500
func (ew *ErrorWriter) Write(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := service.AsError(err); ok {
		writeFailure(w, e.StatusCode, e.Message)
		return
	}

	ew.log.WithFields(logrus.Fields{
		"request_id": RequestIDFromContext(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	}).Errorf("unhandled error: %+v", err)

	if store.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	msg := internalErrorMessage
	if !ew.production {
		msg = err.Error()
	}
	writeFailure(w, http.StatusInternalServerError, msg)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Message: msg, StatusCode: status}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
