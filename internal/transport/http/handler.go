package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ResourceAPI/internal/model"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxBodyBytes = 1 << 20
)

// ResourceService описывает бизнес-логику ресурсов, нужную хендлеру
type ResourceService interface {
	Create(ctx context.Context, in model.ResourceInput) (*model.Resource, error)
	FindByID(ctx context.Context, id int64) (*model.Resource, error)
	FindAll(ctx context.Context, f model.ListFilters) ([]model.Resource, model.Pagination, error)
	Update(ctx context.Context, id int64, in model.ResourceInput) (*model.Resource, error)
	Delete(ctx context.Context, id int64) error
}

// Pinger проверяет доступность хранилища для /readyz
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler реализует HTTP-эндпоинты ресурсов. Он разбирает только форму запроса,
// правила данных проверяет сервис
type Handler struct {
	srv  ResourceService
	db   Pinger
	errs *ErrorWriter
	now  func() time.Time
}

// NewHandler создаёт новый HTTP Handler
func NewHandler(srv ResourceService, db Pinger, errs *ErrorWriter) *Handler {
	return &Handler{srv: srv, db: db, errs: errs, now: time.Now}
}

type successEnvelope struct {
	Success    bool              `json:"success"`
	Data       any               `json:"data,omitempty"`
	Pagination *model.Pagination `json:"pagination,omitempty"`
	Message    string            `json:"message,omitempty"`
}

type healthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// RegisterRoutes регистрирует маршруты. auth применяется только к /api/resources
func (h *Handler) RegisterRoutes(r *mux.Router, auth mux.MiddlewareFunc) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/readyz", h.Readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/resources").Subrouter()
	if auth != nil {
		api.Use(auth)
	}
	// путь со слэшем и без него обслуживается одинаково
	for _, p := range []string{"", "/"} {
		api.HandleFunc(p, h.Create).Methods(http.MethodPost)
		api.HandleFunc(p, h.List).Methods(http.MethodGet)
	}
	api.HandleFunc("/{id}", h.Get).Methods(http.MethodGet)
	api.HandleFunc("/{id}", h.Update).Methods(http.MethodPut)
	api.HandleFunc("/{id}", h.Delete).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}

// Create обрабатывает POST /api/resources
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(w, r, false)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := h.srv.Create(r.Context(), in)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, successEnvelope{Success: true, Data: res})
}

// List обрабатывает GET /api/resources?status=&search=&page=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, ok := intParam(q.Get("page"), defaultPage)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "Page must be a number")
		return
	}
	limit, ok := intParam(q.Get("limit"), defaultLimit)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "Limit must be a number")
		return
	}
	// здесь только разбор чисел, диапазоны проверяет сервис
	f := model.ListFilters{
		Status: model.Status(q.Get("status")),
		Search: q.Get("search"),
		Page:   page,
		Limit:  limit,
	}
	items, p, err := h.srv.FindAll(r.Context(), f)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successEnvelope{Success: true, Data: items, Pagination: &p})
}

// Get обрабатывает GET /api/resources/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "Invalid resource id")
		return
	}
	res, err := h.srv.FindByID(r.Context(), id)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successEnvelope{Success: true, Data: res})
}

// Update обрабатывает PUT /api/resources/{id}. Пустое тело означает пустое обновление
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "Invalid resource id")
		return
	}
	in, err := decodeInput(w, r, true)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := h.srv.Update(r.Context(), id, in)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successEnvelope{Success: true, Data: res})
}

// Delete обрабатывает DELETE /api/resources/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeFailure(w, http.StatusBadRequest, "Invalid resource id")
		return
	}
	if err := h.srv.Delete(r.Context(), id); err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successEnvelope{Success: true, Message: "Resource deleted successfully"})
}

// Health проверяет живость без обращения к зависимостям
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Success:   true,
		Message:   "Server is running",
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
	})
}

// Readyz проверяет доступность хранилища
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		h.errs.log.WithError(err).Warn("readiness check failed")
		writeFailure(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Success:   true,
		Message:   "Ready",
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
	})
}

// decodeInput разбирает JSON тела. При allowEmpty пустое тело даёт пустой ResourceInput
func decodeInput(w http.ResponseWriter, r *http.Request, allowEmpty bool) (model.ResourceInput, error) {
	var in model.ResourceInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return model.ResourceInput{}, nil
		}
		return model.ResourceInput{}, err
	}
	return in, nil
}

// parseID извлекает положительный целочисленный id из пути
func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func intParam(raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
