package http

import (
	"context"
	"crypto/subtle"
	"fmt"
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"ResourceAPI/internal/metrics"
)

const (
	HeaderAPIKey    = "X-API-Key"
	QueryAPIKey     = "apiKey"
	HeaderRequestID = "X-Request-ID"

	msgAPIKeyRequired = "API key is required. Provide it via X-API-Key header or apiKey query parameter"
	msgAPIKeyInvalid  = "Invalid API key"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	routeKey
)

// RequestIDFromContext возвращает идентификатор запроса или пустую строку
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusResponseWriter обёртка для http.ResponseWriter, чтобы захватывать статус-код
type statusResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// routeHolder заполняется внутри роутера, чтобы внешний middleware знал шаблон маршрута
type routeHolder struct {
	template string
}

// RequestIDMiddleware присваивает запросу идентификатор (берёт входящий X-Request-ID, если он разумной длины)
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// LoggingMiddleware пишет строку лога и метрики на каждый запрос
func LoggingMiddleware(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			holder := &routeHolder{template: "unmatched"}
			srw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(srw, r.WithContext(context.WithValue(r.Context(), routeKey, holder)))
			dur := time.Since(start)

			metrics.HTTPRequests.WithLabelValues(r.Method, holder.template, strconv.Itoa(srw.status)).Inc()
			metrics.HTTPDuration.WithLabelValues(r.Method, holder.template).Observe(dur.Seconds())

			entry := log.WithFields(logrus.Fields{
				"request_id":  RequestIDFromContext(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      srw.status,
				"duration_ms": dur.Milliseconds(),
			})
			if srw.status >= http.StatusInternalServerError {
				entry.Warn("request completed")
				return
			}
			entry.Info("request completed")
		})
	}
}

// CaptureRoute (middleware роутера) сохраняет шаблон совпавшего маршрута для метрик
func CaptureRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if holder, ok := r.Context().Value(routeKey).(*routeHolder); ok {
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					holder.template = tpl
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RecoveryMiddleware превращает панику обработчика в ответ 500 с обычным конвертом ошибки
func RecoveryMiddleware(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.WithFields(logrus.Fields{
						"request_id": RequestIDFromContext(r.Context()),
						"method":     r.Method,
						"path":       r.URL.Path,
					}).Errorf("panic: %v\n%s", rec, debug.Stack())
					writeFailure(w, http.StatusInternalServerError, internalErrorMessage)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyMiddleware проверяет ключ из заголовка X-API-Key или параметра apiKey.
// Пустой key отключает проверку: это явный небезопасный режим для локальной разработки
func APIKeyMiddleware(key string, log logrus.FieldLogger) mux.MiddlewareFunc {
	if key == "" {
		log.Warn("API key is not configured: authentication is DISABLED for /api/resources")
		return func(next http.Handler) http.Handler { return next }
	}
	expected := []byte(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get(HeaderAPIKey)
			if provided == "" {
				provided = r.URL.Query().Get(QueryAPIKey)
			}
			if provided == "" {
				writeFailure(w, http.StatusUnauthorized, msgAPIKeyRequired)
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
				log.WithFields(logrus.Fields{
					"request_id": RequestIDFromContext(r.Context()),
					"remote":     r.RemoteAddr,
				}).Warn("invalid API key")
				writeFailure(w, http.StatusUnauthorized, msgAPIKeyInvalid)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitOptions задаёт параметры ограничения частоты запросов по IP
type RateLimitOptions struct {
	TrustHeaders bool
	Interval     time.Duration
	Burst        int
	CacheSize    int
	TTL          time.Duration
}

// RateLimitMiddleware ограничивает частоту запросов с одного адреса (token bucket на адрес).
// Лимитеры хранятся в LRU с истечением, чтобы память не росла с числом клиентов
func RateLimitMiddleware(opts RateLimitOptions) func(http.Handler) http.Handler {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 10000
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	cache := expirable.NewLRU[string, *rate.Limiter](opts.CacheSize, nil, opts.TTL)

	getLimiter := func(addr string) *rate.Limiter {
		limiter, ok := cache.Get(addr)
		if !ok {
			limiter = rate.NewLimiter(rate.Every(opts.Interval), opts.Burst)
			cache.Add(addr, limiter)
		}
		return limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := getLimiter(remoteAddr(r, opts.TrustHeaders))

			reservation := limiter.Reserve()
			if !reservation.OK() {
				metrics.RateLimited.Inc()
				writeFailure(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			if delay := reservation.Delay(); delay > 0 {
				reservation.Cancel()
				metrics.RateLimited.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				writeFailure(w, http.StatusTooManyRequests, "Too many requests")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(opts.Burst))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%.0f", math.Max(0, limiter.Tokens())))
			next.ServeHTTP(w, r)
		})
	}
}

func remoteAddr(r *http.Request, trustHeaders bool) string {
	if trustHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			return strings.TrimSpace(strings.Split(xff, ",")[0])
		}
		if xri := r.Header.Get("X-Real-Ip"); xri != "" {
			return xri
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// CORSMiddleware разрешает кросс-доменные запросы с заданных origin
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", HeaderAPIKey, HeaderRequestID},
		ExposedHeaders: []string{HeaderRequestID, "Retry-After"},
	})
	return c.Handler
}

// Chain оборачивает handler middleware-ами; первый в списке становится внешним
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
