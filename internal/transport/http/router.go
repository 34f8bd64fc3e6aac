package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// RouterOptions задаёт параметры сборки HTTP-стека
type RouterOptions struct {
	APIKey      string
	Production  bool
	CORSOrigins []string
	// RateLimit == nil отключает ограничение частоты
	RateLimit *RateLimitOptions
}

// NewRouter собирает маршруты и цепочку middleware:
// request id -> логирование и метрики -> recovery -> CORS -> rate limit -> роутер (-> auth для /api/resources)
func NewRouter(srv ResourceService, db Pinger, log logrus.FieldLogger, opts RouterOptions) http.Handler {
	r := mux.NewRouter()
	r.Use(CaptureRoute)
	h := NewHandler(srv, db, NewErrorWriter(log, opts.Production))
	h.RegisterRoutes(r, APIKeyMiddleware(opts.APIKey, log))

	mws := []func(http.Handler) http.Handler{
		RequestIDMiddleware,
		LoggingMiddleware(log),
		RecoveryMiddleware(log),
	}
	if len(opts.CORSOrigins) > 0 {
		mws = append(mws, CORSMiddleware(opts.CORSOrigins))
	}
	if opts.RateLimit != nil {
		mws = append(mws, RateLimitMiddleware(*opts.RateLimit))
	}
	return Chain(r, mws...)
}
