package devserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

// NewRouter wires the REST API under /api/v1 and the push endpoint at /ws.
func NewRouter(cfg *Config, svc *Service, logger *zap.Logger) http.Handler {
	limiter := newUserLimiter(cfg.RateLimit, cfg.RateBurst, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(svc.authenticate)
		r.Use(limiter.middleware)

		r.Get("/chats", svc.handleListChats)
		r.Post("/chats", svc.handleCreateChat)
		r.Get("/messages/chat/{chatID}", svc.handleListMessages)
		r.Post("/messages", svc.handleSendMessage)
		r.Patch("/messages", svc.handleMarkSeen)
		r.Get("/users", svc.handleListUsers)
	})

	r.Get("/ws", svc.handlePush)
	return r
}

// requestLogger logs one line per request. The client's X-Request-ID wins over the
// generated one so retries of one call share an id.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = middleware.GetReqID(r.Context())
			}
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", reqID),
			)
		})
	}
}
