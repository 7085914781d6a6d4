package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/chatbox/internal/handler/chat"
	"github.com/zhouzirui/chatbox/internal/handler/socket"
	"github.com/zhouzirui/chatbox/internal/service/ai"
	chatService "github.com/zhouzirui/chatbox/internal/service/chat"
)

// RouterConfig carries what NewRouter needs besides services.
type RouterConfig struct {
	AllowedOrigins []string
	Socket         socket.Options
}

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg RouterConfig, chatSvc *chatService.Service, bot ai.Responder, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	socket.New(chatSvc, bot, cfg.Socket, logger).RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		chat.New(chatSvc, logger).RegisterRoutes(api)
	})

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})

	return r
}

// RequestLogger logs one line per request. Upgraded websocket requests are
// logged when the connection ends.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "http").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("elapsed", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
