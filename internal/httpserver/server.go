package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/paygate/internal/config"
	"github.com/wisbric/paygate/internal/version"
)

// Server holds the HTTP server dependencies and the route groups that
// domain packages mount their handlers onto.
type Server struct {
	Router *chi.Mux

	// MiniApp carries POST /api/miniapp/*, guarded by mini-app initData
	// verification (component Q).
	MiniApp chi.Router
	// Admin carries POST/GET /internal/*, guarded by the X-Admin-Token
	// header (component R).
	Admin chi.Router
	// Fairness carries GET/POST /fairness/*, unauthenticated (component E/F).
	Fairness chi.Router

	Logger    *slog.Logger
	Redis     *redis.Client
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// NewServer wires middleware and health/ready/metrics endpoints, then
// creates the route groups that internal/app wiring mounts domain handlers
// onto. rdb may be nil when Redis is not configured — readiness then
// always reports ready.
func NewServer(cfg *config.Config, logger *slog.Logger, rdb *redis.Client, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		Redis:     rdb,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Telegram-Bot-Api-Secret-Token", "X-Admin-Token", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Get("/version", s.handleVersion)
	s.Router.Handle(cfg.MetricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.Router.Route("/api/miniapp", func(r chi.Router) {
		s.MiniApp = r
	})
	s.Router.Route("/internal", func(r chi.Router) {
		s.Admin = r
	})
	s.Router.Route("/fairness", func(r chi.Router) {
		s.Fairness = r
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.Redis != nil {
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			s.Logger.Error("readiness check: redis ping failed", "error", err)
			RespondError(w, r, http.StatusServiceUnavailable, "unavailable")
			return
		}
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{
		"version":   version.Version,
		"commit":    version.Commit,
		"uptime":    time.Since(s.startedAt).Truncate(time.Second).String(),
		"startedAt": s.startedAt.UTC().Format(time.RFC3339),
	})
}
