package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/config"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/history"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/middleware"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/pv"
	"github.com/ChimeraTK/ApplicationCore-ServerHistoryModule/internal/ws"
)

// Server represents the history API server
type Server struct {
	logger   *zap.Logger
	config   *config.Config
	router   chi.Router
	model    *pv.Model
	recorder *history.Recorder
	hub      *ws.Hub
	limiter  *rate.Limiter
}

// NewServer creates a new API server over the given PV graph and recorder.
func NewServer(logger *zap.Logger, cfg *config.Config, model *pv.Model, recorder *history.Recorder, hub *ws.Hub) *Server {
	s := &Server{
		logger:   logger,
		config:   cfg,
		router:   chi.NewRouter(),
		model:    model,
		recorder: recorder,
		hub:      hub,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Server.IngestRateLimit), cfg.Server.IngestBurst),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(chimw.Recoverer)
	s.router.Use(middleware.PrometheusMiddleware)
	s.router.Use(middleware.RequestIDResponseMiddleware)
	s.router.Use(middleware.NewETagMiddleware(s.logger).Middleware)
	s.router.Use(middleware.NewIdempotencyMiddleware(s.logger, 10*time.Minute).Middleware)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/variables", s.handleListVariables)
		r.Post("/variables/*", s.handleIngest)
		r.Get("/history/*", s.handleReadHistory)
		r.Get("/stream", s.handleStream)
	})
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}
